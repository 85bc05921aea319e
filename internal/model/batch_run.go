package model

import (
	"time"

	"gorm.io/gorm"
)

// 批次运行状态
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusCancelled = "cancelled"
)

// BatchRun 每次批量实验的元数据（隔离不同批次，支持断点续跑与事后统计）
type BatchRun struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	DatasetDir string `gorm:"type:varchar(500);not null" json:"dataset_dir"`
	OutputDir  string `gorm:"type:varchar(500);not null" json:"output_dir"`
	Template   string `gorm:"type:varchar(100);index" json:"template"`
	Seed       int64  `gorm:"index" json:"seed"`

	MaxRetries int `json:"max_retries"`
	MaxWaitSec int `json:"max_wait_sec"`

	SampleCount int    `json:"sample_count"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	Skipped     int    `json:"skipped"`
	Status      string `gorm:"type:varchar(20);index" json:"status"`

	// 汇总产物路径
	SummaryPath string `gorm:"type:varchar(500)" json:"summary_path"`
	ReportPath  string `gorm:"type:varchar(500)" json:"report_path"`
}
