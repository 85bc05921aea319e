package model

import (
	"time"

	"gorm.io/gorm"
)

// 单样本最终结局
const (
	TrialSucceeded = "succeeded"
	TrialFailed    = "failed"
)

// TrialRecord 单个样本的最终结果（每个 sample_id 一条，重跑时覆盖更新）
type TrialRecord struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	RunID    uint   `gorm:"index" json:"run_id"`
	SampleID string `gorm:"type:varchar(200);not null;uniqueIndex" json:"sample_id"`
	Template string `gorm:"type:varchar(100)" json:"template"`

	// 实际用掉的尝试次数（1..max_retries）
	Attempts int    `json:"attempts"`
	Outcome  string `gorm:"type:varchar(20);index" json:"outcome"`
	// 失败原因（成功时为空）
	FailureReason string `gorm:"type:varchar(500)" json:"failure_reason"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// 产物文件（失败时为空）
	ArtifactPath string `gorm:"type:varchar(500)" json:"artifact_path"`
	ResponsePath string `gorm:"type:varchar(500)" json:"response_path"`

	// 提取到的深度图元信息
	Width    int `json:"width"`
	Height   int `json:"height"`
	Channels int `json:"channels"`
}

// TrialLog 每次尝试的过程日志（供调试/可解释性：到了哪一步、为何重试）
type TrialLog struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	RunID    uint   `gorm:"index" json:"run_id"`
	SampleID string `gorm:"type:varchar(200);index" json:"sample_id"`
	Attempt  int    `json:"attempt"`
	// 所处阶段：submitting/waiting/capturing/validating/finalize
	Stage  string `gorm:"type:varchar(50)" json:"stage"`
	Detail string `gorm:"type:text" json:"detail"`
}
