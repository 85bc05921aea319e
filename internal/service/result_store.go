package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"depth-test/internal/db"
	"depth-test/internal/model"

	"gorm.io/gorm"
)

// TrialMeta 随产物一起落库的试验元数据
type TrialMeta struct {
	RunID         uint
	Template      string
	Attempts      int
	Outcome       string
	FailureReason string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// ResultStore 结果持久化：每个 sample_id 一个产物目录 + 一条元数据记录。
// 目录布局沿用原脚本：<output>/<sample_id>/depth_map.png（+ output.txt）。
// 写同一 sample_id 允许覆盖（支持手工重跑），文件写入必须原子。
type ResultStore struct {
	outputDir string
}

func NewResultStore(outputDir string) *ResultStore {
	return &ResultStore{outputDir: outputDir}
}

func (s *ResultStore) OutputDir() string { return s.outputDir }

// Save 落盘产物并更新元数据（同 sample_id 覆盖写，文件先写临时名再改名）
func (s *ResultStore) Save(sampleID string, artifact *CapturedArtifact, responseText string, meta TrialMeta) (*model.TrialRecord, error) {
	dir := filepath.Join(s.outputDir, sampleID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	artifactPath := filepath.Join(dir, "depth_map.png")
	if err := atomicWrite(artifactPath, artifact.PNG); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	responsePath := ""
	if responseText != "" {
		responsePath = filepath.Join(dir, "output.txt")
		if err := atomicWrite(responsePath, []byte(responseText)); err != nil {
			return nil, &PersistenceError{Err: err}
		}
	}

	rec, err := s.upsert(sampleID, func(rec *model.TrialRecord) {
		applyMeta(rec, meta)
		rec.ArtifactPath = artifactPath
		rec.ResponsePath = responsePath
		rec.Width = artifact.Width
		rec.Height = artifact.Height
		rec.Channels = artifact.Channels
	})
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	return rec, nil
}

// RecordFailure 记录终态失败（不写产物文件，不覆盖已有成功产物路径以外的历史）
func (s *ResultStore) RecordFailure(sampleID string, meta TrialMeta) (*model.TrialRecord, error) {
	rec, err := s.upsert(sampleID, func(rec *model.TrialRecord) {
		applyMeta(rec, meta)
		rec.ArtifactPath = ""
		rec.ResponsePath = ""
		rec.Width = 0
		rec.Height = 0
		rec.Channels = 0
	})
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	return rec, nil
}

// HasResult 断点续跑的检查点：库里有成功记录且产物文件还在
func (s *ResultStore) HasResult(sampleID string) bool {
	var rec model.TrialRecord
	err := db.DB.Where("sample_id = ? AND outcome = ?", sampleID, model.TrialSucceeded).
		First(&rec).Error
	if err != nil {
		return false
	}
	if rec.ArtifactPath == "" {
		return false
	}
	if _, err := os.Stat(rec.ArtifactPath); err != nil {
		return false
	}
	return true
}

// ListResults 列出全部样本记录（下游评估按此配对 ground truth）
func (s *ResultStore) ListResults() ([]model.TrialRecord, error) {
	var recs []model.TrialRecord
	if err := db.DB.Order("sample_id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("查询结果失败: %w", err)
	}
	return recs, nil
}

func (s *ResultStore) upsert(sampleID string, mutate func(*model.TrialRecord)) (*model.TrialRecord, error) {
	var rec model.TrialRecord
	err := db.DB.Where("sample_id = ?", sampleID).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = model.TrialRecord{SampleID: sampleID}
	case err != nil:
		return nil, err
	}
	mutate(&rec)
	if err := db.DB.Save(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func applyMeta(rec *model.TrialRecord, meta TrialMeta) {
	rec.RunID = meta.RunID
	rec.Template = meta.Template
	rec.Attempts = meta.Attempts
	rec.Outcome = meta.Outcome
	rec.FailureReason = meta.FailureReason
	rec.StartedAt = meta.StartedAt
	rec.FinishedAt = meta.FinishedAt
}

// atomicWrite 先写临时文件再改名，避免出现可读的半截文件
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
