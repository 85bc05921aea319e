package service

import (
	"fmt"

	"depth-test/internal/db"
	"depth-test/internal/model"
)

// RunStats 单个批次的统计（只统计本 run_id 的记录）
type RunStats struct {
	N           int     `json:"n"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
	// 尝试次数直方图：attempts -> 样本数
	AttemptHist map[int]int `json:"attempt_hist"`
	AvgAttempts float64     `json:"avg_attempts"`
	// 平均单样本耗时（秒，含重试）
	AvgDurationSec float64 `json:"avg_duration_sec"`
	// 失败原因 -> 次数
	FailureReasons map[string]int `json:"failure_reasons,omitempty"`
}

// ComputeRunStats 从 TrialRecord 汇总本批次的统计
func ComputeRunStats(runID uint) (*RunStats, error) {
	var recs []model.TrialRecord
	if err := db.DB.Where("run_id = ?", runID).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("查询试验记录失败: %w", err)
	}

	stats := &RunStats{
		AttemptHist:    map[int]int{},
		FailureReasons: map[string]int{},
	}
	if len(recs) == 0 {
		return stats, nil
	}

	totalAttempts := 0
	totalDuration := 0.0
	for _, rec := range recs {
		stats.N++
		totalAttempts += rec.Attempts
		stats.AttemptHist[rec.Attempts]++
		if !rec.FinishedAt.IsZero() && !rec.StartedAt.IsZero() {
			totalDuration += rec.FinishedAt.Sub(rec.StartedAt).Seconds()
		}
		switch rec.Outcome {
		case model.TrialSucceeded:
			stats.Succeeded++
		case model.TrialFailed:
			stats.Failed++
			if rec.FailureReason != "" {
				stats.FailureReasons[rec.FailureReason]++
			}
		}
	}

	judged := stats.Succeeded + stats.Failed
	if judged > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(judged)
	}
	stats.AvgAttempts = float64(totalAttempts) / float64(stats.N)
	stats.AvgDurationSec = totalDuration / float64(stats.N)
	return stats, nil
}
