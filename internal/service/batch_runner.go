package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"depth-test/internal/config"
	"depth-test/internal/db"
	"depth-test/internal/model"
)

// BatchRunRequest 一次批量运行的参数（零值回落到配置文件的默认值）
type BatchRunRequest struct {
	DatasetDir string `json:"dataset_dir"`
	OutputDir  string `json:"output_dir"`
	Template   string `json:"template"`
	MaxRetries int    `json:"max_retries"`
	MaxWaitSec int    `json:"max_wait_sec"`
	// Resume 跳过已有成功产物的样本（断点续跑）
	Resume bool `json:"resume"`
	// Limit 随机抽样数量（0 用配置值）
	Limit int   `json:"limit"`
	Seed  int64 `json:"seed"`
}

// BatchRunResult 批量运行的汇总
type BatchRunResult struct {
	RunID       uint           `json:"run_id"`
	Template    string         `json:"template"`
	SampleCount int            `json:"sample_count"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Skipped     int            `json:"skipped"`
	Cancelled   bool           `json:"cancelled"`
	Outcomes    []TrialOutcome `json:"outcomes"`
	Stats       *RunStats      `json:"stats,omitempty"`
	SummaryPath string         `json:"summary_path"`
	ReportPath  string         `json:"report_path"`
	Errors      []string       `json:"errors,omitempty"`
}

// BatchRunner 串行驱动整个数据集。UI 会话、剪贴板、屏幕都是进程级共享资源，
// 没有并行的余地：同一时刻只有一个样本在跑，跑完才推进下一个。
type BatchRunner struct {
	cfg    *config.Config
	driver UIDriver
	clip   ClipboardBridge

	sleep func(ctx context.Context, d time.Duration) error
}

func NewBatchRunner(cfg *config.Config, driver UIDriver, clip ClipboardBridge) *BatchRunner {
	return &BatchRunner{cfg: cfg, driver: driver, clip: clip, sleep: sleepCtx}
}

// Run 跑完整个批次。返回 error 仅表示启动期致命失败（数据集/模板/目标应用），
// 单个样本的失败都收进结果里，批次继续。
func (b *BatchRunner) Run(ctx context.Context, req BatchRunRequest) (*BatchRunResult, error) {
	auto := b.cfg.Automation
	if req.MaxRetries > 0 {
		auto.MaxRetries = req.MaxRetries
	}
	if req.MaxWaitSec > 0 {
		auto.MaxWaitSec = req.MaxWaitSec
	}

	dataset := b.cfg.Dataset
	if req.DatasetDir != "" {
		dataset.ImageDir = req.DatasetDir
	}
	if req.Limit > 0 {
		dataset.SampleLimit = req.Limit
	}
	if req.Seed != 0 {
		dataset.Seed = req.Seed
	}
	outputDir := b.cfg.Output.Dir
	if req.OutputDir != "" {
		outputDir = req.OutputDir
	}

	// 启动期校验：数据集、模板、目标应用，任何一个不行都直接放弃整个批次
	samples, err := LoadSamples(dataset)
	if err != nil {
		return nil, err
	}
	prompts := NewPromptLibrary(b.cfg.Prompt, b.cfg.ExpectedMode)
	prompt, err := prompts.Load(req.Template)
	if err != nil {
		return nil, err
	}
	if err := b.driver.FocusTarget(); err != nil {
		return nil, err
	}

	run := &model.BatchRun{
		DatasetDir:  dataset.ImageDir,
		OutputDir:   outputDir,
		Template:    prompt.Template,
		Seed:        dataset.Seed,
		MaxRetries:  auto.MaxRetries,
		MaxWaitSec:  auto.MaxWaitSec,
		SampleCount: len(samples),
		Status:      model.RunStatusRunning,
	}
	if err := db.DB.Create(run).Error; err != nil {
		return nil, fmt.Errorf("创建批次记录失败: %w", err)
	}

	store := NewResultStore(outputDir)
	detector := NewResponseDetector(auto)
	trial := NewTrialRunner(b.driver, b.clip, detector, store,
		auto.MaxRetries,
		time.Duration(auto.RetryBaseSec)*time.Second,
		auto.RetryFactor,
		time.Duration(auto.RetryCapSec)*time.Second,
		b.cfg.Target.NewChatPerSample,
	)
	pacing := time.Duration(auto.PacingSec) * time.Second

	result := &BatchRunResult{
		RunID:       run.ID,
		Template:    prompt.Template,
		SampleCount: len(samples),
	}

	log.Printf("批次 %d 开始：%d 个样本，模板 %s", run.ID, len(samples), prompt.Template)

	for i, sample := range samples {
		// 样本边界检查取消信号：后续样本一个都不再启动
		select {
		case <-ctx.Done():
			result.Cancelled = true
		default:
		}
		if result.Cancelled {
			break
		}

		if req.Resume && store.HasResult(sample.ID) {
			log.Printf("[%d/%d] sample=%s 已有结果，跳过", i+1, len(samples), sample.ID)
			result.Skipped++
			continue
		}

		outcome := trial.RunTrial(ctx, run.ID, sample, prompt)
		result.Outcomes = append(result.Outcomes, outcome)
		switch outcome.Outcome {
		case model.TrialSucceeded:
			result.Succeeded++
			log.Printf("[%d/%d] sample=%s 成功（%d 次尝试）", i+1, len(samples), sample.ID, outcome.Attempts)
		default:
			result.Failed++
			log.Printf("[%d/%d] sample=%s 失败（%d 次尝试）: %s", i+1, len(samples), sample.ID, outcome.Attempts, outcome.FailureReason)
			if outcome.FailureReason == "cancelled" {
				result.Cancelled = true
			}
		}

		// 样本间隔，让界面喘口气（防止限流/卡死）
		if i < len(samples)-1 && !result.Cancelled {
			if err := b.sleep(ctx, pacing); err != nil {
				result.Cancelled = true
			}
		}
	}

	// 汇总统计只看本 run_id
	stats, err := ComputeRunStats(run.ID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("run=%d 统计失败: %v", run.ID, err))
	}
	result.Stats = stats

	run.Succeeded = result.Succeeded
	run.Failed = result.Failed
	run.Skipped = result.Skipped
	run.Status = model.RunStatusCompleted
	if result.Cancelled {
		run.Status = model.RunStatusCancelled
	}

	// 输出汇总文件
	_ = os.MkdirAll(outputDir, 0o755)
	result.SummaryPath = filepath.Join(outputDir, fmt.Sprintf("batch_run_%d.json", run.ID))
	result.ReportPath = filepath.Join(outputDir, fmt.Sprintf("batch_run_%d_report.md", run.ID))
	if buf, err := json.MarshalIndent(result, "", "  "); err == nil {
		_ = os.WriteFile(result.SummaryPath, buf, 0o644)
	}
	_ = os.WriteFile(result.ReportPath, []byte(RenderRunMarkdown(run, result)), 0o644)

	run.SummaryPath = result.SummaryPath
	run.ReportPath = result.ReportPath
	_ = db.DB.Save(run).Error

	log.Printf("批次 %d 结束：成功 %d，失败 %d，跳过 %d", run.ID, result.Succeeded, result.Failed, result.Skipped)
	return result, nil
}
