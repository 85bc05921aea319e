package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"depth-test/internal/config"
	"depth-test/internal/db"
	"depth-test/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupBatchEnv 准备数据集（a/b/c 三张图）、模板目录和输出目录
func setupBatchEnv(t *testing.T) *config.Config {
	t.Helper()
	setupTestDB(t)

	datasetDir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(datasetDir, name), genGrayPNG(t, 32, 32), 0o644))
	}

	promptDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(promptDir, "grayscale_depth.txt"),
		[]byte("请输出这张图的灰度深度图"), 0o644))

	cfg := &config.Config{}
	cfg.Dataset.ImageDir = datasetDir
	cfg.Prompt.Dir = promptDir
	cfg.Output.Dir = t.TempDir()
	cfg.Automation = config.AutomationConfig{
		PollIntervalMS: 1,
		MaxWaitSec:     1,
		StablePolls:    2,
		MaxRetries:     2,
		RetryBaseSec:   1,
		RetryFactor:    2,
		RetryCapSec:    1,
		PacingSec:      1,
		SubmitDelayMS:  1,
	}
	cfg.ApplyDefaults()
	return cfg
}

// 场景A：3 个样本全部一次成功 -> 3 成功 0 失败，3 份产物
func TestBatchRunner_AllSucceed(t *testing.T) {
	cfg := setupBatchEnv(t)
	clip := &fakeClipboard{}
	responses := [][]byte{genGrayPNG(t, 64, 64), genGrayPNG(t, 65, 64), genGrayPNG(t, 66, 64)}
	driver := &fakeDriver{
		clip: clip,
		submitHook: func(call int, images [][]byte, prompt string) error {
			// 提交把提示词留在剪贴板里，响应过两个轮询才出现
			if err := clip.SetText(prompt); err != nil {
				return err
			}
			clip.DeliverImageAfter(responses[(call-1)%len(responses)], 2)
			return nil
		},
	}

	result, err := NewBatchRunner(cfg, driver, clip).Run(context.Background(), BatchRunRequest{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Len(t, result.Outcomes, 3)
	for _, id := range []string{"a", "b", "c"} {
		assert.FileExists(t, filepath.Join(cfg.Output.Dir, id, "depth_map.png"))
	}
	assert.FileExists(t, result.SummaryPath)
	assert.FileExists(t, result.ReportPath)

	var run model.BatchRun
	require.NoError(t, db.DB.First(&run, result.RunID).Error)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.Succeeded)
}

// 场景C：最后一个样本每次尝试都停滞 -> 该样本 Failed 无产物，批次照常完成
func TestBatchRunner_OneSampleStallsBatchCompletes(t *testing.T) {
	cfg := setupBatchEnv(t)
	clip := &fakeClipboard{}
	responses := [][]byte{genGrayPNG(t, 64, 64), genGrayPNG(t, 65, 64)}
	driver := &fakeDriver{
		clip: clip,
		submitHook: func(call int, images [][]byte, prompt string) error {
			if err := clip.SetText(prompt); err != nil {
				return err
			}
			if call <= 2 {
				clip.DeliverImageAfter(responses[call-1], 2)
			}
			// 之后的提交石沉大海：剪贴板停在提示词上，区域也不变
			return nil
		},
	}

	result, err := NewBatchRunner(cfg, driver, clip).Run(context.Background(), BatchRunRequest{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, result.Outcomes, 3)

	last := result.Outcomes[2]
	assert.Equal(t, "c", last.SampleID)
	assert.Equal(t, model.TrialFailed, last.Outcome)
	assert.Equal(t, cfg.Automation.MaxRetries, last.Attempts)
	assert.NoFileExists(t, filepath.Join(cfg.Output.Dir, "c", "depth_map.png"))

	var run model.BatchRun
	require.NoError(t, db.DB.First(&run, result.RunID).Error)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
}

// 断点续跑：已有成功产物的样本不再处理
func TestBatchRunner_ResumeSkipsCompleted(t *testing.T) {
	cfg := setupBatchEnv(t)

	// 预置 a 的成功结果
	store := NewResultStore(cfg.Output.Dir)
	_, err := store.Save("a", &CapturedArtifact{PNG: genGrayPNG(t, 64, 64), Width: 64, Height: 64, Channels: 1},
		"", TrialMeta{Outcome: model.TrialSucceeded, Attempts: 1})
	require.NoError(t, err)

	clip := &fakeClipboard{}
	responses := [][]byte{genGrayPNG(t, 65, 64), genGrayPNG(t, 66, 64)}
	driver := &fakeDriver{
		clip: clip,
		submitHook: func(call int, images [][]byte, prompt string) error {
			if err := clip.SetText(prompt); err != nil {
				return err
			}
			clip.DeliverImageAfter(responses[(call-1)%len(responses)], 2)
			return nil
		},
	}

	result, err := NewBatchRunner(cfg, driver, clip).Run(context.Background(), BatchRunRequest{Resume: true})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 2, driver.submitCalls, "跳过的样本不应触发任何 UI 操作")
}

// 取消：第 2 个样本等待中取消 -> 样本2 Failed(cancelled)，样本3 不再启动
func TestBatchRunner_CancelledMidBatch(t *testing.T) {
	cfg := setupBatchEnv(t)
	clip := &fakeClipboard{}
	ctx, cancel := context.WithCancel(context.Background())
	driver := &fakeDriver{clip: clip}
	driver.submitHook = func(call int, images [][]byte, prompt string) error {
		if call == 1 {
			if err := clip.SetText(prompt); err != nil {
				return err
			}
			clip.DeliverImageAfter(genGrayPNG(t, 64, 64), 2)
			return nil
		}
		cancel() // 样本2 提交后取消，等待阶段撞上
		return nil
	}

	result, err := NewBatchRunner(cfg, driver, clip).Run(ctx, BatchRunRequest{})
	require.NoError(t, err)

	assert.True(t, result.Cancelled)
	require.Len(t, result.Outcomes, 2, "样本3 不应被启动")
	assert.Equal(t, model.TrialSucceeded, result.Outcomes[0].Outcome)
	assert.Equal(t, model.TrialFailed, result.Outcomes[1].Outcome)
	assert.Equal(t, "cancelled", result.Outcomes[1].FailureReason)

	var run model.BatchRun
	require.NoError(t, db.DB.First(&run, result.RunID).Error)
	assert.Equal(t, model.RunStatusCancelled, run.Status)
}

// 启动期失败：目标应用不存在 -> 整个批次直接放弃
func TestBatchRunner_TargetMissingAborts(t *testing.T) {
	cfg := setupBatchEnv(t)
	clip := &fakeClipboard{}
	driver := &fakeDriver{clip: clip, focusErr: ErrTargetNotFound}

	_, err := NewBatchRunner(cfg, driver, clip).Run(context.Background(), BatchRunRequest{})
	assert.ErrorIs(t, err, ErrTargetNotFound)
	assert.Zero(t, driver.submitCalls)
}
