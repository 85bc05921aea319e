package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"depth-test/internal/db"
	"depth-test/internal/model"
)

// RestartFrom 重试时从哪个阶段重来
type RestartFrom int

const (
	// RestartSubmit 整个提交重做（重新贴图发送）
	RestartSubmit RestartFrom = iota
	// RestartWait 只重新等待（提交已生效，疑似渲染被截断）
	RestartWait
	// RestartNone 不重试，样本直接判失败
	RestartNone
)

// RetryPolicy 按失败原因决定重试起点。这是整个流水线里唯一不那么显然的策略，
// 做成可替换函数便于单独调参和测试。
type RetryPolicy func(err error) RestartFrom

// DefaultRetryPolicy 默认策略：
//   - 提交失败 / 毫无变化的超时 / 提取失败 -> 从提交重来
//   - 有部分变化的超时 -> 只重新等待
//   - 取消 / 持久化失败 -> 不重试
func DefaultRetryPolicy(err error) RestartFrom {
	var stall *StallError
	if errors.As(err, &stall) {
		if stall.Partial {
			return RestartWait
		}
		return RestartSubmit
	}
	var persist *PersistenceError
	if errors.Is(err, ErrCancelled) || errors.As(err, &persist) {
		return RestartNone
	}
	return RestartSubmit
}

// TrialOutcome 单个样本的终态
type TrialOutcome struct {
	SampleID      string `json:"sample_id"`
	Outcome       string `json:"outcome"`
	Attempts      int    `json:"attempts"`
	FailureReason string `json:"failure_reason,omitempty"`
	ArtifactPath  string `json:"artifact_path,omitempty"`
}

// TrialRunner 驱动单个样本走完 提交 -> 等待 -> 捕获 -> 校验 -> 落盘，
// 带有界重试。UI 会话是独占资源，同一时刻只会有一个 trial 在跑。
type TrialRunner struct {
	driver   UIDriver
	clip     ClipboardBridge
	detector *ResponseDetector
	store    *ResultStore

	maxRetries       int
	backoffBase      time.Duration
	backoffFactor    float64
	backoffCap       time.Duration
	newChatPerSample bool

	retryPolicy RetryPolicy
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

func NewTrialRunner(driver UIDriver, clip ClipboardBridge, detector *ResponseDetector, store *ResultStore,
	maxRetries int, backoffBase time.Duration, backoffFactor float64, backoffCap time.Duration,
	newChatPerSample bool) *TrialRunner {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &TrialRunner{
		driver:           driver,
		clip:             clip,
		detector:         detector,
		store:            store,
		maxRetries:       maxRetries,
		backoffBase:      backoffBase,
		backoffFactor:    backoffFactor,
		backoffCap:       backoffCap,
		newChatPerSample: newChatPerSample,
		retryPolicy:      DefaultRetryPolicy,
		sleep:            sleepCtx,
		now:              time.Now,
	}
}

// WithRetryPolicy 替换重试策略（调参/测试用）
func (r *TrialRunner) WithRetryPolicy(policy RetryPolicy) *TrialRunner {
	r.retryPolicy = policy
	return r
}

// WithClock 替换休眠与时钟实现（测试用）
func (r *TrialRunner) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *TrialRunner {
	r.now = now
	r.sleep = sleep
	return r
}

// trialProbe 真实轮询源：剪贴板哈希 + 响应区域截屏哈希
type trialProbe struct {
	clip   ClipboardBridge
	driver UIDriver
}

func (p *trialProbe) ClipboardHash() (string, error) {
	return p.clip.Snapshot()
}

func (p *trialProbe) RegionHash() (string, error) {
	data, err := p.driver.CaptureRegion()
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// RunTrial 跑完一个样本，总是返回终态（Succeeded/Failed），错误都在内部分类消化。
func (r *TrialRunner) RunTrial(ctx context.Context, runID uint, sample Sample, prompt *PromptBundle) TrialOutcome {
	started := r.now()

	images, err := r.loadImages(sample, prompt)
	if err != nil {
		return r.fail(runID, sample.ID, prompt.Template, 1, started, fmt.Sprintf("读取输入图片失败: %v", err))
	}

	extractor := NewImageExtractor(prompt.Mode)
	probe := &trialProbe{clip: r.clip, driver: r.driver}

	attempt := 1
	from := RestartSubmit
	baseline := ""

	for {
		select {
		case <-ctx.Done():
			return r.fail(runID, sample.ID, prompt.Template, attempt, started, "cancelled")
		default:
		}

		if from == RestartSubmit {
			r.logStage(runID, sample.ID, attempt, "submitting", "")
			if r.newChatPerSample {
				// 新建会话失败不致命，继续在当前会话里发（原脚本同款容忍）
				if err := r.driver.NewChat(); err != nil {
					log.Printf("[trial] sample=%s 新建会话失败，继续当前会话: %v", sample.ID, err)
				}
			}
			if err := r.driver.SubmitImagesAndPrompt(images, prompt.Text); err != nil {
				if next, failReason := r.nextAttempt(ctx, err, &attempt); next == RestartNone {
					return r.fail(runID, sample.ID, prompt.Template, attempt, started, failReason)
				}
				from = RestartSubmit
				continue
			}
			// 基线必须在提交之后取：提交流程的最后一步是把提示词贴进剪贴板，
			// 提交前的快照会把这次粘贴误判成响应
			baseline, _ = r.clip.Snapshot()
		}

		r.logStage(runID, sample.ID, attempt, "waiting", "")
		det, err := r.detector.Wait(ctx, probe, baseline)
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return r.fail(runID, sample.ID, prompt.Template, attempt, started, "cancelled")
			}
			next, failReason := r.nextAttempt(ctx, err, &attempt)
			if next == RestartNone {
				return r.fail(runID, sample.ID, prompt.Template, attempt, started, failReason)
			}
			from = next
			continue
		}

		r.logStage(runID, sample.ID, attempt, "capturing", det.Signal)
		artifact, responseText, err := r.capture(ctx, det, extractor, baseline)
		if err != nil {
			next, failReason := r.nextAttempt(ctx, err, &attempt)
			if next == RestartNone {
				return r.fail(runID, sample.ID, prompt.Template, attempt, started, failReason)
			}
			from = next
			continue
		}

		r.logStage(runID, sample.ID, attempt, "finalize", "")
		rec, err := r.store.Save(sample.ID, artifact, responseText, TrialMeta{
			RunID:      runID,
			Template:   prompt.Template,
			Attempts:   attempt,
			Outcome:    model.TrialSucceeded,
			StartedAt:  started,
			FinishedAt: r.now(),
		})
		if err != nil {
			// 持久化失败仅该样本致命，批次继续
			return r.fail(runID, sample.ID, prompt.Template, attempt, started, err.Error())
		}

		return TrialOutcome{
			SampleID:     sample.ID,
			Outcome:      model.TrialSucceeded,
			Attempts:     attempt,
			ArtifactPath: rec.ArtifactPath,
		}
	}
}

// capture 按检测信号取回结果图并校验。
// 剪贴板信号直接读剪贴板；区域稳定信号先尝试右键拷贝图像，拿不到新内容再退回区域截屏。
func (r *TrialRunner) capture(ctx context.Context, det *Detection, extractor *ImageExtractor, baseline string) (*CapturedArtifact, string, error) {
	responseText := ""

	if det.Signal == SignalClipboard {
		payload, err := r.clip.Get()
		if err != nil {
			return nil, "", &ExtractionError{Reason: "读取剪贴板失败: " + err.Error()}
		}
		if payload.Kind == PayloadImage {
			artifact, err := extractor.ExtractPayload(payload)
			return artifact, "", err
		}
		// 剪贴板里是文本回答，结果图从响应区域截取
		responseText = string(payload.Data)
	} else {
		// 右键“拷贝图像”后等菜单动作落到剪贴板；等不到偏离基线的新内容
		// 说明菜单没点中（读到的只会是陈旧内容），退回区域截屏
		if err := r.driver.CopyResponseImage(); err == nil {
			payload, err := WaitForChange(ctx, r.clip, baseline, r.detector.Interval, 3*r.detector.Interval)
			if err == nil && payload.Kind == PayloadImage {
				if artifact, err := extractor.ExtractPayload(payload); err == nil {
					return artifact, responseText, nil
				}
			}
		}
	}

	data, err := r.driver.CaptureRegion()
	if err != nil {
		return nil, responseText, &ExtractionError{Reason: "区域截屏失败: " + err.Error()}
	}
	artifact, err := extractor.Extract(data)
	return artifact, responseText, err
}

// nextAttempt 统一的重试推进：分类 -> 计数 -> 退避。
// 返回 RestartNone 表示该样本到此为止（附失败原因）。
func (r *TrialRunner) nextAttempt(ctx context.Context, cause error, attempt *int) (RestartFrom, string) {
	next := r.retryPolicy(cause)
	if next == RestartNone {
		return RestartNone, cause.Error()
	}

	if *attempt >= r.maxRetries {
		return RestartNone, fmt.Sprintf("重试耗尽（%d 次）: %v", r.maxRetries, cause)
	}

	delay := r.backoffFor(*attempt)
	log.Printf("[trial] 第 %d 次尝试失败，%s 后重试: %v", *attempt, delay, cause)
	// 退避期间被取消时不算新一次尝试，attempts 只计真正打到界面上的次数
	if err := r.sleep(ctx, delay); err != nil {
		return RestartNone, "cancelled"
	}
	*attempt++
	return next, ""
}

// backoffFor 指数退避：base * factor^(attempt-1)，封顶 cap
func (r *TrialRunner) backoffFor(attempt int) time.Duration {
	d := time.Duration(float64(r.backoffBase) * math.Pow(r.backoffFactor, float64(attempt-1)))
	if d > r.backoffCap {
		d = r.backoffCap
	}
	return d
}

func (r *TrialRunner) fail(runID uint, sampleID, template string, attempts int, started time.Time, reason string) TrialOutcome {
	if _, err := r.store.RecordFailure(sampleID, TrialMeta{
		RunID:         runID,
		Template:      template,
		Attempts:      attempts,
		Outcome:       model.TrialFailed,
		FailureReason: reason,
		StartedAt:     started,
		FinishedAt:    r.now(),
	}); err != nil {
		log.Printf("[trial] sample=%s 记录失败状态时出错: %v", sampleID, err)
	}
	return TrialOutcome{
		SampleID:      sampleID,
		Outcome:       model.TrialFailed,
		Attempts:      attempts,
		FailureReason: reason,
	}
}

// loadImages 组装要粘贴的图片序列：few-shot 示例对在前，待测 RGB 图最后
func (r *TrialRunner) loadImages(sample Sample, prompt *PromptBundle) ([][]byte, error) {
	var images [][]byte
	for _, pair := range prompt.FewShot {
		for _, p := range []string{pair.ImagePath, pair.DepthPath} {
			data, err := os.ReadFile(p)
			if err != nil {
				// few-shot 示例缺失不阻塞主流程
				log.Printf("[trial] few-shot 示例读取失败，跳过: %v", err)
				continue
			}
			images = append(images, data)
		}
	}
	main, err := os.ReadFile(sample.ImagePath)
	if err != nil {
		return nil, err
	}
	return append(images, main), nil
}

// logStage 记录尝试阶段到 TrialLog（没有数据库时静默跳过，方便单测）
func (r *TrialRunner) logStage(runID uint, sampleID string, attempt int, stage, detail string) {
	if db.DB == nil {
		return
	}
	_ = db.DB.Create(&model.TrialLog{
		RunID:    runID,
		SampleID: sampleID,
		Attempt:  attempt,
		Stage:    stage,
		Detail:   detail,
	}).Error
}
