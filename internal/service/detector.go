package service

import (
	"context"
	"fmt"
	"time"

	"depth-test/internal/config"
)

// 检测到响应的途径
const (
	SignalClipboard = "clipboard"
	SignalRegion    = "region"
)

// Detection 等待阶段的终点：通过哪个信号判定生成完成
type Detection struct {
	Signal string
}

// WaitProbe 每个轮询周期采集一次的状态快照源。
// 真实实现包着剪贴板和区域截屏；测试里注入假序列。
type WaitProbe interface {
	ClipboardHash() (string, error)
	RegionHash() (string, error)
}

// ResponseDetector 等待阶段的状态机：Submitted -> Polling -> {Detected, Stalled}。
// 界面是流式渲染且没有完成事件，完成判定只能靠两个启发式：
//  1. 剪贴板内容偏离提交前基线；
//  2. 响应区域像素先变过、之后连续 StablePolls 次不再变（渲染稳定）。
type ResponseDetector struct {
	Interval    time.Duration
	MaxWait     time.Duration
	StablePolls int

	// 可注入的时钟与休眠，单测用假时钟驱动
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewResponseDetector(cfg config.AutomationConfig) *ResponseDetector {
	return &ResponseDetector{
		Interval:    time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		MaxWait:     time.Duration(cfg.MaxWaitSec) * time.Second,
		StablePolls: cfg.StablePolls,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// WithClock 替换时钟与休眠实现（测试用）
func (d *ResponseDetector) WithClock(now func() time.Time, sleep func(ctx context.Context, dur time.Duration) error) *ResponseDetector {
	d.now = now
	d.sleep = sleep
	return d
}

// Wait 阻塞轮询直到判定完成或超时。
// clipBaseline 是提交前的剪贴板哈希；区域基线在第一次采样时取。
// 超时返回 StallError，Partial 标记超时前区域是否变化过。
func (d *ResponseDetector) Wait(ctx context.Context, probe WaitProbe, clipBaseline string) (*Detection, error) {
	stable := d.StablePolls
	if stable < 2 {
		stable = 2
	}

	start := d.now()
	regionBaseline, _ := probe.RegionHash()
	lastRegion := regionBaseline
	changed := false
	stableRun := 1

	for {
		// 每个轮询周期开头检查取消信号
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		default:
		}

		if elapsed := d.now().Sub(start); elapsed > d.MaxWait {
			return nil, &StallError{Partial: changed, Elapsed: elapsed.String()}
		}

		if err := d.sleep(ctx, d.Interval); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
		}

		// 信号一：剪贴板偏离基线（应用把结果图直接放进了剪贴板）
		if hash, err := probe.ClipboardHash(); err == nil && hash != "" && hash != clipBaseline {
			return &Detection{Signal: SignalClipboard}, nil
		}

		// 信号二：区域先变后稳
		hash, err := probe.RegionHash()
		if err != nil {
			// 单次截屏失败按瞬时抖动处理，下个周期再采
			continue
		}
		if hash == lastRegion {
			stableRun++
		} else {
			if hash != regionBaseline {
				changed = true
			}
			stableRun = 1
			lastRegion = hash
		}
		if changed && stableRun >= stable {
			return &Detection{Signal: SignalRegion}, nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
