package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"golang.design/x/clipboard"
)

// 剪贴板内容类型
const (
	PayloadText  = "text"
	PayloadImage = "image"
)

// ClipboardPayload 一次剪贴板读取的快照。系统剪贴板随时可能被别的进程覆盖，
// 读到的内容只在当下有效，调用方用 Hash 与提交前基线比对来识别陈旧数据。
type ClipboardPayload struct {
	Kind string
	Data []byte
	Hash string
}

// ClipboardBridge 系统剪贴板的读写抽象（测试里用假实现替换）
type ClipboardBridge interface {
	SetText(text string) error
	SetImage(png []byte) error
	// Get 优先返回图像内容，没有图像时退回文本；两者都没有返回 ErrClipboardEmpty
	Get() (*ClipboardPayload, error)
	// Snapshot 返回当前内容的哈希（空内容返回空串），供基线/轮询比较
	Snapshot() (string, error)
}

// HashBytes 内容哈希（剪贴板与截屏区域共用同一种指纹）
func HashBytes(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// SystemClipboard 基于 golang.design/x/clipboard 的真实实现
type SystemClipboard struct{}

// NewSystemClipboard 初始化系统剪贴板；拿不到剪贴板（无显示环境/被占用）时返回
// ErrClipboardUnavailable，由启动流程当作致命错误
func NewSystemClipboard() (*SystemClipboard, error) {
	if err := clipboard.Init(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClipboardUnavailable, err)
	}
	return &SystemClipboard{}, nil
}

func (s *SystemClipboard) SetText(text string) error {
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

func (s *SystemClipboard) SetImage(png []byte) error {
	clipboard.Write(clipboard.FmtImage, png)
	return nil
}

func (s *SystemClipboard) Get() (*ClipboardPayload, error) {
	if data := clipboard.Read(clipboard.FmtImage); len(data) > 0 {
		return &ClipboardPayload{Kind: PayloadImage, Data: data, Hash: HashBytes(data)}, nil
	}
	if data := clipboard.Read(clipboard.FmtText); len(data) > 0 {
		return &ClipboardPayload{Kind: PayloadText, Data: data, Hash: HashBytes(data)}, nil
	}
	return nil, ErrClipboardEmpty
}

func (s *SystemClipboard) Snapshot() (string, error) {
	payload, err := s.Get()
	if err != nil {
		if err == ErrClipboardEmpty {
			return "", nil
		}
		return "", err
	}
	return payload.Hash, nil
}

// WaitForChange 轮询剪贴板直到内容哈希偏离 baseline 或超时。
// 界面不提供完成回调，这是依赖剪贴板取结果的路径（捕获阶段的右键拷贝）
// 能等到新内容的唯一原语。
func WaitForChange(ctx context.Context, bridge ClipboardBridge, baseline string, interval, timeout time.Duration) (*ClipboardPayload, error) {
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		default:
		}

		hash, err := bridge.Snapshot()
		if err == nil && hash != "" && hash != baseline {
			return bridge.Get()
		}

		if elapsed := time.Since(start); elapsed > timeout {
			return nil, &StallError{Partial: false, Elapsed: elapsed.String()}
		}
		time.Sleep(interval)
	}
}
