package service

import (
	"errors"
	"fmt"
)

// 错误分类：哪些可重试、哪些直接终止整个批次，由状态机按这里的类型判断
var (
	// ErrTargetNotFound 目标应用窗口不存在（启动期致命）
	ErrTargetNotFound = errors.New("目标应用未运行")
	// ErrClipboardUnavailable 剪贴板无法获取（启动期致命；单次读写失败按瞬时处理）
	ErrClipboardUnavailable = errors.New("剪贴板不可用")
	// ErrClipboardEmpty 剪贴板里没有可用内容
	ErrClipboardEmpty = errors.New("剪贴板为空")
	// ErrCancelled 运行被取消
	ErrCancelled = errors.New("运行已取消")
)

// 提交流程的分步标记，重试策略按失败的步骤决定从哪里重来
const (
	StepPasteImage = "paste_image"
	StepPasteText  = "paste_text"
	StepSend       = "send"
	StepNewChat    = "new_chat"
)

// SubmissionError 提交失败（粘贴图片/粘贴文本/发送 任一步）
type SubmissionError struct {
	Step string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("提交失败（步骤 %s）: %v", e.Step, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// StallError 等待超时。Partial 区分“完全没动静”（多半是提交没生效，需要重新提交）
// 和“动了一半就停了”（多半是渲染被截断，重新等即可）
type StallError struct {
	Partial bool
	Elapsed string
}

func (e *StallError) Error() string {
	if e.Partial {
		return fmt.Sprintf("等待超时（有部分变化，疑似渲染截断，已等待 %s）", e.Elapsed)
	}
	return fmt.Sprintf("等待超时（内容毫无变化，疑似提交失败，已等待 %s）", e.Elapsed)
}

// ExtractionError 捕获到的内容无法提取为合法深度图
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("图像提取失败: %s", e.Reason)
}

// PersistenceError 结果落盘失败（仅该样本致命，批次继续）
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("结果持久化失败: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
