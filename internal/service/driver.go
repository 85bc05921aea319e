package service

import (
	"bytes"
	"fmt"
	"image/png"
	"runtime"

	"depth-test/internal/config"

	"github.com/go-vgo/robotgo"
)

// UIDriver 对外部聊天界面的底层操作。只做动作，不懂实验语义。
type UIDriver interface {
	// FocusTarget 把目标窗口带到前台；应用没在运行返回 ErrTargetNotFound
	FocusTarget() error
	// NewChat 新建会话（Cmd/Ctrl+N）
	NewChat() error
	// SubmitImagesAndPrompt 一次完整提交：依次贴图（few-shot 示例 + 待测图）-> 贴文本 -> 发送。
	// 任一步失败返回带步骤标记的 SubmissionError
	SubmitImagesAndPrompt(images [][]byte, prompt string) error
	// CaptureRegion 截取响应面板区域，返回 PNG 字节（图片没进剪贴板也能拿到）
	CaptureRegion() ([]byte, error)
	// CopyResponseImage 右键响应图片并点“拷贝图像”，把结果图送进剪贴板
	CopyResponseImage() error
}

// RobotDriver 基于 robotgo 的真实实现。粘贴走系统剪贴板，所以依赖 ClipboardBridge。
type RobotDriver struct {
	target config.TargetConfig
	clip   ClipboardBridge
	// 各步之间的落定延迟（毫秒），界面响应慢时调大
	stepDelayMS int
}

func NewRobotDriver(target config.TargetConfig, clip ClipboardBridge, stepDelayMS int) *RobotDriver {
	if stepDelayMS <= 0 {
		stepDelayMS = 1000
	}
	return &RobotDriver{target: target, clip: clip, stepDelayMS: stepDelayMS}
}

func (d *RobotDriver) FocusTarget() error {
	pids, err := robotgo.FindIds(d.target.AppName)
	if err != nil || len(pids) == 0 {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, d.target.AppName)
	}
	if err := robotgo.ActivePid(pids[0]); err != nil {
		return fmt.Errorf("激活窗口失败: %w", err)
	}
	robotgo.MilliSleep(d.stepDelayMS)
	return nil
}

func (d *RobotDriver) NewChat() error {
	if err := d.FocusTarget(); err != nil {
		return err
	}
	if err := robotgo.KeyTap("n", modifierKey()); err != nil {
		return &SubmissionError{Step: StepNewChat, Err: err}
	}
	robotgo.MilliSleep(d.stepDelayMS)
	return nil
}

func (d *RobotDriver) SubmitImagesAndPrompt(images [][]byte, prompt string) error {
	if err := d.FocusTarget(); err != nil {
		return err
	}

	// 依次贴图
	for _, img := range images {
		if err := d.clip.SetImage(img); err != nil {
			return &SubmissionError{Step: StepPasteImage, Err: err}
		}
		robotgo.MilliSleep(d.stepDelayMS / 2)
		if err := robotgo.KeyTap("v", modifierKey()); err != nil {
			return &SubmissionError{Step: StepPasteImage, Err: err}
		}
		// 图片上传需要时间，等久一点
		robotgo.MilliSleep(d.stepDelayMS * 3)
	}

	// 贴提示词
	if err := d.clip.SetText(prompt); err != nil {
		return &SubmissionError{Step: StepPasteText, Err: err}
	}
	robotgo.MilliSleep(d.stepDelayMS / 2)
	if err := robotgo.KeyTap("v", modifierKey()); err != nil {
		return &SubmissionError{Step: StepPasteText, Err: err}
	}
	robotgo.MilliSleep(d.stepDelayMS)

	// 发送
	if err := robotgo.KeyTap("enter"); err != nil {
		return &SubmissionError{Step: StepSend, Err: err}
	}
	return nil
}

func (d *RobotDriver) CaptureRegion() ([]byte, error) {
	r := d.target.ResponseRegion
	img, err := robotgo.CaptureImg(r.X, r.Y, r.W, r.H)
	if err != nil {
		return nil, fmt.Errorf("截屏失败: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("截屏编码失败: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *RobotDriver) CopyResponseImage() error {
	if err := d.FocusTarget(); err != nil {
		return err
	}
	r := d.target.ResponseRegion
	off := d.target.CopyImageOffset
	// 右键响应区域中心，再点偏移处的“拷贝图像”菜单项
	cx, cy := r.X+r.W/2, r.Y+r.H/2
	robotgo.Move(cx, cy)
	robotgo.MilliSleep(200)
	robotgo.Click("right")
	robotgo.MilliSleep(500)
	robotgo.Move(cx+off.X, cy+off.Y)
	robotgo.MilliSleep(200)
	robotgo.Click()
	robotgo.MilliSleep(d.stepDelayMS)
	return nil
}

func modifierKey() string {
	if runtime.GOOS == "darwin" {
		return "cmd"
	}
	return "ctrl"
}
