package service

import (
	"bytes"
	"image"
	"image/png"

	// 注册常见解码器：响应图可能是 png/jpeg/gif 任意一种
	_ "image/gif"
	_ "image/jpeg"
)

// 深度图通道模式
const (
	ModeGrayscale = "grayscale"
	ModeColormap  = "colormap"
)

// 灰度判定容差：采样像素的 RGB 最大分量差不超过该值视为灰度
const grayscaleTolerance = 8

// CapturedArtifact 校验通过的提取结果，统一归一化成 PNG 再交给 ResultStore
type CapturedArtifact struct {
	PNG      []byte
	Width    int
	Height   int
	Channels int
}

// ImageExtractor 把剪贴板载荷/截屏原始字节转成合法的深度图产物。
// 校验失败都是非致命的，由状态机按重试策略处理。
type ImageExtractor struct {
	// 期望的通道模式：grayscale / colormap（按提示词模板配置）
	ExpectedMode string
}

func NewImageExtractor(expectedMode string) *ImageExtractor {
	if expectedMode == "" {
		expectedMode = ModeGrayscale
	}
	return &ImageExtractor{ExpectedMode: expectedMode}
}

// ExtractPayload 从剪贴板载荷提取（必须是图像类型）
func (e *ImageExtractor) ExtractPayload(payload *ClipboardPayload) (*CapturedArtifact, error) {
	if payload == nil || len(payload.Data) == 0 {
		return nil, &ExtractionError{Reason: "载荷为空"}
	}
	if payload.Kind != PayloadImage {
		return nil, &ExtractionError{Reason: "载荷不是图像类型: " + payload.Kind}
	}
	return e.Extract(payload.Data)
}

// Extract 解码、校验并归一化为 PNG
func (e *ImageExtractor) Extract(data []byte) (*CapturedArtifact, error) {
	if len(data) == 0 {
		return nil, &ExtractionError{Reason: "图像数据为空"}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ExtractionError{Reason: "解码失败: " + err.Error()}
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, &ExtractionError{Reason: "图像面积为零"}
	}

	channels := 3
	if isGrayscale(img) {
		channels = 1
	}
	switch e.ExpectedMode {
	case ModeGrayscale:
		if channels != 1 {
			return nil, &ExtractionError{Reason: "期望灰度深度图，拿到的是彩色图像"}
		}
	case ModeColormap:
		if channels != 3 {
			return nil, &ExtractionError{Reason: "期望彩色 colormap，拿到的是灰度图像"}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &ExtractionError{Reason: "归一化编码失败: " + err.Error()}
	}

	return &CapturedArtifact{
		PNG:      buf.Bytes(),
		Width:    w,
		Height:   h,
		Channels: channels,
	}, nil
}

// isGrayscale 按网格采样判断是否灰度图（逐像素太慢，采样足够了）
func isGrayscale(img image.Image) bool {
	bounds := img.Bounds()
	stepX := bounds.Dx() / 32
	stepY := bounds.Dy() / 32
	if stepX < 1 {
		stepX = 1
	}
	if stepY < 1 {
		stepY = 1
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := img.At(x, y).RGBA()
			r8, g8, b8 := int(r>>8), int(g>>8), int(b>>8)
			if absInt(r8-g8) > grayscaleTolerance ||
				absInt(g8-b8) > grayscaleTolerance ||
				absInt(r8-b8) > grayscaleTolerance {
				return false
			}
		}
	}
	return true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
