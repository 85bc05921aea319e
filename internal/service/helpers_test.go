package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"depth-test/internal/config"
	"depth-test/internal/db"

	"github.com/stretchr/testify/require"
)

// setupTestDB 用临时 sqlite 库初始化全局 db.DB
func setupTestDB(t *testing.T) {
	t.Helper()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, db.InitDB(cfg))
}

// genGrayPNG 生成一张灰度渐变测试图
func genGrayPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// genColorPNG 生成一张彩色测试图（模拟 colormap 输出）
func genColorPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeClipboard 进程内假剪贴板。DeliverImageAfter 可以在之后第 n 次快照时
// 才把“响应图”写进来，模拟真实时序：提交先污染剪贴板（贴图/贴文本），
// 响应过一会儿才出现。
type fakeClipboard struct {
	mu        sync.Mutex
	payload   *ClipboardPayload
	snapshots int
	pending   []byte
	deliverAt int
}

// DeliverImageAfter 预约在 polls 次快照之后投递一张响应图
func (f *fakeClipboard) DeliverImageAfter(png []byte, polls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = png
	f.deliverAt = f.snapshots + polls
}

func (f *fakeClipboard) SetText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payload = &ClipboardPayload{Kind: PayloadText, Data: []byte(text), Hash: HashBytes([]byte(text))}
	return nil
}

func (f *fakeClipboard) SetImage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payload = &ClipboardPayload{Kind: PayloadImage, Data: data, Hash: HashBytes(data)}
	return nil
}

func (f *fakeClipboard) Get() (*ClipboardPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payload == nil {
		return nil, ErrClipboardEmpty
	}
	p := *f.payload
	return &p, nil
}

func (f *fakeClipboard) Snapshot() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	if f.pending != nil && f.snapshots >= f.deliverAt {
		f.payload = &ClipboardPayload{Kind: PayloadImage, Data: f.pending, Hash: HashBytes(f.pending)}
		f.pending = nil
	}
	if f.payload == nil {
		return "", nil
	}
	return f.payload.Hash, nil
}

// fakeDriver 假 UI 驱动：submitHook 决定每次提交的行为（含把“响应图”写进剪贴板的副作用）
type fakeDriver struct {
	clip        *fakeClipboard
	regionData  []byte
	regionHook  func() []byte
	focusErr    error
	submitCalls int
	newChats    int
	copyCalls   int
	submitHook  func(call int, images [][]byte, prompt string) error
}

func (f *fakeDriver) FocusTarget() error { return f.focusErr }

func (f *fakeDriver) NewChat() error {
	f.newChats++
	return nil
}

func (f *fakeDriver) SubmitImagesAndPrompt(images [][]byte, prompt string) error {
	f.submitCalls++
	if f.submitHook != nil {
		return f.submitHook(f.submitCalls, images, prompt)
	}
	return nil
}

func (f *fakeDriver) CaptureRegion() ([]byte, error) {
	if f.regionHook != nil {
		return f.regionHook(), nil
	}
	return f.regionData, nil
}

func (f *fakeDriver) CopyResponseImage() error {
	f.copyCalls++
	return nil
}

// seqProbe 按预置序列吐快照的假轮询源（超出序列后停在最后一个值）
type seqProbe struct {
	clipSeq   []string
	regionSeq []string
	clipIdx   int
	regionIdx int
}

func (p *seqProbe) ClipboardHash() (string, error) {
	return pick(p.clipSeq, &p.clipIdx), nil
}

func (p *seqProbe) RegionHash() (string, error) {
	return pick(p.regionSeq, &p.regionIdx), nil
}

func pick(seq []string, idx *int) string {
	if len(seq) == 0 {
		return ""
	}
	i := *idx
	if i >= len(seq) {
		i = len(seq) - 1
	}
	*idx++
	return seq[i]
}

// fakeClock 假时钟：sleep 直接把时间拨快
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return nil
}
