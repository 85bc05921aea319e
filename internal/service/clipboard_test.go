package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBytes(t *testing.T) {
	assert.Empty(t, HashBytes(nil))
	assert.Empty(t, HashBytes([]byte{}))

	a := HashBytes([]byte("深度图"))
	b := HashBytes([]byte("深度图"))
	c := HashBytes([]byte("另一张"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestWaitForChange_ReturnsNewPayload(t *testing.T) {
	clip := &fakeClipboard{}
	require.NoError(t, clip.SetText("基线内容"))
	baseline, err := clip.Snapshot()
	require.NoError(t, err)

	img := genGrayPNG(t, 16, 16)
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = clip.SetImage(img)
	}()

	payload, err := WaitForChange(context.Background(), clip, baseline,
		time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, PayloadImage, payload.Kind)
	assert.Equal(t, HashBytes(img), payload.Hash)
}

func TestWaitForChange_TimesOutAsStall(t *testing.T) {
	clip := &fakeClipboard{}
	require.NoError(t, clip.SetText("不变的内容"))
	baseline, err := clip.Snapshot()
	require.NoError(t, err)

	_, err = WaitForChange(context.Background(), clip, baseline,
		time.Millisecond, 20*time.Millisecond)

	var stall *StallError
	require.ErrorAs(t, err, &stall)
	assert.False(t, stall.Partial)
}

func TestWaitForChange_Cancelled(t *testing.T) {
	clip := &fakeClipboard{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WaitForChange(ctx, clip, "", time.Millisecond, time.Second)
	assert.ErrorIs(t, err, ErrCancelled)
}
