package frames

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"spark-backend/internal/core/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlayer completes requests on a separate goroutine, like a real media
// element, and records how requests overlap.
type fakePlayer struct {
	meta     Metadata
	loadErr  error
	seekErrs map[int]error

	onMeta   func(Metadata)
	onSeeked func()
	onError  func(error)

	mu          sync.Mutex
	current     float64
	seeks       []float64
	outstanding int32
	maxInFlight int32
	released    int32
}

func (p *fakePlayer) OnLoadedMetadata(fn func(Metadata)) { p.onMeta = fn }
func (p *fakePlayer) OnSeeked(fn func())                 { p.onSeeked = fn }
func (p *fakePlayer) OnError(fn func(error))             { p.onError = fn }

func (p *fakePlayer) Load() {
	go func() {
		if p.loadErr != nil {
			p.onError(p.loadErr)
			return
		}
		p.onMeta(p.meta)
	}()
}

func (p *fakePlayer) SeekTo(seconds float64) {
	n := atomic.AddInt32(&p.outstanding, 1)
	for {
		peak := atomic.LoadInt32(&p.maxInFlight)
		if n <= peak || atomic.CompareAndSwapInt32(&p.maxInFlight, peak, n) {
			break
		}
	}

	p.mu.Lock()
	index := len(p.seeks)
	p.seeks = append(p.seeks, seconds)
	p.mu.Unlock()

	go func() {
		if err := p.seekErrs[index]; err != nil {
			atomic.AddInt32(&p.outstanding, -1)
			p.onError(err)
			return
		}
		p.mu.Lock()
		p.current = seconds
		p.mu.Unlock()
		atomic.AddInt32(&p.outstanding, -1)
		p.onSeeked()
	}()
}

// DrawFrame paints the frame in a grey level derived from the current time so
// tests can tell frames apart.
func (p *fakePlayer) DrawFrame(dst draw.Image) error {
	p.mu.Lock()
	level := uint8(int(p.current*20) % 256)
	p.mu.Unlock()
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.Gray{Y: level}}, image.Point{}, draw.Src)
	return nil
}

func (p *fakePlayer) Release() error {
	atomic.AddInt32(&p.released, 1)
	return nil
}

func TestExtractFrameCount(t *testing.T) {
	tests := []struct {
		duration float64
		rate     float64
		want     int
	}{
		{duration: 5.0, rate: 1, want: 6},
		{duration: 5.0, rate: 2, want: 11},
		{duration: 0, rate: 1, want: 1},
		{duration: 2.5, rate: 1, want: 3},
		{duration: 1.0, rate: 3, want: 4},
	}

	for _, tc := range tests {
		player := &fakePlayer{meta: Metadata{Width: 8, Height: 6, Duration: tc.duration}}

		batch, err := Extract(context.Background(), player, tc.rate)
		require.NoError(t, err)

		assert.Equal(t, tc.want, batch.Len(), "duration=%v rate=%v", tc.duration, tc.rate)
		assert.Equal(t, int32(1), player.released)
		assert.Equal(t, int32(1), player.maxInFlight)
	}
}

func TestExtractTimestampsAreOrdered(t *testing.T) {
	player := &fakePlayer{meta: Metadata{Width: 4, Height: 4, Duration: 5}}

	batch, err := Extract(context.Background(), player, 2)
	require.NoError(t, err)

	want := []float64{0, 0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5, 5}
	assert.Equal(t, want, player.seeks)
	for i, frame := range batch.Frames {
		assert.Equal(t, want[i], frame.Timestamp)
		assert.Equal(t, "image/jpeg", frame.MIMEType)
	}
	assert.Equal(t, 5.0, batch.Duration)
}

func TestExtractEncodesFramesAtNativeSize(t *testing.T) {
	player := &fakePlayer{meta: Metadata{Width: 32, Height: 18, Duration: 1}}

	batch, err := Extract(context.Background(), player, 1)
	require.NoError(t, err)
	require.Equal(t, 2, batch.Len())

	for _, frame := range batch.Frames {
		img, err := jpeg.Decode(bytes.NewReader(frame.Data))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 32, 18), img.Bounds())
	}
	assert.NotEqual(t, batch.Frames[0].Data, batch.Frames[1].Data)
}

func TestExtractSeekFailureDiscardsFrames(t *testing.T) {
	decodeErr := errors.New("corrupt packet")
	player := &fakePlayer{
		meta:     Metadata{Width: 4, Height: 4, Duration: 5},
		seekErrs: map[int]error{3: decodeErr},
	}

	batch, err := Extract(context.Background(), player, 1)

	assert.ErrorIs(t, err, types.ErrMediaDecode)
	assert.ErrorIs(t, err, decodeErr)
	assert.Equal(t, 0, batch.Len())
	assert.Len(t, player.seeks, 4)
	assert.Equal(t, int32(1), player.released)
}

func TestExtractMetadataFailure(t *testing.T) {
	player := &fakePlayer{loadErr: errors.New("unsupported codec")}

	_, err := Extract(context.Background(), player, 1)

	assert.ErrorIs(t, err, types.ErrMediaDecode)
	assert.Empty(t, player.seeks)
	assert.Equal(t, int32(1), player.released)
}

func TestExtractRejectsUnusableMetadata(t *testing.T) {
	for _, meta := range []Metadata{
		{Width: 0, Height: 4, Duration: 1},
		{Width: 4, Height: 4, Duration: math.Inf(1)},
		{Width: 4, Height: 4, Duration: math.NaN()},
		{Width: 4, Height: 4, Duration: -1},
	} {
		player := &fakePlayer{meta: meta}
		_, err := Extract(context.Background(), player, 1)
		assert.ErrorIs(t, err, types.ErrMediaDecode)
		assert.Equal(t, int32(1), player.released)
	}
}

func TestExtractInvalidRateIsUsageError(t *testing.T) {
	for _, rate := range []float64{0, -1, math.NaN()} {
		player := &fakePlayer{meta: Metadata{Width: 4, Height: 4, Duration: 1}}
		_, err := Extract(context.Background(), player, rate)
		assert.ErrorIs(t, err, types.ErrUsage)
		assert.Equal(t, int32(1), player.released)
	}
}

type stalledPlayer struct {
	fakePlayer
}

func (p *stalledPlayer) SeekTo(seconds float64) {}

func TestExtractHonoursContext(t *testing.T) {
	player := &stalledPlayer{fakePlayer{meta: Metadata{Width: 4, Height: 4, Duration: 3}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Extract(ctx, player, 1)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, types.ErrMediaDecode)
	assert.Equal(t, int32(1), player.released)
}

func TestPendingSignal(t *testing.T) {
	s := &pendingSignal{}

	s.resolve(nil) // nothing pending, dropped

	wait, err := s.arm()
	require.NoError(t, err)

	_, err = s.arm()
	assert.ErrorIs(t, err, errRequestPending)

	s.resolve(nil)
	assert.NoError(t, <-wait)

	s.resolve(nil) // spurious, dropped

	wait, err = s.arm()
	require.NoError(t, err)
	s.resolve(errors.New("late"))
	assert.Error(t, <-wait)

	boom := errors.New("decoder died")
	s.resolve(boom)
	_, err = s.arm()
	assert.ErrorIs(t, err, boom)
}

func TestParseProbeOutput(t *testing.T) {
	meta, err := parseProbeOutput([]byte(`{"programs":[],"streams":[{"width":1280,"height":720}],"format":{"duration":"5.000000"}}`))
	require.NoError(t, err)
	assert.Equal(t, Metadata{Width: 1280, Height: 720, Duration: 5}, meta)

	_, err = parseProbeOutput([]byte(`{"streams":[],"format":{"duration":"1.0"}}`))
	assert.Error(t, err)

	_, err = parseProbeOutput([]byte(`{"streams":[{"width":1,"height":1}],"format":{"duration":"N/A"}}`))
	assert.Error(t, err)
}

func TestFrameCapacity(t *testing.T) {
	assert.Equal(t, 1, frameCapacity(0, 1))
	assert.Equal(t, 6, frameCapacity(5, 1))
	assert.Equal(t, 11, frameCapacity(5, 2))
	assert.Equal(t, maxPreallocatedFrames, frameCapacity(10*3600, 60))
	assert.Equal(t, maxPreallocatedFrames, frameCapacity(1e300, 1e300))
}
