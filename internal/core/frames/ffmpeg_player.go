package frames

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

type FFmpegOptions struct {
	FFmpegPath  string
	FFprobePath string
}

func (o FFmpegOptions) withDefaults() FFmpegOptions {
	if o.FFmpegPath == "" {
		o.FFmpegPath = "ffmpeg"
	}
	if o.FFprobePath == "" {
		o.FFprobePath = "ffprobe"
	}
	return o
}

// FFmpegPlayer implements Player on top of the ffprobe and ffmpeg binaries.
// Each Load or SeekTo runs the tool on a background goroutine and reports
// through the registered callbacks.
type FFmpegPlayer struct {
	opts     FFmpegOptions
	path     string
	tempFile bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	onMeta   func(Metadata)
	onSeeked func()
	onError  func(error)
	current  image.Image
}

var _ Player = (*FFmpegPlayer)(nil)

func NewFFmpegPlayer(path string, opts FFmpegOptions) *FFmpegPlayer {
	ctx, cancel := context.WithCancel(context.Background())
	return &FFmpegPlayer{
		opts:   opts.withDefaults(),
		path:   path,
		ctx:    ctx,
		cancel: cancel,
	}
}

// NewTempFFmpegPlayer copies the video into a temporary file owned by the
// player. The file is removed by Release.
func NewTempFFmpegPlayer(video io.Reader, opts FFmpegOptions) (*FFmpegPlayer, error) {
	file, err := os.CreateTemp("", "spark-video-*")
	if err != nil {
		return nil, fmt.Errorf("error creating temp file for video: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, video); err != nil {
		os.Remove(file.Name())
		return nil, fmt.Errorf("error writing video to temp file: %w", err)
	}

	player := NewFFmpegPlayer(file.Name(), opts)
	player.tempFile = true
	return player, nil
}

func (p *FFmpegPlayer) OnLoadedMetadata(fn func(Metadata)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onMeta = fn
}

func (p *FFmpegPlayer) OnSeeked(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSeeked = fn
}

func (p *FFmpegPlayer) OnError(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

func (p *FFmpegPlayer) Load() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		meta, err := p.probe()
		if err != nil {
			p.fail(err)
			return
		}

		p.mu.Lock()
		fn := p.onMeta
		p.mu.Unlock()
		if fn != nil {
			fn(meta)
		}
	}()
}

func (p *FFmpegPlayer) SeekTo(seconds float64) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		frame, err := p.grab(seconds)
		if err != nil {
			p.fail(err)
			return
		}

		p.mu.Lock()
		// Seeking past the last decodable frame leaves the previous frame showing.
		if frame != nil {
			p.current = frame
		}
		hasFrame := p.current != nil
		fn := p.onSeeked
		p.mu.Unlock()

		if !hasFrame {
			p.fail(fmt.Errorf("no frame decoded at %.3fs", seconds))
			return
		}
		if fn != nil {
			fn()
		}
	}()
}

func (p *FFmpegPlayer) DrawFrame(dst draw.Image) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return errors.New("no frame has been decoded")
	}
	draw.Draw(dst, dst.Bounds(), p.current, p.current.Bounds().Min, draw.Src)
	return nil
}

func (p *FFmpegPlayer) Release() error {
	p.cancel()
	p.wg.Wait()

	if p.tempFile {
		if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("error removing temp video %s: %w", p.path, err)
		}
	}
	return nil
}

func (p *FFmpegPlayer) fail(err error) {
	p.mu.Lock()
	fn := p.onError
	p.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (p *FFmpegPlayer) probe() (Metadata, error) {
	cmd := exec.CommandContext(p.ctx, p.opts.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		p.path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe failed: %w: %s", err, stderr.String())
	}
	return parseProbeOutput(out)
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbeOutput(data []byte) (Metadata, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return Metadata{}, fmt.Errorf("error parsing ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return Metadata{}, errors.New("no video stream found")
	}

	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return Metadata{}, fmt.Errorf("invalid duration '%s': %w", probe.Format.Duration, err)
	}

	return Metadata{
		Width:    probe.Streams[0].Width,
		Height:   probe.Streams[0].Height,
		Duration: duration,
	}, nil
}

// grab decodes the frame shown at seconds. It returns a nil image when the
// position is past the last frame.
func (p *FFmpegPlayer) grab(seconds float64) (image.Image, error) {
	cmd := exec.CommandContext(p.ctx, p.opts.FFmpegPath,
		"-v", "error",
		"-ss", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-i", p.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed at %.3fs: %w: %s", seconds, err, stderr.String())
	}
	if len(out) == 0 {
		return nil, nil
	}

	frame, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("error decoding frame at %.3fs: %w", seconds, err)
	}
	return frame, nil
}
