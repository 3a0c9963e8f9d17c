package capture

import (
	"context"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/riveraj33/kanvas-ios/internal/media"
	"github.com/riveraj33/kanvas-ios/internal/recorder"
)

// ErrAlreadyStarted is returned by Start on a source that is running.
var ErrAlreadyStarted = errors.New("capture: source already started")

// barPalette is the color-bar sequence of the test pattern, brightest
// to darkest like broadcast bars.
var barPalette = []color.RGBA{
	{R: 235, G: 235, B: 235, A: 255},
	{R: 235, G: 235, B: 16, A: 255},
	{R: 16, G: 235, B: 235, A: 255},
	{R: 16, G: 235, B: 16, A: 255},
	{R: 235, G: 16, B: 235, A: 255},
	{R: 235, G: 16, B: 16, A: 255},
	{R: 16, G: 16, B: 235, A: 255},
}

// Synthetic generates a moving color-bar test pattern at a fixed rate on
// a dedicated goroutine. Frames are delivered to the sink's raw-frame
// path as they are produced; if the consumer is slow, ticks are dropped
// rather than queued. It doubles as the still capturer for photo mode,
// so a daemon can run the full recording surface with no camera at all.
type Synthetic struct {
	sink Sink
	size recorder.Size
	fps  int
	log  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	frames atomic.Uint64
}

// NewSynthetic returns a stopped source. fps defaults to
// media.DefaultFrameRate when not positive.
func NewSynthetic(sink Sink, size recorder.Size, fps int, log *slog.Logger) *Synthetic {
	if fps <= 0 {
		fps = media.DefaultFrameRate
	}
	return &Synthetic{sink: sink, size: size, fps: fps, log: log}
}

// Start begins frame generation and returns immediately. The source runs
// until Stop or until ctx is canceled.
func (s *Synthetic) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.log.Info("synthetic capture started",
		slog.Int("width", s.size.Width),
		slog.Int("height", s.size.Height),
		slog.Int("fps", s.fps))

	go s.run(ctx, s.done)
	return nil
}

// Stop ends frame generation and waits for the generator goroutine to
// exit. Idempotent; a no-op on a stopped source.
func (s *Synthetic) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("synthetic capture stopped", slog.Uint64("frames", s.frames.Load()))
}

func (s *Synthetic) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n := s.frames.Add(1)
			s.sink.ProcessVideoFrame(media.Frame{
				Image:     testPattern(s.size.Width, s.size.Height, int(n)),
				Timestamp: now.Sub(start),
			})
		}
	}
}

// CaptureStill implements recorder.StillCapturer with the pattern at its
// current shift, so stills line up with the surrounding motion.
func (s *Synthetic) CaptureStill(ctx context.Context, _ recorder.Position, _ recorder.PhotoSettings) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.size.Zero() {
		return nil, media.ErrZeroSize
	}
	return testPattern(s.size.Width, s.size.Height, int(s.frames.Load())), nil
}

// FramesGenerated reports how many frames the source has produced.
func (s *Synthetic) FramesGenerated() uint64 { return s.frames.Load() }

// testPattern renders vertical color bars scrolled left by shift pixels,
// so consecutive frames visibly move.
func testPattern(width, height, shift int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	barWidth := width / len(barPalette)
	if barWidth < 1 {
		barWidth = 1
	}
	for x := 0; x < width; x++ {
		bar := ((x + shift) / barWidth) % len(barPalette)
		c := barPalette[bar]
		for y := 0; y < height; y++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
