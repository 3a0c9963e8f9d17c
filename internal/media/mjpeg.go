package media

import (
	"bytes"
	"image"
	"image/jpeg"
	"os"
	"sync"
	"time"

	"github.com/icza/mjpeg"
	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"
)

// frameJPEGQuality is used when encoding raw frames into MJPEG clips.
const frameJPEGQuality = 85

// MJPEGWriter writes raw frames into an MJPEG AVI container. This is the
// pixel-buffer writer path: each frame is scaled to the target size and
// JPEG-encoded. The container is video-only by nature, so encoded samples
// are dropped.
type MJPEGWriter struct {
	mu    sync.Mutex
	state writerState

	path   string
	avi    mjpeg.AviWriter
	width  int
	height int
	fps    int

	frames  int
	created time.Time
}

// NewMJPEGWriter creates the AVI output sized to cfg.Width x cfg.Height.
// The returned writer owns cfg.Path until Finalize or Cancel.
func NewMJPEGWriter(cfg Config) (*MJPEGWriter, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrZeroSize
	}

	fps := cfg.FrameRate
	if fps <= 0 {
		fps = DefaultFrameRate
	}

	avi, err := mjpeg.New(cfg.Path, int32(cfg.Width), int32(cfg.Height), int32(fps))
	if err != nil {
		return nil, errors.Wrap(err, "media: create avi output")
	}

	return &MJPEGWriter{
		path:    cfg.Path,
		avi:     avi,
		width:   cfg.Width,
		height:  cfg.Height,
		fps:     fps,
		created: time.Now(),
	}, nil
}

// WriteFrame implements Writer.WriteFrame. Frames not matching the
// target size are scaled before encoding; nil images are dropped.
func (w *MJPEGWriter) WriteFrame(f Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != stateOpen {
		return ErrWriterClosed
	}
	if f.Image == nil {
		return nil
	}

	img := f.Image
	if b := img.Bounds(); b.Dx() != w.width || b.Dy() != w.height {
		dst := image.NewRGBA(image.Rect(0, 0, w.width, w.height))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: frameJPEGQuality}); err != nil {
		return errors.Wrap(err, "media: encode frame")
	}
	if err := w.avi.AddFrame(buf.Bytes()); err != nil {
		return errors.Wrap(err, "media: add frame")
	}

	w.frames++
	return nil
}

// WriteSample implements Writer.WriteSample. Encoded samples have no
// place in an MJPEG container and are dropped.
func (w *MJPEGWriter) WriteSample(Sample) error { return nil }

// Duration implements Writer.Duration: frames over the frame rate once
// frames have been written, wall time since creation before that.
func (w *MJPEGWriter) Duration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.frames > 0 {
		return time.Duration(w.frames) * time.Second / time.Duration(w.fps)
	}
	return time.Since(w.created)
}

// Path implements Writer.Path.
func (w *MJPEGWriter) Path() string { return w.path }

// Finalize implements Writer.Finalize: writes the AVI index and closes
// the file, leaving a playable clip at Path.
func (w *MJPEGWriter) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case stateCanceled:
		return ErrCanceled
	case stateFinalized:
		return nil
	}
	w.state = stateFinalized

	if err := w.avi.Close(); err != nil {
		return errors.Wrap(err, "media: close avi")
	}
	return nil
}

// Cancel implements Writer.Cancel: abandons the index and removes the
// partial file.
func (w *MJPEGWriter) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case stateFinalized, stateCanceled:
		return nil
	}
	w.state = stateCanceled

	_ = w.avi.Close()
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "media: remove partial avi")
	}
	return nil
}
