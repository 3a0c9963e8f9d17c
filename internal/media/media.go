// Package media implements the writer-backed session layer: file-writing
// pipelines that accept encoded samples or raw frames for one clip and
// produce a playable artifact on finalize.
package media

import (
	"errors"
	"image"
	"time"
)

// SampleKind distinguishes the two encoded sample streams a writer accepts.
type SampleKind uint8

const (
	// SampleVideo is an encoded video sample (H.264-in-FLV semantics).
	SampleVideo SampleKind = iota
	// SampleAudio is an encoded audio sample (AAC semantics).
	SampleAudio
)

// Sample is one encoded media buffer as delivered by the capture pipeline.
// Data is forwarded as received; writers must not retain it past the call.
type Sample struct {
	Kind      SampleKind
	Data      []byte
	Timestamp time.Duration // media time since the start of the stream
	Keyframe  bool          // video only
	SeqHeader bool          // codec sequence header (AVC/AAC config), not a frame
}

// Frame is one raw picture from the capture pipeline, used by the
// pixel-buffer writer path.
type Frame struct {
	Image     image.Image
	Timestamp time.Duration
}

var (
	// ErrWriterClosed is returned when samples or frames arrive after a
	// writer has been finalized or canceled.
	ErrWriterClosed = errors.New("media: writer closed")

	// ErrCanceled reports that a writer was canceled and its partial
	// output discarded.
	ErrCanceled = errors.New("media: writer canceled")
)

// Writer is a writer-backed session: it accepts samples and/or frames for
// exactly one clip and owns the output file until Finalize or Cancel.
//
// WriteSample and WriteFrame are called from the frame-delivery goroutine
// and must not block beyond the writer's own buffered file I/O. Finalize
// and Cancel may be called from any goroutine; whichever lands first wins
// and the loser is a no-op. Cancel removes the partial file.
type Writer interface {
	// WriteSample appends one encoded sample. Unsupported sample kinds
	// are dropped, not errors (a video-only writer ignores audio).
	WriteSample(s Sample) error

	// WriteFrame appends one raw frame. Writers that only accept encoded
	// samples drop frames silently.
	WriteFrame(f Frame) error

	// Duration reports the media time covered by written samples so far,
	// falling back to wall time since creation when nothing has been
	// written yet.
	Duration() time.Duration

	// Path returns the output file path the writer was created with.
	Path() string

	// Finalize closes the output and makes it playable. Returns
	// ErrCanceled if Cancel won the race.
	Finalize() error

	// Cancel discards the clip: closes the writer and removes the
	// partial output file. Idempotent; a no-op after Finalize.
	Cancel() error
}

// Config carries the parameters shared by all writer constructors.
type Config struct {
	// Path is the output file location. The parent directory must exist.
	Path string

	// Width and Height are the target frame size. Constructors reject a
	// zero dimension; callers are expected to skip setup instead.
	Width  int
	Height int

	// FrameRate is used by raw-frame writers for container timing.
	// Defaults to DefaultFrameRate when zero.
	FrameRate int

	// AudioSampleRate enables the audio track when nonzero. A zero rate
	// means the session proceeds video-only rather than failing.
	AudioSampleRate int
}

const (
	// DefaultFrameRate is assumed for raw-frame writers when the
	// capture layer does not report one.
	DefaultFrameRate = 30

	// AudioBitrate is the fixed mono audio bitrate written to clips.
	AudioBitrate = 64_000
)

// ErrZeroSize is returned by writer constructors given a zero dimension.
// Callers treat it as "skip setup", not as a failure to surface.
var ErrZeroSize = errors.New("media: target size has a zero dimension")
