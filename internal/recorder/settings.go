package recorder

import (
	"time"

	"github.com/riveraj33/kanvas-ios/internal/media"
)

// Default gif duration classes. TakeGIF picks one of the two per call.
const (
	DefaultGIFShort = 1 * time.Second
	DefaultGIFLong  = 3 * time.Second
)

// Settings is the construction-time bundle handed in by the capture
// setup layer. It is immutable after NewCoordinator except for Size,
// which UpdateOutputSize may replace between recordings.
type Settings struct {
	// OutputDir receives every clip and gif file the coordinator
	// allocates. Must exist and be writable.
	OutputDir string

	// Size is the initial target frame size. A zero dimension makes
	// writer setup a silent no-op until a usable size arrives.
	Size Size

	// FrameRate is used for container timing on the raw-frame path.
	// Defaults to media.DefaultFrameRate.
	FrameRate int

	// AudioSampleRate enables the mono audio track when nonzero. Zero
	// means clips are recorded video-only rather than failing.
	AudioSampleRate int

	// StitchMode selects the Stitch naming of the multi-segment video
	// mode; false selects StopMotion. The behavior is identical.
	StitchMode bool

	// ClipPixelBuffer selects the raw-frame (pixel buffer) writer for
	// stitch/stop-motion clips instead of the encoded-sample writer.
	// Set when the capture pipeline delivers filtered frames rather
	// than an encoded stream.
	ClipPixelBuffer bool

	// GIFPixelBuffer selects the raw-frame (pixel buffer) writer for
	// gif captures instead of the encoded-sample writer.
	GIFPixelBuffer bool

	// ExportStillAsClip makes the exporter render a single-still
	// sequence as a video clip instead of a plain image copy.
	ExportStillAsClip bool

	// GIFShort and GIFLong override the two gif duration classes.
	GIFShort time.Duration
	GIFLong  time.Duration
}

// withDefaults fills unset tunables. Zero Size is preserved: it is a
// meaningful "not configured yet" state, not a default to paper over.
func (s Settings) withDefaults() Settings {
	if s.FrameRate <= 0 {
		s.FrameRate = media.DefaultFrameRate
	}
	if s.GIFShort <= 0 {
		s.GIFShort = DefaultGIFShort
	}
	if s.GIFLong <= 0 {
		s.GIFLong = DefaultGIFLong
	}
	return s
}

// gifDuration returns the capture length for the requested class.
func (s Settings) gifDuration(longer bool) time.Duration {
	if longer {
		return s.GIFLong
	}
	return s.GIFShort
}

// baselineMode is the multi-segment video mode this coordinator settles
// back into after transient photo and gif captures.
func (s Settings) baselineMode() Mode {
	if s.StitchMode {
		return ModeStitch
	}
	return ModeStopMotion
}
