// Package recorder implements the recording core: a coordinator that
// multiplexes a live capture pipeline into photo, multi-segment video,
// and gif recording modes, the per-clip writer sessions behind them, and
// the ordered segment store that collects their output.
package recorder

import (
	"image"
	"time"
)

// Mode identifies which recording mode is current. Stitch and StopMotion
// are the same multi-segment video mode under two names, selected by
// Settings.StitchMode; Photo and GIF are transient.
type Mode string

const (
	ModePhoto      Mode = "photo"
	ModeStopMotion Mode = "stop_motion"
	ModeStitch     Mode = "stitch"
	ModeGIF        Mode = "gif"
)

// SegmentKind tags a segment as a still image or a video clip.
type SegmentKind string

const (
	SegmentImage SegmentKind = "image"
	SegmentVideo SegmentKind = "video"
)

// StillSegmentDuration is the fixed presentation time a still image
// contributes when segments are merged into a clip.
const StillSegmentDuration = 500 * time.Millisecond

// Segment is one recorded unit contributing to the final composed
// output: a still image or a video clip. Immutable once stored; the
// store owns the backing file at Path.
type Segment struct {
	Kind     SegmentKind       `json:"kind"`
	Path     string            `json:"path"`
	Duration time.Duration     `json:"duration,omitempty"` // zero for stills
	Meta     map[string]string `json:"meta,omitempty"`     // opaque overlay metadata

	// Metadata managed by the store (not exposed in the API).
	AddedAt time.Time `json:"-"` // when this segment was stored
}

// Size is the target frame size used when setting up a writer.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Zero reports whether either dimension is unusable. Writer setup is
// skipped for zero sizes rather than failing.
func (s Size) Zero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Position identifies which capture device a still comes from. Stills
// from the front position are mirrored horizontally before storage.
type Position string

const (
	PositionFront Position = "front"
	PositionBack  Position = "back"
)

// ClipResult is delivered when a video or gif session settles: the
// finalized clip path and duration, or the error that ended it.
// A canceled session reports ErrCanceled.
type ClipResult struct {
	Path     string
	Duration time.Duration
	Err      error
}

// PhotoResult is delivered when a still capture settles.
type PhotoResult struct {
	Image   image.Image
	Segment Segment
	Err     error
}

// ExportResult is delivered when an export merge settles.
type ExportResult struct {
	Path string
	Err  error
}
