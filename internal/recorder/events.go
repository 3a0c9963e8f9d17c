package recorder

import (
	"context"
	"image"
	"time"
)

// EventType names a recorder state change.
type EventType string

const (
	EventClipStarted  EventType = "clip_started"
	EventClipFinished EventType = "clip_finished"
	EventPhotoTaken   EventType = "photo_taken"
	EventGIFStarted   EventType = "gif_started"
	EventGIFFinished  EventType = "gif_finished"
	EventCanceled     EventType = "recording_canceled"
	EventExported     EventType = "exported"
	EventReset        EventType = "reset"
)

// Event describes one recorder state change.
type Event struct {
	Type     EventType     `json:"type"`
	Mode     Mode          `json:"mode,omitempty"`
	Path     string        `json:"path,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// EventSink receives recorder events. Publish is called inline from the
// coordinator's operations and must not block. The coordinator holds the
// sink as a non-owning reference; wire it with SetEventSink before use.
type EventSink interface {
	Publish(Event)
}

// PhotoSettings is the per-capture override bundle handed to the still
// capturer. The zero value means capturer defaults.
type PhotoSettings struct {
	FlashEnabled bool
	Quality      int // JPEG quality 1-100, 0 = capturer default
}

// Delegate is the override surface the owning layer may provide. The
// coordinator holds it as a non-owning reference; wire it with
// SetDelegate before use.
type Delegate interface {
	// PhotoSettingsFor overrides capture settings for one shot.
	PhotoSettingsFor(pos Position) PhotoSettings

	// FilterPhoto post-processes a captured still before it is stored.
	// Returning nil vetoes the capture: no segment is added and the
	// caller receives ErrPhotoVetoed.
	FilterPhoto(img image.Image) image.Image
}

// StillCapturer is the single-frame capture device dependency. One call
// produces exactly one image or an error; no state persists between
// calls.
type StillCapturer interface {
	CaptureStill(ctx context.Context, pos Position, s PhotoSettings) (image.Image, error)
}

// Exporter merges an ordered segment list into a single artifact and
// returns its path. The merge contract is the coordinator's whole
// knowledge of the export collaborator.
type Exporter interface {
	Merge(ctx context.Context, segments []Segment) (string, error)
}
