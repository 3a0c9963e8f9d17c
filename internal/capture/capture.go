// Package capture implements the frame sources feeding the recording
// core: a synthetic test-pattern generator for development and an RTMP
// ingest server accepting a live encoder feed. Sources push into a Sink
// on their own goroutines; they never buffer on behalf of the consumer.
package capture

import (
	"github.com/riveraj33/kanvas-ios/internal/media"
)

// Sink consumes capture output. *recorder.Coordinator satisfies it; the
// interface carries exactly the frame-routing capability sources need,
// nothing of the recording control surface.
type Sink interface {
	// ProcessVideoSample delivers one encoded video sample.
	ProcessVideoSample(s media.Sample)

	// ProcessAudioSample delivers one encoded audio sample.
	ProcessAudioSample(s media.Sample)

	// ProcessVideoFrame delivers one raw frame.
	ProcessVideoFrame(f media.Frame)
}
