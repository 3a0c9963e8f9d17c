package recorder

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/riveraj33/kanvas-ios/internal/media"
)

// gifSession is the time-bounded capture session: it accepts frames for
// a fixed target duration, then auto-finalizes without an explicit stop
// from the caller. Explicit cancellation races the timer; a compare-and-
// swap on settled guarantees exactly one outcome reaches the result
// channel.
type gifSession struct {
	writer  media.Writer
	started time.Time

	// recording gates the frame path, like videoSession.
	recording atomic.Bool
	// settled flips once, to whichever of timer-fire or cancel wins.
	settled atomic.Bool

	timer  *time.Timer
	result chan ClipResult
}

// newGIFSession starts the auto-stop timer immediately; the session is
// accepting frames when this returns.
func newGIFSession(w media.Writer, target time.Duration) *gifSession {
	g := &gifSession{
		writer:  w,
		started: time.Now(),
		result:  make(chan ClipResult, 1),
	}
	g.recording.Store(true)
	g.timer = time.AfterFunc(target, g.finish)
	return g
}

// processSample forwards one encoded sample while capturing.
func (g *gifSession) processSample(smp media.Sample) error {
	if !g.recording.Load() {
		return nil
	}
	return g.writer.WriteSample(smp)
}

// processFrame forwards one raw frame while capturing.
func (g *gifSession) processFrame(f media.Frame) error {
	if !g.recording.Load() {
		return nil
	}
	return g.writer.WriteFrame(f)
}

// finish is the timer path: finalize the writer and deliver the clip.
func (g *gifSession) finish() {
	if !g.settled.CompareAndSwap(false, true) {
		return
	}
	g.recording.Store(false)

	duration := g.writer.Duration()
	if err := g.writer.Finalize(); err != nil {
		if errors.Is(err, media.ErrCanceled) {
			err = ErrCanceled
		}
		g.result <- ClipResult{Err: err}
		return
	}
	g.result <- ClipResult{Path: g.writer.Path(), Duration: duration}
}

// cancel is the explicit path: discard output and deliver ErrCanceled to
// the pending completion. A no-op if the timer already fired.
func (g *gifSession) cancel() {
	if !g.settled.CompareAndSwap(false, true) {
		return
	}
	g.timer.Stop()
	g.recording.Store(false)

	g.writer.Cancel()
	g.result <- ClipResult{Err: ErrCanceled}
}

// clipDuration reports elapsed capture time, valid only while capturing.
func (g *gifSession) clipDuration() (time.Duration, bool) {
	if !g.recording.Load() {
		return 0, false
	}
	return g.writer.Duration(), true
}
