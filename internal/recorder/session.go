package recorder

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/riveraj33/kanvas-ios/internal/media"
)

var (
	// ErrNotRecording is delivered when stop is requested with no
	// active session.
	ErrNotRecording = errors.New("recorder: not recording")

	// ErrBusy is delivered when an operation cannot run because another
	// mode is recording.
	ErrBusy = errors.New("recorder: another mode is recording")

	// ErrCanceled is the distinct outcome of a canceled recording.
	ErrCanceled = errors.New("recorder: recording canceled")
)

// videoSession is the per-clip handler: it owns one writer for the
// duration of one clip and forwards samples to it while recording. A
// session lingers after stop until its finalize completes, but the
// coordinator detaches it from the frame path first, so a stale session
// never sees new frames.
type videoSession struct {
	writer  media.Writer
	mode    Mode
	started time.Time

	// recording gates the frame path. Cleared before finalize begins.
	recording atomic.Bool
}

func newVideoSession(w media.Writer, mode Mode) *videoSession {
	s := &videoSession{writer: w, mode: mode, started: time.Now()}
	s.recording.Store(true)
	return s
}

// processSample forwards one encoded sample while recording. Hot path:
// one atomic load, then the writer's own buffered write.
func (s *videoSession) processSample(smp media.Sample) error {
	if !s.recording.Load() {
		return nil
	}
	return s.writer.WriteSample(smp)
}

// processFrame forwards one raw frame while recording.
func (s *videoSession) processFrame(f media.Frame) error {
	if !s.recording.Load() {
		return nil
	}
	return s.writer.WriteFrame(f)
}

// stop ends the clip: the recording flag drops immediately, finalize
// runs on its own goroutine, and the returned channel delivers exactly
// one result once the writer has settled. A second stop on the same
// session delivers ErrNotRecording.
func (s *videoSession) stop() <-chan ClipResult {
	ch := make(chan ClipResult, 1)
	if !s.recording.CompareAndSwap(true, false) {
		ch <- ClipResult{Err: ErrNotRecording}
		return ch
	}

	go func() {
		duration := s.writer.Duration()
		if err := s.writer.Finalize(); err != nil {
			if errors.Is(err, media.ErrCanceled) {
				err = ErrCanceled
			}
			ch <- ClipResult{Err: err}
			return
		}
		ch <- ClipResult{Path: s.writer.Path(), Duration: duration}
	}()
	return ch
}

// cancel discards the clip. Safe concurrently with an in-flight stop:
// the writer resolves the race to a single outcome.
func (s *videoSession) cancel() {
	s.recording.Store(false)
	s.writer.Cancel()
}

// clipDuration reports elapsed clip time, valid only while recording.
func (s *videoSession) clipDuration() (time.Duration, bool) {
	if !s.recording.Load() {
		return 0, false
	}
	return s.writer.Duration(), true
}
