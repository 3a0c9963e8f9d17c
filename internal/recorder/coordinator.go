package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riveraj33/kanvas-ios/internal/media"
	"github.com/riveraj33/kanvas-ios/internal/platform/metrics"

	"github.com/google/uuid"
)

// Coordinator is the single source of truth for what is currently being
// recorded. It routes incoming frames to the active session, manages
// writer setup and teardown, and aggregates finished units into the
// segment store.
//
// Control operations (start, stop, photo, gif, cancel, reset, size
// updates) serialize on an internal mutex and may perform synchronous
// writer setup; do not call them from the frame-delivery goroutine. The
// Process* methods are the frame path: lock-free, forwarding each
// buffer as received.
type Coordinator struct {
	settings Settings
	store    *SegmentStore
	still    StillCapturer
	exporter Exporter
	log      *slog.Logger
	metrics  *metrics.Metrics

	// sink and delegate are non-owning references, wired before use.
	sink     EventSink
	delegate Delegate

	mu         sync.Mutex
	mode       Mode
	size       Size
	lastOutput string

	// gen is bumped by Reset so a finalize that was in flight across a
	// reset cannot add its segment afterwards.
	gen atomic.Uint64

	// The active sessions, read lock-free on the frame path. At most
	// one of the two is non-nil with its recording flag set.
	video atomic.Pointer[videoSession]
	gif   atomic.Pointer[gifSession]
}

// NewCoordinator returns a coordinator idle in the stitch/stop-motion
// baseline mode. still and exporter may be nil; the corresponding
// operations then settle with ErrNoCapturer / ErrNoExporter. metrics may
// be nil to disable metric recording.
func NewCoordinator(settings Settings, store *SegmentStore, still StillCapturer, exporter Exporter, log *slog.Logger, met *metrics.Metrics) *Coordinator {
	settings = settings.withDefaults()
	return &Coordinator{
		settings: settings,
		store:    store,
		still:    still,
		exporter: exporter,
		log:      log,
		metrics:  met,
		mode:     settings.baselineMode(),
		size:     settings.Size,
	}
}

// SetEventSink wires the observer receiving recorder events. Wire it
// before the coordinator is in use; the reference is non-owning.
func (c *Coordinator) SetEventSink(sink EventSink) { c.sink = sink }

// SetDelegate wires the photo override surface. Wire it before the
// coordinator is in use; the reference is non-owning.
func (c *Coordinator) SetDelegate(d Delegate) { c.delegate = d }

// SetStillCapturer wires the single-frame capture device. Exists for
// sources that consume the coordinator as their frame sink and so are
// built after it; wire before the coordinator is in use.
func (c *Coordinator) SetStillCapturer(s StillCapturer) { c.still = s }

// StartRecordingVideo begins a new clip in the stitch or stop-motion
// mode chosen at construction. A no-op while any mode is recording.
// Writer setup failures (zero target size, unwritable output path) are
// recoverable no-ops: logged, and the coordinator stays not recording.
func (c *Coordinator) StartRecordingVideo() {
	c.mu.Lock()
	if c.IsRecording() {
		c.mu.Unlock()
		return
	}

	mode := c.settings.baselineMode()
	c.mode = mode
	size := c.size

	if size.Zero() {
		c.mu.Unlock()
		c.log.Warn("skipping clip, output size has a zero dimension",
			slog.Int("width", size.Width),
			slog.Int("height", size.Height))
		return
	}

	w, path, err := c.newClipWriter(size)
	if err != nil {
		c.mu.Unlock()
		c.log.Warn("skipping clip, writer setup failed", slog.String("error", err.Error()))
		return
	}

	c.video.Store(newVideoSession(w, mode))
	c.lastOutput = path
	c.metrics.SetRecordingActive(true)
	c.mu.Unlock()

	c.log.Info("clip recording started",
		slog.String("mode", string(mode)),
		slog.String("path", path))
	c.emit(Event{Type: EventClipStarted, Mode: mode, Path: path})
}

// StopRecordingVideo finalizes the in-flight clip. The session detaches
// from the frame path immediately, so a new recording can start while
// finalize runs on its own goroutine. The returned channel delivers
// exactly one result: the clip path after its segment has been stored,
// ErrCanceled if a cancel won the race, or ErrNotRecording when nothing
// was being recorded.
func (c *Coordinator) StopRecordingVideo() <-chan ClipResult {
	c.mu.Lock()
	s := c.video.Swap(nil)
	gen := c.gen.Load()
	if s != nil {
		c.metrics.SetRecordingActive(false)
	}
	c.mu.Unlock()

	out := make(chan ClipResult, 1)
	if s == nil {
		out <- ClipResult{Err: ErrNotRecording}
		return out
	}

	done := s.stop()
	go func() {
		res := c.settleClip(gen, s.mode, <-done)
		out <- res
	}()
	return out
}

// settleClip records the outcome of a finished clip before the caller's
// completion is delivered. A finalize that lost a race against Reset
// has no segment list to join anymore; its file is removed and the
// result turns into a cancellation.
func (c *Coordinator) settleClip(gen uint64, mode Mode, res ClipResult) ClipResult {
	if res.Err == nil && c.gen.Load() != gen {
		os.Remove(res.Path)
		res = ClipResult{Err: ErrCanceled}
	}

	switch {
	case res.Err == nil:
		c.store.AddVideo(res.Path, res.Duration)
		c.metrics.IncClipsRecorded()
		c.log.Info("clip finalized",
			slog.String("path", res.Path),
			slog.Duration("duration", res.Duration))
		c.emit(Event{Type: EventClipFinished, Mode: mode, Path: res.Path, Duration: res.Duration})
	case errors.Is(res.Err, ErrCanceled):
		c.log.Info("clip discarded")
	default:
		c.log.Warn("clip finalize failed", slog.String("error", res.Err.Error()))
	}
	return res
}

// TakePhoto captures one still. While any recording mode is active the
// call is a silent no-op returning a nil channel: the completion never
// fires and the store is untouched. Otherwise the returned channel
// delivers exactly one result after the still has been captured,
// mirrored for the front position, passed through the delegate filter,
// and persisted as an image segment.
func (c *Coordinator) TakePhoto(ctx context.Context, pos Position) <-chan PhotoResult {
	c.mu.Lock()
	if c.IsRecording() {
		c.mu.Unlock()
		return nil
	}
	c.mode = ModePhoto
	c.mu.Unlock()

	out := make(chan PhotoResult, 1)
	go func() {
		res := c.capturePhoto(ctx, pos)
		c.clearTransientMode(ModePhoto)
		if res.Err == nil {
			c.metrics.IncPhotosTaken()
			c.emit(Event{Type: EventPhotoTaken, Mode: ModePhoto, Path: res.Segment.Path})
		}
		out <- res
	}()
	return out
}

// capturePhoto runs the still pipeline: capture, mirror, filter, store.
func (c *Coordinator) capturePhoto(ctx context.Context, pos Position) PhotoResult {
	if c.still == nil {
		return PhotoResult{Err: ErrNoCapturer}
	}

	var settings PhotoSettings
	if c.delegate != nil {
		settings = c.delegate.PhotoSettingsFor(pos)
	}

	img, err := c.still.CaptureStill(ctx, pos, settings)
	if err != nil {
		c.log.Warn("still capture failed", slog.String("error", err.Error()))
		return PhotoResult{Err: err}
	}
	if img == nil {
		return PhotoResult{Err: ErrNilImage}
	}

	if pos == PositionFront {
		img = mirrorHorizontally(img)
	}

	if c.delegate != nil {
		if img = c.delegate.FilterPhoto(img); img == nil {
			return PhotoResult{Err: ErrPhotoVetoed}
		}
	}

	add := <-c.store.AddImage(img, nil)
	if add.Err != nil {
		c.log.Warn("still persistence failed", slog.String("error", add.Err.Error()))
		return PhotoResult{Err: add.Err}
	}
	return PhotoResult{Image: img, Segment: add.Segment}
}

// TakeGIF records a time-bounded clip that auto-finalizes after the
// short or long duration class. While another mode is recording the
// returned channel immediately delivers ErrBusy and the store is left
// unchanged. Gif clips never enter the segment store; the finished path
// is only handed to the caller.
func (c *Coordinator) TakeGIF(longer bool) <-chan ClipResult {
	out := make(chan ClipResult, 1)

	c.mu.Lock()
	if c.IsRecording() {
		c.mu.Unlock()
		out <- ClipResult{Err: ErrBusy}
		return out
	}

	c.mode = ModeGIF
	size := c.size
	if size.Zero() {
		c.mode = c.settings.baselineMode()
		c.mu.Unlock()
		c.log.Warn("skipping gif, output size has a zero dimension")
		out <- ClipResult{Err: media.ErrZeroSize}
		return out
	}

	w, path, err := c.newGIFWriter(size)
	if err != nil {
		c.mode = c.settings.baselineMode()
		c.mu.Unlock()
		c.log.Warn("skipping gif, writer setup failed", slog.String("error", err.Error()))
		out <- ClipResult{Err: err}
		return out
	}

	target := c.settings.gifDuration(longer)
	g := newGIFSession(w, target)
	c.gif.Store(g)
	c.lastOutput = path
	c.metrics.SetRecordingActive(true)
	c.mu.Unlock()

	c.log.Info("gif capture started",
		slog.String("path", path),
		slog.Duration("target", target))
	c.emit(Event{Type: EventGIFStarted, Mode: ModeGIF, Path: path, Duration: target})

	go func() {
		res := <-g.result
		c.settleGIF(g, res)
		out <- res
	}()
	return out
}

// newClipWriter picks the clip backend per settings: the raw-frame MJPEG
// writer when ClipPixelBuffer is set, the encoded-sample FLV writer with
// the configured audio track otherwise.
func (c *Coordinator) newClipWriter(size Size) (media.Writer, string, error) {
	cfg := media.Config{
		Width:     size.Width,
		Height:    size.Height,
		FrameRate: c.settings.FrameRate,
	}

	if c.settings.ClipPixelBuffer {
		cfg.Path = c.newOutputPath("clip", "avi")
		w, err := media.NewMJPEGWriter(cfg)
		if err != nil {
			return nil, "", err
		}
		return w, cfg.Path, nil
	}

	cfg.Path = c.newOutputPath("clip", "flv")
	cfg.AudioSampleRate = c.settings.AudioSampleRate
	w, err := media.NewFLVWriter(cfg)
	if err != nil {
		return nil, "", err
	}
	return w, cfg.Path, nil
}

// newGIFWriter picks the gif backend per settings: the raw-frame MJPEG
// writer when GIFPixelBuffer is set, the encoded-sample FLV writer
// otherwise. Gif clips carry no audio either way.
func (c *Coordinator) newGIFWriter(size Size) (media.Writer, string, error) {
	cfg := media.Config{
		Width:     size.Width,
		Height:    size.Height,
		FrameRate: c.settings.FrameRate,
	}

	if c.settings.GIFPixelBuffer {
		cfg.Path = c.newOutputPath("gif", "avi")
		w, err := media.NewMJPEGWriter(cfg)
		if err != nil {
			return nil, "", err
		}
		return w, cfg.Path, nil
	}

	cfg.Path = c.newOutputPath("gif", "flv")
	w, err := media.NewFLVWriter(cfg)
	if err != nil {
		return nil, "", err
	}
	return w, cfg.Path, nil
}

// settleGIF records the outcome of a gif session before the caller's
// completion is delivered.
func (c *Coordinator) settleGIF(g *gifSession, res ClipResult) {
	c.gif.CompareAndSwap(g, nil)
	c.clearTransientMode(ModeGIF)
	c.metrics.SetRecordingActive(false)

	switch {
	case res.Err == nil:
		c.metrics.IncGIFsRecorded()
		c.log.Info("gif finalized",
			slog.String("path", res.Path),
			slog.Duration("duration", res.Duration))
		c.emit(Event{Type: EventGIFFinished, Mode: ModeGIF, Path: res.Path, Duration: res.Duration})
	case errors.Is(res.Err, ErrCanceled):
		c.metrics.IncClipsCanceled()
		c.log.Info("gif capture canceled")
		c.emit(Event{Type: EventCanceled, Mode: ModeGIF})
	default:
		c.log.Warn("gif finalize failed", slog.String("error", res.Err.Error()))
	}
}

// ProcessVideoSample routes one encoded video sample to the active
// session. Frame path: no locks, no buffering, no copies; each sample is
// forwarded as received. A no-op when nothing is recording.
func (c *Coordinator) ProcessVideoSample(s media.Sample) {
	s.Kind = media.SampleVideo
	c.forwardSample(s)
}

// ProcessAudioSample routes one encoded audio sample to the active
// session. Sessions without an audio track drop it.
func (c *Coordinator) ProcessAudioSample(s media.Sample) {
	s.Kind = media.SampleAudio
	c.forwardSample(s)
}

func (c *Coordinator) forwardSample(s media.Sample) {
	if v := c.video.Load(); v != nil {
		if err := v.processSample(s); err != nil {
			c.metrics.IncFramesDropped()
		}
		return
	}
	if g := c.gif.Load(); g != nil {
		if err := g.processSample(s); err != nil {
			c.metrics.IncFramesDropped()
		}
	}
}

// ProcessVideoFrame routes one raw frame to the active session's
// pixel-buffer path. A no-op when nothing is recording.
func (c *Coordinator) ProcessVideoFrame(f media.Frame) {
	if v := c.video.Load(); v != nil {
		if err := v.processFrame(f); err != nil {
			c.metrics.IncFramesDropped()
		}
		return
	}
	if g := c.gif.Load(); g != nil {
		if err := g.processFrame(f); err != nil {
			c.metrics.IncFramesDropped()
		}
	}
}

// CancelRecording discards whatever is in flight: a clip writer's
// partial output is removed, a pending gif future settles with
// ErrCanceled. Safe to invoke concurrently with an in-flight finalize;
// a session already finalizing keeps its outcome.
func (c *Coordinator) CancelRecording() {
	c.mu.Lock()
	v := c.video.Swap(nil)
	if v != nil {
		c.metrics.SetRecordingActive(false)
	}
	c.mu.Unlock()

	if v != nil {
		v.cancel()
		c.metrics.IncClipsCanceled()
		c.log.Info("clip recording canceled")
		c.emit(Event{Type: EventCanceled, Mode: v.mode})
	}

	if g := c.gif.Load(); g != nil {
		g.cancel() // outcome settles through the gif future
	}
}

// AddSegment appends a prebuilt segment to the store.
func (c *Coordinator) AddSegment(seg Segment) { c.store.Add(seg) }

// DeleteSegment removes the segment at index, optionally deleting its
// backing file.
func (c *Coordinator) DeleteSegment(index int, removeFromDisk bool) error {
	return c.store.Delete(index, removeFromDisk)
}

// MoveSegment reorders the segment at from to position to.
func (c *Coordinator) MoveSegment(from, to int) error {
	return c.store.Move(from, to)
}

// Segments returns the ordered segment list.
func (c *Coordinator) Segments() []Segment { return c.store.Segments() }

// SegmentCount returns the number of stored segments.
func (c *Coordinator) SegmentCount() int { return c.store.Len() }

// TotalDuration reports the accumulated duration of stored segments.
func (c *Coordinator) TotalDuration() time.Duration { return c.store.TotalDuration() }

// Reset starts over: cancels anything in flight, clears the store
// including backing files, and drops the last output path so the next
// recording begins from a fresh target.
func (c *Coordinator) Reset() {
	c.gen.Add(1)
	c.CancelRecording()
	c.store.Reset(true)

	c.mu.Lock()
	c.lastOutput = ""
	c.mode = c.settings.baselineMode()
	c.mu.Unlock()

	c.log.Info("recorder reset")
	c.emit(Event{Type: EventReset})
}

// UpdateOutputSize replaces the target frame size used by future
// sessions. Rejected while recording; an in-flight session keeps the
// size it started with.
func (c *Coordinator) UpdateOutputSize(size Size) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.IsRecording() {
		c.log.Warn("ignoring output size update while recording",
			slog.Int("width", size.Width),
			slog.Int("height", size.Height))
		return
	}
	c.size = size
}

// Interrupt handles the host application moving to the background: a
// gif capture is canceled outright and its partial output discarded; a
// stitch or stop-motion clip is stopped through the normal graceful
// path, so its segment is preserved when finalize succeeds.
func (c *Coordinator) Interrupt() {
	if g := c.gif.Load(); g != nil && g.recording.Load() {
		c.log.Info("interrupted while capturing gif, canceling")
		g.cancel()
	}
	if v := c.video.Load(); v != nil && v.recording.Load() {
		c.log.Info("interrupted while recording clip, stopping")
		c.StopRecordingVideo()
	}
}

// ExportRecording merges the current ordered segment list into a single
// artifact via the export collaborator. The returned channel delivers
// exactly one result; failures carry the error for the caller's own
// retry-or-cancel policy.
func (c *Coordinator) ExportRecording(ctx context.Context) <-chan ExportResult {
	out := make(chan ExportResult, 1)
	if c.exporter == nil {
		out <- ExportResult{Err: ErrNoExporter}
		return out
	}

	segments := c.store.Segments()
	go func() {
		c.metrics.IncExports()
		path, err := c.exporter.Merge(ctx, segments)
		if err != nil {
			c.metrics.IncExportFailures()
			c.log.Warn("export merge failed", slog.String("error", err.Error()))
			out <- ExportResult{Err: err}
			return
		}

		c.log.Info("export merged",
			slog.String("path", path),
			slog.Int("segments", len(segments)))
		c.emit(Event{Type: EventExported, Path: path})
		out <- ExportResult{Path: path}
	}()
	return out
}

// IsRecording reports whether the current mode's session is actively
// capturing. Never true for more than one mode at a time.
func (c *Coordinator) IsRecording() bool {
	if v := c.video.Load(); v != nil && v.recording.Load() {
		return true
	}
	if g := c.gif.Load(); g != nil && g.recording.Load() {
		return true
	}
	return false
}

// Mode returns the current recording mode.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Size returns the target frame size future sessions will use.
func (c *Coordinator) Size() Size {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// OutputURL returns the output path of the most recent writer-backed
// session; false before any session has been set up or after a reset.
func (c *Coordinator) OutputURL() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOutput, c.lastOutput != ""
}

// CurrentClipDuration reports the elapsed time of the in-flight clip or
// gif capture; false while nothing is recording.
func (c *Coordinator) CurrentClipDuration() (time.Duration, bool) {
	if v := c.video.Load(); v != nil {
		if d, ok := v.clipDuration(); ok {
			return d, ok
		}
	}
	if g := c.gif.Load(); g != nil {
		if d, ok := g.clipDuration(); ok {
			return d, ok
		}
	}
	return 0, false
}

// clearTransientMode returns mode to the stitch/stop-motion baseline
// once a transient photo or gif operation settles, unless another
// operation has already claimed the mode.
func (c *Coordinator) clearTransientMode(m Mode) {
	c.mu.Lock()
	if c.mode == m {
		c.mode = c.settings.baselineMode()
	}
	c.mu.Unlock()
}

func (c *Coordinator) emit(ev Event) {
	if c.sink != nil {
		c.sink.Publish(ev)
	}
}

// newOutputPath allocates a fresh unique output file path per clip.
func (c *Coordinator) newOutputPath(prefix, ext string) string {
	name := fmt.Sprintf("%s-%s.%s", prefix, uuid.NewString(), ext)
	return filepath.Join(c.settings.OutputDir, name)
}
