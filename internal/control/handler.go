package control

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/riveraj33/kanvas-ios/internal/export"
	"github.com/riveraj33/kanvas-ios/internal/media"
	"github.com/riveraj33/kanvas-ios/internal/recorder"
)

// Handler exposes the recording core's HTTP endpoints using go-chi.
// Domain counters live in the coordinator itself, so the handler only
// maps operations to status codes.
type Handler struct {
	rec *recorder.Coordinator
	log *slog.Logger
}

// NewHandler returns a Handler driving the given coordinator.
func NewHandler(rec *recorder.Coordinator, log *slog.Logger) *Handler {
	return &Handler{rec: rec, log: log}
}

// Routes builds the recording API router. The event feed is mounted
// separately by the caller, next to whichever hub it wires as the
// coordinator's event sink.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/status", h.Status)
	r.Route("/recording", func(r chi.Router) {
		r.Post("/start", h.StartClip)
		r.Post("/stop", h.StopClip)
		r.Post("/cancel", h.CancelClip)
		r.Post("/photo", h.TakePhoto)
		r.Post("/gif", h.TakeGIF)
		r.Post("/size", h.UpdateSize)
	})
	r.Route("/segments", func(r chi.Router) {
		r.Get("/", h.ListSegments)
		r.Post("/", h.AddSegment)
		r.Delete("/{index}", h.DeleteSegment)
		r.Post("/{index}/move", h.MoveSegment)
	})
	r.Post("/reset", h.ResetRecorder)
	r.Post("/export", h.Export)

	return r
}

// StartClip handles POST /recording/start. Recording begins in the
// configured stitch or stop-motion mode; the clip is delivered by a
// later POST /recording/stop.
func (h *Handler) StartClip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if h.rec.IsRecording() {
		writeError(w, http.StatusConflict, "already recording")
		return
	}

	h.rec.StartRecordingVideo()
	if !h.rec.IsRecording() {
		// Setup was skipped: unset output size or a writer failure,
		// both logged by the recorder.
		writeError(w, http.StatusConflict, "recording not started")
		return
	}

	path, _ := h.rec.OutputURL()
	writeJSON(w, http.StatusAccepted, startResponse{
		Status: "recording",
		Mode:   string(h.rec.Mode()),
		Path:   path,
	})
}

// StopClip handles POST /recording/stop. Blocks until the in-flight
// clip finalizes and its segment is stored.
func (h *Handler) StopClip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	res := <-h.rec.StopRecordingVideo()
	if res.Err != nil {
		switch res.Err {
		case recorder.ErrNotRecording, recorder.ErrCanceled:
			h.log.Info("stop rejected", slog.String("error", res.Err.Error()))
			writeError(w, http.StatusConflict, res.Err.Error())
			return
		default:
			h.log.Error("stop clip failed", slog.String("error", res.Err.Error()))
			writeError(w, http.StatusInternalServerError, "finalize failed")
			return
		}
	}

	writeJSON(w, http.StatusOK, clipResponse{
		Path:     res.Path,
		Duration: res.Duration.Seconds(),
	})
}

// CancelClip handles POST /recording/cancel. Discards whatever is in
// flight; a no-op when nothing is recording.
func (h *Handler) CancelClip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	h.rec.CancelRecording()
	writeJSON(w, http.StatusOK, statusOnly{Status: "canceled"})
}

// TakePhoto handles POST /recording/photo.
// Body (optional): { "position": "front" | "back" }.
func (h *Handler) TakePhoto(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req photoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		h.log.Debug("invalid photo body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	pos, ok := parsePosition(req.Position)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown position")
		return
	}

	future := h.rec.TakePhoto(r.Context(), pos)
	if future == nil {
		writeError(w, http.StatusConflict, "recording in progress")
		return
	}

	res := <-future
	if res.Err != nil {
		switch res.Err {
		case recorder.ErrPhotoVetoed:
			h.log.Info("photo vetoed", slog.String("position", string(pos)))
			writeError(w, http.StatusUnprocessableEntity, res.Err.Error())
			return
		case recorder.ErrNoCapturer:
			writeError(w, http.StatusServiceUnavailable, res.Err.Error())
			return
		default:
			h.log.Error("photo capture failed", slog.String("error", res.Err.Error()))
			writeError(w, http.StatusInternalServerError, "capture failed")
			return
		}
	}

	writeJSON(w, http.StatusCreated, photoResponse{Path: res.Segment.Path})
}

// TakeGIF handles POST /recording/gif.
// Body (optional): { "longer": true }.
// Capture runs for the class duration on its own; the response is 202
// and completion arrives on the event feed.
func (h *Handler) TakeGIF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req gifRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		h.log.Debug("invalid gif body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	future := h.rec.TakeGIF(req.Longer)

	// Setup failures are delivered before TakeGIF returns; a pending
	// future means the capture is running.
	select {
	case res := <-future:
		if res.Err != nil {
			switch res.Err {
			case recorder.ErrBusy:
				writeError(w, http.StatusConflict, res.Err.Error())
				return
			case media.ErrZeroSize:
				writeError(w, http.StatusConflict, res.Err.Error())
				return
			default:
				h.log.Error("gif setup failed", slog.String("error", res.Err.Error()))
				writeError(w, http.StatusInternalServerError, "gif setup failed")
				return
			}
		}
		writeJSON(w, http.StatusOK, clipResponse{
			Path:     res.Path,
			Duration: res.Duration.Seconds(),
		})
	default:
		path, _ := h.rec.OutputURL()
		writeJSON(w, http.StatusAccepted, startResponse{
			Status: "capturing",
			Mode:   string(recorder.ModeGIF),
			Path:   path,
		})
	}
}

// UpdateSize handles POST /recording/size.
// Body: { "width": 720, "height": 1280 }.
func (h *Handler) UpdateSize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var size recorder.Size
	if err := json.NewDecoder(r.Body).Decode(&size); err != nil {
		h.log.Debug("invalid size body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if size.Zero() {
		writeError(w, http.StatusBadRequest, "width and height must be positive")
		return
	}
	if h.rec.IsRecording() {
		writeError(w, http.StatusConflict, "size is locked while recording")
		return
	}

	h.rec.UpdateOutputSize(size)
	writeJSON(w, http.StatusOK, size)
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	size := h.rec.Size()
	resp := statusResponse{
		Recording:     h.rec.IsRecording(),
		Mode:          string(h.rec.Mode()),
		Width:         size.Width,
		Height:        size.Height,
		SegmentCount:  h.rec.SegmentCount(),
		TotalDuration: h.rec.TotalDuration().Seconds(),
	}
	if path, ok := h.rec.OutputURL(); ok {
		resp.OutputPath = path
	}
	if d, ok := h.rec.CurrentClipDuration(); ok {
		resp.ClipDuration = d.Seconds()
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListSegments handles GET /segments.
func (h *Handler) ListSegments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	segments := h.rec.Segments()
	resp := segmentsResponse{
		Segments:      make([]segmentResponse, 0, len(segments)),
		TotalDuration: h.rec.TotalDuration().Seconds(),
	}
	for i, seg := range segments {
		resp.Segments = append(resp.Segments, toSegmentResponse(i, seg))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddSegment handles POST /segments. Registers a prebuilt file as a
// segment without copying it.
// Body: { "kind": "video", "path": "/clips/intro.mp4", "duration": 2.0 }.
func (h *Handler) AddSegment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req addSegmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid segment body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	kind, ok := parseKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be image or video")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	h.rec.AddSegment(recorder.Segment{
		Kind:     kind,
		Path:     req.Path,
		Duration: time.Duration(req.Duration * float64(time.Second)),
		Meta:     req.Meta,
	})

	h.log.Debug("segment added",
		slog.String("kind", req.Kind),
		slog.String("path", req.Path))
	writeJSON(w, http.StatusCreated, countResponse{Count: h.rec.SegmentCount()})
}

// DeleteSegment handles DELETE /segments/{index}. The backing file is
// deleted with the segment unless ?remove=false.
func (h *Handler) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	removeFromDisk := true
	if q := r.URL.Query().Get("remove"); q != "" {
		removeFromDisk, err = strconv.ParseBool(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "remove must be a boolean")
			return
		}
	}

	if err := h.rec.DeleteSegment(index, removeFromDisk); err != nil {
		switch err {
		case recorder.ErrIndexOutOfRange:
			writeError(w, http.StatusNotFound, err.Error())
			return
		default:
			h.log.Error("delete segment failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "delete failed")
			return
		}
	}

	h.log.Debug("segment deleted", slog.Int("index", index))
	writeJSON(w, http.StatusOK, countResponse{Count: h.rec.SegmentCount()})
}

// MoveSegment handles POST /segments/{index}/move.
// Body: { "to": 2 }.
func (h *Handler) MoveSegment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	from, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid move body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.rec.MoveSegment(from, req.To); err != nil {
		switch err {
		case recorder.ErrIndexOutOfRange:
			writeError(w, http.StatusNotFound, err.Error())
			return
		default:
			h.log.Error("move segment failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "move failed")
			return
		}
	}

	h.log.Debug("segment moved", slog.Int("from", from), slog.Int("to", req.To))
	writeJSON(w, http.StatusOK, statusOnly{Status: "moved"})
}

// ResetRecorder handles POST /reset. Cancels anything in flight and
// clears the store including backing files.
func (h *Handler) ResetRecorder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	h.rec.Reset()
	writeJSON(w, http.StatusOK, statusOnly{Status: "reset"})
}

// Export handles POST /export. Blocks until the merge finishes.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	res := <-h.rec.ExportRecording(r.Context())
	if res.Err != nil {
		switch res.Err {
		case recorder.ErrNoExporter:
			writeError(w, http.StatusServiceUnavailable, res.Err.Error())
			return
		case export.ErrNoSegments:
			writeError(w, http.StatusConflict, res.Err.Error())
			return
		default:
			h.log.Error("export failed", slog.String("error", res.Err.Error()))
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
	}

	writeJSON(w, http.StatusOK, exportResponse{Path: res.Path})
}

func parsePosition(s string) (recorder.Position, bool) {
	switch s {
	case "", string(recorder.PositionBack):
		return recorder.PositionBack, true
	case string(recorder.PositionFront):
		return recorder.PositionFront, true
	}
	return "", false
}

func parseKind(s string) (recorder.SegmentKind, bool) {
	switch s {
	case string(recorder.SegmentImage):
		return recorder.SegmentImage, true
	case string(recorder.SegmentVideo):
		return recorder.SegmentVideo, true
	}
	return "", false
}
