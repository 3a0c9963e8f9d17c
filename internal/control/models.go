package control

import (
	"encoding/json"
	"net/http"

	"github.com/riveraj33/kanvas-ios/internal/recorder"
)

// Request and response bodies for the recording API. Durations cross
// the wire as seconds.

type photoRequest struct {
	Position string `json:"position"`
}

type gifRequest struct {
	Longer bool `json:"longer"`
}

type addSegmentRequest struct {
	Kind     string            `json:"kind"`
	Path     string            `json:"path"`
	Duration float64           `json:"duration,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
}

type moveRequest struct {
	To int `json:"to"`
}

type startResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
	Path   string `json:"path,omitempty"`
}

type clipResponse struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
}

type photoResponse struct {
	Path string `json:"path"`
}

type exportResponse struct {
	Path string `json:"path"`
}

type statusOnly struct {
	Status string `json:"status"`
}

type countResponse struct {
	Count int `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Recording     bool    `json:"recording"`
	Mode          string  `json:"mode"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	OutputPath    string  `json:"output_path,omitempty"`
	ClipDuration  float64 `json:"clip_duration,omitempty"`
	SegmentCount  int     `json:"segment_count"`
	TotalDuration float64 `json:"total_duration"`
}

type segmentResponse struct {
	Index    int               `json:"index"`
	Kind     string            `json:"kind"`
	Path     string            `json:"path"`
	Duration float64           `json:"duration,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
}

type segmentsResponse struct {
	Segments      []segmentResponse `json:"segments"`
	TotalDuration float64           `json:"total_duration"`
}

func toSegmentResponse(index int, seg recorder.Segment) segmentResponse {
	return segmentResponse{
		Index:    index,
		Kind:     string(seg.Kind),
		Path:     seg.Path,
		Duration: seg.Duration.Seconds(),
		Meta:     seg.Meta,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
