package capture

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	flvtag "github.com/yutopp/go-flv/tag"
	"github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"

	"github.com/riveraj33/kanvas-ios/internal/media"
	"github.com/riveraj33/kanvas-ios/internal/recorder"
)

// RTMPServer ingests a live encoder feed. A publisher's FLV video and
// audio tags are decoded into media samples and pushed into the sink on
// the connection's read goroutine, which is the frame-delivery goroutine
// of the recording core. One publisher holds the feed at a time; play
// requests are rejected, this is an ingest endpoint only.
type RTMPServer struct {
	addr string
	key  string
	sink Sink
	log  *slog.Logger

	mu       sync.Mutex
	server   *rtmp.Server
	listener net.Listener

	// publishing is the single-publisher slot.
	publishing atomic.Bool
}

// sizeUpdater is satisfied by sinks that can retarget their output frame
// size from the publisher's stream metadata.
type sizeUpdater interface {
	UpdateOutputSize(size recorder.Size)
}

// NewRTMPServer returns a stopped ingest server. An empty key accepts
// any publishing name; otherwise the name must match exactly.
func NewRTMPServer(addr, key string, sink Sink, log *slog.Logger) *RTMPServer {
	return &RTMPServer{addr: addr, key: key, sink: sink, log: log}
}

// Start listens on the configured address and serves connections on a
// background goroutine. Returns once the listener is bound.
func (s *RTMPServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrap(err, "capture: listen rtmp")
	}

	server := rtmp.NewServer(&rtmp.ServerConfig{
		OnConnect: func(conn net.Conn) (io.ReadWriteCloser, *rtmp.ConnConfig) {
			h := &rtmpHandler{srv: s, remote: conn.RemoteAddr().String()}
			return conn, &rtmp.ConnConfig{Handler: h}
		},
	})

	s.mu.Lock()
	s.server = server
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("rtmp ingest listening", slog.String("addr", listener.Addr().String()))
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Warn("rtmp ingest stopped", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Addr returns the bound listener address, empty before Start.
func (s *RTMPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the listener and every open connection. Idempotent.
func (s *RTMPServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	err := s.server.Close()
	s.server = nil
	s.listener = nil
	return errors.Wrap(err, "capture: close rtmp server")
}

// rtmpHandler serves one RTMP connection.
type rtmpHandler struct {
	rtmp.DefaultHandler
	srv    *RTMPServer
	remote string

	// publishing marks that this connection holds the publisher slot.
	publishing bool
}

// OnPublish admits a publisher: the publishing name must match the
// configured key, and the single-publisher slot must be free.
func (h *rtmpHandler) OnPublish(_ *rtmp.StreamContext, _ uint32, cmd *rtmpmsg.NetStreamPublish) error {
	if cmd.PublishingName == "" {
		return errors.New("capture: publishing name is required")
	}
	if h.srv.key != "" && cmd.PublishingName != h.srv.key {
		h.srv.log.Warn("rtmp publish rejected, bad key", slog.String("remote", h.remote))
		return errors.New("capture: invalid publish key")
	}
	if !h.srv.publishing.CompareAndSwap(false, true) {
		h.srv.log.Warn("rtmp publish rejected, feed busy", slog.String("remote", h.remote))
		return errors.New("capture: another publisher is active")
	}

	h.publishing = true
	h.srv.log.Info("rtmp publisher connected", slog.String("remote", h.remote))
	return nil
}

// OnPlay rejects playback; the server only ingests.
func (h *rtmpHandler) OnPlay(_ *rtmp.StreamContext, _ uint32, _ *rtmpmsg.NetStreamPlay) error {
	return errors.New("capture: playback not supported")
}

// OnSetDataFrame reads the publisher's onMetaData and, when the sink
// supports it, retargets the output frame size to the incoming stream.
func (h *rtmpHandler) OnSetDataFrame(_ uint32, data *rtmpmsg.NetStreamSetDataFrame) error {
	if !h.publishing {
		return nil
	}

	var script flvtag.ScriptData
	if err := flvtag.DecodeScriptData(bytes.NewReader(data.Payload), &script); err != nil {
		h.srv.log.Warn("rtmp metadata unreadable", slog.String("error", err.Error()))
		return nil
	}

	meta, ok := script.Objects["onMetaData"]
	if !ok {
		return nil
	}
	size := recorder.Size{
		Width:  int(amfNumber(meta["width"])),
		Height: int(amfNumber(meta["height"])),
	}
	h.srv.log.Info("rtmp stream metadata",
		slog.Int("width", size.Width),
		slog.Int("height", size.Height))

	if u, ok := h.srv.sink.(sizeUpdater); ok && !size.Zero() {
		u.UpdateOutputSize(size)
	}
	return nil
}

// OnVideo decodes one FLV video tag into an encoded sample.
func (h *rtmpHandler) OnVideo(timestamp uint32, payload io.Reader) error {
	if !h.publishing {
		return nil
	}

	var video flvtag.VideoData
	if err := flvtag.DecodeVideoData(payload, &video); err != nil {
		return errors.Wrap(err, "capture: decode video tag")
	}
	data, err := io.ReadAll(video.Data)
	if err != nil {
		return errors.Wrap(err, "capture: read video payload")
	}

	h.srv.sink.ProcessVideoSample(media.Sample{
		Data:      data,
		Timestamp: time.Duration(timestamp) * time.Millisecond,
		Keyframe:  video.FrameType == flvtag.FrameTypeKeyFrame,
		SeqHeader: video.AVCPacketType == flvtag.AVCPacketTypeSequenceHeader,
	})
	return nil
}

// OnAudio decodes one FLV audio tag into an encoded sample.
func (h *rtmpHandler) OnAudio(timestamp uint32, payload io.Reader) error {
	if !h.publishing {
		return nil
	}

	var audio flvtag.AudioData
	if err := flvtag.DecodeAudioData(payload, &audio); err != nil {
		return errors.Wrap(err, "capture: decode audio tag")
	}
	data, err := io.ReadAll(audio.Data)
	if err != nil {
		return errors.Wrap(err, "capture: read audio payload")
	}

	h.srv.sink.ProcessAudioSample(media.Sample{
		Data:      data,
		Timestamp: time.Duration(timestamp) * time.Millisecond,
		SeqHeader: audio.SoundFormat == flvtag.SoundFormatAAC && audio.AACPacketType == flvtag.AACPacketTypeSequenceHeader,
	})
	return nil
}

// OnClose releases the publisher slot when the publishing connection
// goes away.
func (h *rtmpHandler) OnClose() {
	if h.publishing {
		h.publishing = false
		h.srv.publishing.Store(false)
		h.srv.log.Info("rtmp publisher disconnected", slog.String("remote", h.remote))
	}
}

// amfNumber coerces a decoded AMF value to float64, zero when absent or
// not numeric.
func amfNumber(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}
