package capture

import (
	"bytes"
	"sync"
	"testing"
	"time"

	amf0 "github.com/yutopp/go-amf0"
	flvtag "github.com/yutopp/go-flv/tag"
	rtmpmsg "github.com/yutopp/go-rtmp/message"

	"github.com/riveraj33/kanvas-ios/internal/platform/logger"
	"github.com/riveraj33/kanvas-ios/internal/recorder"
)

// resizableSink also records output size updates from stream metadata.
type resizableSink struct {
	sinkCounter

	mu    sync.Mutex
	sizes []recorder.Size
}

func (s *resizableSink) UpdateOutputSize(size recorder.Size) {
	s.mu.Lock()
	s.sizes = append(s.sizes, size)
	s.mu.Unlock()
}

func newTestHandler(t *testing.T, key string, sink Sink) *rtmpHandler {
	t.Helper()
	srv := NewRTMPServer("127.0.0.1:0", key, sink, logger.Discard())
	return &rtmpHandler{srv: srv, remote: "test-peer"}
}

func publish(t *testing.T, h *rtmpHandler, name string) {
	t.Helper()
	if err := h.OnPublish(nil, 0, &rtmpmsg.NetStreamPublish{PublishingName: name}); err != nil {
		t.Fatalf("OnPublish(%q): %v", name, err)
	}
}

func encodeVideoTag(t *testing.T, vd *flvtag.VideoData) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := flvtag.EncodeVideoData(&buf, vd); err != nil {
		t.Fatalf("EncodeVideoData: %v", err)
	}
	return &buf
}

func encodeAudioTag(t *testing.T, ad *flvtag.AudioData) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := flvtag.EncodeAudioData(&buf, ad); err != nil {
		t.Fatalf("EncodeAudioData: %v", err)
	}
	return &buf
}

func TestRTMPHandler_OnPublish(t *testing.T) {
	t.Run("requires_name", func(t *testing.T) {
		h := newTestHandler(t, "", &sinkCounter{})
		if err := h.OnPublish(nil, 0, &rtmpmsg.NetStreamPublish{}); err == nil {
			t.Error("publish with empty name accepted")
		}
	})

	t.Run("checks_key", func(t *testing.T) {
		h := newTestHandler(t, "secret", &sinkCounter{})
		if err := h.OnPublish(nil, 0, &rtmpmsg.NetStreamPublish{PublishingName: "wrong"}); err == nil {
			t.Error("publish with wrong key accepted")
		}
		publish(t, h, "secret")
	})

	t.Run("any_name_without_key", func(t *testing.T) {
		h := newTestHandler(t, "", &sinkCounter{})
		publish(t, h, "whatever")
	})

	t.Run("single_publisher_slot", func(t *testing.T) {
		srv := NewRTMPServer("127.0.0.1:0", "", &sinkCounter{}, logger.Discard())
		first := &rtmpHandler{srv: srv, remote: "a"}
		second := &rtmpHandler{srv: srv, remote: "b"}

		publish(t, first, "cam")
		if err := second.OnPublish(nil, 0, &rtmpmsg.NetStreamPublish{PublishingName: "cam"}); err == nil {
			t.Fatal("second concurrent publisher accepted")
		}

		// The slot frees when the publishing connection closes.
		first.OnClose()
		publish(t, second, "cam")
		second.OnClose()
	})
}

func TestRTMPHandler_rejects_play(t *testing.T) {
	h := newTestHandler(t, "", &sinkCounter{})
	if err := h.OnPlay(nil, 0, &rtmpmsg.NetStreamPlay{}); err == nil {
		t.Error("play request accepted on an ingest-only server")
	}
}

func TestRTMPHandler_OnVideo(t *testing.T) {
	t.Run("decodes_into_sample", func(t *testing.T) {
		sink := &sinkCounter{}
		h := newTestHandler(t, "", sink)
		publish(t, h, "cam")

		payload := []byte{0x65, 0x88, 0x84, 0x00}
		buf := encodeVideoTag(t, &flvtag.VideoData{
			FrameType:     flvtag.FrameTypeKeyFrame,
			CodecID:       flvtag.CodecIDAVC,
			AVCPacketType: flvtag.AVCPacketTypeNALU,
			Data:          bytes.NewReader(payload),
		})
		if err := h.OnVideo(1500, buf); err != nil {
			t.Fatalf("OnVideo: %v", err)
		}

		sink.mu.Lock()
		defer sink.mu.Unlock()
		if len(sink.video) != 1 {
			t.Fatalf("sink received %d video samples, want 1", len(sink.video))
		}
		s := sink.video[0]
		if !bytes.Equal(s.Data, payload) {
			t.Errorf("sample data = %x, want %x", s.Data, payload)
		}
		if s.Timestamp != 1500*time.Millisecond {
			t.Errorf("sample timestamp = %v, want 1.5s", s.Timestamp)
		}
		if !s.Keyframe || s.SeqHeader {
			t.Errorf("sample flags = keyframe:%t seqheader:%t, want keyframe only", s.Keyframe, s.SeqHeader)
		}
	})

	t.Run("marks_sequence_header", func(t *testing.T) {
		sink := &sinkCounter{}
		h := newTestHandler(t, "", sink)
		publish(t, h, "cam")

		buf := encodeVideoTag(t, &flvtag.VideoData{
			FrameType:     flvtag.FrameTypeKeyFrame,
			CodecID:       flvtag.CodecIDAVC,
			AVCPacketType: flvtag.AVCPacketTypeSequenceHeader,
			Data:          bytes.NewReader([]byte{0x01, 0x42, 0x00, 0x1f}),
		})
		if err := h.OnVideo(0, buf); err != nil {
			t.Fatalf("OnVideo: %v", err)
		}

		sink.mu.Lock()
		defer sink.mu.Unlock()
		if len(sink.video) != 1 || !sink.video[0].SeqHeader {
			t.Errorf("sequence header not marked: %+v", sink.video)
		}
	})

	t.Run("dropped_before_publish", func(t *testing.T) {
		sink := &sinkCounter{}
		h := newTestHandler(t, "", sink)

		buf := encodeVideoTag(t, &flvtag.VideoData{
			FrameType:     flvtag.FrameTypeKeyFrame,
			CodecID:       flvtag.CodecIDAVC,
			AVCPacketType: flvtag.AVCPacketTypeNALU,
			Data:          bytes.NewReader([]byte{0x00}),
		})
		if err := h.OnVideo(0, buf); err != nil {
			t.Fatalf("OnVideo: %v", err)
		}

		sink.mu.Lock()
		defer sink.mu.Unlock()
		if len(sink.video) != 0 {
			t.Errorf("unpublished connection delivered %d samples", len(sink.video))
		}
	})
}

func TestRTMPHandler_OnAudio(t *testing.T) {
	sink := &sinkCounter{}
	h := newTestHandler(t, "", sink)
	publish(t, h, "cam")

	payload := []byte{0x21, 0x10, 0x04}
	buf := encodeAudioTag(t, &flvtag.AudioData{
		SoundFormat:   flvtag.SoundFormatAAC,
		SoundRate:     flvtag.SoundRate44kHz,
		SoundSize:     flvtag.SoundSize16Bit,
		SoundType:     flvtag.SoundTypeMono,
		AACPacketType: flvtag.AACPacketTypeRaw,
		Data:          bytes.NewReader(payload),
	})
	if err := h.OnAudio(40, buf); err != nil {
		t.Fatalf("OnAudio: %v", err)
	}

	seqBuf := encodeAudioTag(t, &flvtag.AudioData{
		SoundFormat:   flvtag.SoundFormatAAC,
		SoundRate:     flvtag.SoundRate44kHz,
		SoundSize:     flvtag.SoundSize16Bit,
		SoundType:     flvtag.SoundTypeMono,
		AACPacketType: flvtag.AACPacketTypeSequenceHeader,
		Data:          bytes.NewReader([]byte{0x12, 0x10}),
	})
	if err := h.OnAudio(0, seqBuf); err != nil {
		t.Fatalf("OnAudio seq header: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.audio) != 2 {
		t.Fatalf("sink received %d audio samples, want 2", len(sink.audio))
	}
	if !bytes.Equal(sink.audio[0].Data, payload) || sink.audio[0].SeqHeader {
		t.Errorf("raw sample mangled: %+v", sink.audio[0])
	}
	if sink.audio[0].Timestamp != 40*time.Millisecond {
		t.Errorf("timestamp = %v, want 40ms", sink.audio[0].Timestamp)
	}
	if !sink.audio[1].SeqHeader {
		t.Error("AAC sequence header not marked")
	}
}

func TestRTMPHandler_OnSetDataFrame_retargets_size(t *testing.T) {
	sink := &resizableSink{}
	h := newTestHandler(t, "", sink)
	publish(t, h, "cam")

	var buf bytes.Buffer
	err := flvtag.EncodeScriptData(&buf, &flvtag.ScriptData{
		Objects: map[string]amf0.ECMAArray{
			"onMetaData": map[string]interface{}{
				"width":     float64(1280),
				"height":    float64(720),
				"framerate": float64(30),
			},
		},
	})
	if err != nil {
		t.Fatalf("EncodeScriptData: %v", err)
	}

	if err := h.OnSetDataFrame(0, &rtmpmsg.NetStreamSetDataFrame{Payload: buf.Bytes()}); err != nil {
		t.Fatalf("OnSetDataFrame: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.sizes) != 1 || sink.sizes[0] != (recorder.Size{Width: 1280, Height: 720}) {
		t.Errorf("size updates = %+v, want one 1280x720", sink.sizes)
	}
}

func TestRTMPServer_lifecycle(t *testing.T) {
	srv := NewRTMPServer("127.0.0.1:0", "", &sinkCounter{}, logger.Discard())

	if srv.Addr() != "" {
		t.Error("Addr set before Start")
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if srv.Addr() == "" {
		t.Error("Addr empty after Start")
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
