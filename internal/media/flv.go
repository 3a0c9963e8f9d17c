package media

import (
	"bufio"
	"bytes"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	amf0 "github.com/yutopp/go-amf0"
	flv "github.com/yutopp/go-flv"
	flvtag "github.com/yutopp/go-flv/tag"
)

// writerState is the lifecycle of a writer-backed session. A writer moves
// from open to exactly one of finalized or canceled; the transition is
// guarded by the writer's mutex so a cancel racing a finalize resolves to
// a single outcome.
type writerState uint8

const (
	stateOpen writerState = iota
	stateFinalized
	stateCanceled
)

// FLVWriter writes encoded samples into an FLV container: H.264 video
// tags plus, when an audio sample rate is configured, mono AAC audio
// tags. This is the sample-path writer; raw frames are dropped.
type FLVWriter struct {
	mu    sync.Mutex
	state writerState

	path string
	file *os.File
	bw   *bufio.Writer
	enc  *flv.Encoder

	video videoTrack
	audio audioTrack

	created time.Time
	lastTS  time.Duration
}

// videoTrack holds per-track write state for the video stream.
type videoTrack struct {
	samples   int
	keyframes int
}

// audioTrack holds per-track write state for the audio stream. enabled is
// false when no usable sample rate was configured; the clip then proceeds
// video-only and audio samples are dropped rather than failing the session.
type audioTrack struct {
	enabled bool
	rate    flvtag.SoundRate
	samples int
}

// NewFLVWriter creates the output file and writes the FLV header and an
// onMetaData script tag. A zero cfg.AudioSampleRate disables the audio
// track. The returned writer owns cfg.Path until Finalize or Cancel.
func NewFLVWriter(cfg Config) (*FLVWriter, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrZeroSize
	}

	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, "media: create clip output")
	}

	flags := flv.FlagsVideo
	var audio audioTrack
	if cfg.AudioSampleRate > 0 {
		flags |= flv.FlagsAudio
		audio.enabled = true
		audio.rate = soundRate(cfg.AudioSampleRate)
	}

	bw := bufio.NewWriter(f)
	enc, err := flv.NewEncoder(bw, flags)
	if err != nil {
		f.Close()
		os.Remove(cfg.Path)
		return nil, errors.Wrap(err, "media: write flv header")
	}

	w := &FLVWriter{
		path:    cfg.Path,
		file:    f,
		bw:      bw,
		enc:     enc,
		audio:   audio,
		created: time.Now(),
	}

	if err := w.writeMetadata(cfg); err != nil {
		f.Close()
		os.Remove(cfg.Path)
		return nil, err
	}

	return w, nil
}

// writeMetadata emits the onMetaData script tag players use to size the
// clip before the first video tag arrives.
func (w *FLVWriter) writeMetadata(cfg Config) error {
	fps := cfg.FrameRate
	if fps <= 0 {
		fps = DefaultFrameRate
	}

	meta := map[string]interface{}{
		"width":        float64(cfg.Width),
		"height":       float64(cfg.Height),
		"framerate":    float64(fps),
		"videocodecid": float64(flvtag.CodecIDAVC),
	}
	if w.audio.enabled {
		meta["audiocodecid"] = float64(flvtag.SoundFormatAAC)
		meta["audiosamplerate"] = float64(cfg.AudioSampleRate)
		meta["audiodatarate"] = float64(AudioBitrate / 1000)
		meta["stereo"] = false
	}

	err := w.enc.Encode(&flvtag.FlvTag{
		TagType: flvtag.TagTypeScriptData,
		Data: &flvtag.ScriptData{
			Objects: map[string]amf0.ECMAArray{"onMetaData": meta},
		},
	})
	return errors.Wrap(err, "media: write metadata tag")
}

// WriteSample implements Writer.WriteSample.
func (w *FLVWriter) WriteSample(s Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != stateOpen {
		return ErrWriterClosed
	}

	switch s.Kind {
	case SampleVideo:
		return w.writeVideoLocked(s)
	case SampleAudio:
		if !w.audio.enabled {
			return nil
		}
		return w.writeAudioLocked(s)
	default:
		return nil
	}
}

// writeVideoLocked encodes one video tag. Caller must hold w.mu.
func (w *FLVWriter) writeVideoLocked(s Sample) error {
	frameType := flvtag.FrameTypeInterFrame
	if s.Keyframe || s.SeqHeader {
		frameType = flvtag.FrameTypeKeyFrame
	}
	packetType := flvtag.AVCPacketTypeNALU
	if s.SeqHeader {
		packetType = flvtag.AVCPacketTypeSequenceHeader
	}

	err := w.enc.Encode(&flvtag.FlvTag{
		TagType:   flvtag.TagTypeVideo,
		Timestamp: uint32(s.Timestamp / time.Millisecond),
		Data: &flvtag.VideoData{
			FrameType:     frameType,
			CodecID:       flvtag.CodecIDAVC,
			AVCPacketType: packetType,
			Data:          bytes.NewReader(s.Data),
		},
	})
	if err != nil {
		return errors.Wrap(err, "media: write video tag")
	}

	w.video.samples++
	if s.Keyframe {
		w.video.keyframes++
	}
	w.advanceLocked(s)
	return nil
}

// writeAudioLocked encodes one audio tag. Caller must hold w.mu.
func (w *FLVWriter) writeAudioLocked(s Sample) error {
	packetType := flvtag.AACPacketTypeRaw
	if s.SeqHeader {
		packetType = flvtag.AACPacketTypeSequenceHeader
	}

	err := w.enc.Encode(&flvtag.FlvTag{
		TagType:   flvtag.TagTypeAudio,
		Timestamp: uint32(s.Timestamp / time.Millisecond),
		Data: &flvtag.AudioData{
			SoundFormat:   flvtag.SoundFormatAAC,
			SoundRate:     w.audio.rate,
			SoundSize:     flvtag.SoundSize16Bit,
			SoundType:     flvtag.SoundTypeMono,
			AACPacketType: packetType,
			Data:          bytes.NewReader(s.Data),
		},
	})
	if err != nil {
		return errors.Wrap(err, "media: write audio tag")
	}

	w.audio.samples++
	w.advanceLocked(s)
	return nil
}

// advanceLocked moves the media clock forward. Sequence headers carry
// codec config, not presentation time, so they do not advance it.
func (w *FLVWriter) advanceLocked(s Sample) {
	if !s.SeqHeader && s.Timestamp > w.lastTS {
		w.lastTS = s.Timestamp
	}
}

// WriteFrame implements Writer.WriteFrame. The FLV writer only accepts
// encoded samples; raw frames are dropped.
func (w *FLVWriter) WriteFrame(Frame) error { return nil }

// Duration implements Writer.Duration.
func (w *FLVWriter) Duration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.video.samples > 0 || w.audio.samples > 0 {
		return w.lastTS
	}
	return time.Since(w.created)
}

// Path implements Writer.Path.
func (w *FLVWriter) Path() string { return w.path }

// Finalize implements Writer.Finalize: flushes buffered tags and closes
// the output, leaving a playable file at Path.
func (w *FLVWriter) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case stateCanceled:
		return ErrCanceled
	case stateFinalized:
		return nil
	}
	w.state = stateFinalized

	if err := w.bw.Flush(); err != nil {
		w.file.Close()
		return errors.Wrap(err, "media: flush clip")
	}
	if err := w.file.Close(); err != nil {
		return errors.Wrap(err, "media: close clip")
	}
	return nil
}

// Cancel implements Writer.Cancel: discards buffered tags and removes
// the partial file.
func (w *FLVWriter) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case stateFinalized, stateCanceled:
		return nil
	}
	w.state = stateCanceled

	w.file.Close()
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "media: remove partial clip")
	}
	return nil
}

// soundRate maps a sample rate in Hz onto the nearest FLV rate class.
func soundRate(hz int) flvtag.SoundRate {
	switch {
	case hz >= 44100:
		return flvtag.SoundRate44kHz
	case hz >= 22050:
		return flvtag.SoundRate22kHz
	case hz >= 11025:
		return flvtag.SoundRate11kHz
	default:
		return flvtag.SoundRate5_5kHz
	}
}
