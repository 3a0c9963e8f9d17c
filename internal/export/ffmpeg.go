// Package export merges an ordered segment list into a single shareable
// artifact by shelling out to ffmpeg.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/riveraj33/kanvas-ios/internal/media"
	"github.com/riveraj33/kanvas-ios/internal/recorder"
)

// ErrNoSegments is returned by Merge when there is nothing to export.
var ErrNoSegments = errors.New("export: no segments to merge")

// Config carries the exporter's construction parameters.
type Config struct {
	// Binary is the ffmpeg executable, "ffmpeg" on PATH by default.
	Binary string

	// OutputDir receives the merged artifacts. Must exist and be
	// writable.
	OutputDir string

	// FrameRate used when re-encoding mixed sequences. Defaults to
	// media.DefaultFrameRate.
	FrameRate int

	// StillAsClip renders a single-still sequence as a video clip
	// instead of a plain image copy.
	StillAsClip bool
}

// FFmpeg merges segments into one MP4 via the ffmpeg binary. Clip-only
// sequences are stream-copied; sequences containing stills are
// re-encoded so each still holds its fixed presentation time.
type FFmpeg struct {
	binary      string
	dir         string
	frameRate   int
	stillAsClip bool
	log         *slog.Logger
}

// New returns an exporter writing into cfg.OutputDir.
func New(cfg Config, log *slog.Logger) *FFmpeg {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = media.DefaultFrameRate
	}
	return &FFmpeg{
		binary:      cfg.Binary,
		dir:         cfg.OutputDir,
		frameRate:   cfg.FrameRate,
		stillAsClip: cfg.StillAsClip,
		log:         log,
	}
}

// CheckAvailable verifies the ffmpeg binary runs and identifies itself.
func (f *FFmpeg) CheckAvailable() error {
	out, err := exec.Command(f.binary, "-version").Output()
	if err != nil {
		return errors.Wrap(err, "export: ffmpeg not found")
	}
	if !strings.Contains(string(out), "ffmpeg version") {
		return errors.New("export: ffmpeg not properly installed")
	}
	return nil
}

// Merge implements recorder.Exporter. The segment order is the export
// order. A single still merges to a plain image copy unless StillAsClip
// is set.
func (f *FFmpeg) Merge(ctx context.Context, segments []recorder.Segment) (string, error) {
	if len(segments) == 0 {
		return "", ErrNoSegments
	}

	if len(segments) == 1 && segments[0].Kind == recorder.SegmentImage && !f.stillAsClip {
		return f.copyStill(segments[0].Path)
	}

	list, err := f.writePlaylist(segments)
	if err != nil {
		return "", err
	}
	defer os.Remove(list)

	out := filepath.Join(f.dir, "export-"+uuid.NewString()+".mp4")
	args := MergeArgs(list, out, needsReencode(segments), f.frameRate)
	f.log.Info("running export merge",
		slog.Int("segments", len(segments)),
		slog.String("output", out))

	cmd := exec.CommandContext(ctx, f.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(out)
		return "", errors.Wrapf(err, "export: ffmpeg merge: %s", lastLine(stderr.String()))
	}
	return out, nil
}

// MergeArgs builds the ffmpeg argument list for one merge run. Kept pure
// so the two strategies stay testable without the binary.
func MergeArgs(listPath, outPath string, reencode bool, frameRate int) []string {
	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", listPath}
	if reencode {
		// Stills have no encoded stream to copy; render the whole
		// sequence. Audio is dropped, image entries have none to align.
		args = append(args,
			"-c:v", "libx264",
			"-pix_fmt", "yuv420p",
			"-r", strconv.Itoa(frameRate),
			"-an",
		)
	} else {
		args = append(args, "-c", "copy")
	}
	return append(args, "-movflags", "+faststart", outPath)
}

// needsReencode reports whether the sequence contains stills, which
// cannot be stream-copied into a video track.
func needsReencode(segments []recorder.Segment) bool {
	for _, seg := range segments {
		if seg.Kind == recorder.SegmentImage {
			return true
		}
	}
	return false
}

// concatPlaylist renders the concat-demuxer playlist: one file entry per
// segment, stills held for their fixed presentation time.
func concatPlaylist(segments []recorder.Segment) string {
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, seg := range segments {
		fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(seg.Path))
		if seg.Kind == recorder.SegmentImage {
			fmt.Fprintf(&b, "duration %.3f\n", recorder.StillSegmentDuration.Seconds())
		}
	}
	return b.String()
}

// escapeConcatPath normalizes separators and escapes single quotes the
// way the concat demuxer expects.
func escapeConcatPath(path string) string {
	return strings.ReplaceAll(filepath.ToSlash(path), "'", `'\''`)
}

// writePlaylist persists the playlist next to the output artifacts.
func (f *FFmpeg) writePlaylist(segments []recorder.Segment) (string, error) {
	tmp, err := os.CreateTemp(f.dir, "playlist-*.txt")
	if err != nil {
		return "", errors.Wrap(err, "export: create playlist")
	}
	if _, err := tmp.WriteString(concatPlaylist(segments)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", errors.Wrap(err, "export: write playlist")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", errors.Wrap(err, "export: close playlist")
	}
	return tmp.Name(), nil
}

// copyStill exports a lone still as an image artifact.
func (f *FFmpeg) copyStill(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "export: open still")
	}
	defer src.Close()

	out := filepath.Join(f.dir, "export-"+uuid.NewString()+filepath.Ext(path))
	dst, err := os.Create(out)
	if err != nil {
		return "", errors.Wrap(err, "export: create artifact")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(out)
		return "", errors.Wrap(err, "export: copy still")
	}
	if err := dst.Close(); err != nil {
		os.Remove(out)
		return "", errors.Wrap(err, "export: close artifact")
	}

	f.log.Info("exported single still", slog.String("output", out))
	return out, nil
}

// lastLine extracts the tail of ffmpeg's stderr, which carries the
// actual failure reason.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
