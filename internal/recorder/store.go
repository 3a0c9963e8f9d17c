package recorder

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// stillJPEGQuality is used when persisting captured stills.
const stillJPEGQuality = 90

var (
	// ErrIndexOutOfRange is returned by Delete and Move for an index
	// outside the current segment list.
	ErrIndexOutOfRange = errors.New("recorder: segment index out of range")

	// ErrNilImage is returned by AddImage when given no image.
	ErrNilImage = errors.New("recorder: nil image")
)

// AddResult is delivered by AddImage once the still has been persisted
// and its segment appended.
type AddResult struct {
	Segment Segment
	Err     error
}

// SegmentStore is the ordered collection of recorded units. Ordering is
// insertion order unless changed by Move; indices stay contiguous and
// stable between mutations. The store owns the backing files: Delete and
// Reset can remove them from disk.
type SegmentStore struct {
	mu  sync.RWMutex
	dir string
	log *slog.Logger

	segments []Segment
}

// NewSegmentStore creates the store directory if needed and returns an
// empty store that persists stills under it.
func NewSegmentStore(dir string, log *slog.Logger) (*SegmentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: create store dir: %w", err)
	}
	return &SegmentStore{dir: dir, log: log}, nil
}

// Dir returns the directory stills are persisted under.
func (s *SegmentStore) Dir() string { return s.dir }

// Add appends a prebuilt segment.
func (s *SegmentStore) Add(seg Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg.AddedAt = time.Now().UTC()
	s.segments = append(s.segments, seg)
}

// AddVideo appends a video segment referencing a finalized clip.
func (s *SegmentStore) AddVideo(path string, duration time.Duration) {
	s.Add(Segment{Kind: SegmentVideo, Path: path, Duration: duration})
}

// AddImage persists the still as a JPEG under the store directory on a
// background goroutine, then appends an image segment. The returned
// channel delivers exactly one result; the segment's position is fixed
// when persistence completes.
func (s *SegmentStore) AddImage(img image.Image, meta map[string]string) <-chan AddResult {
	ch := make(chan AddResult, 1)
	if img == nil {
		ch <- AddResult{Err: ErrNilImage}
		return ch
	}

	go func() {
		path := filepath.Join(s.dir, "still-"+uuid.NewString()+".jpg")
		if err := writeJPEG(path, img); err != nil {
			ch <- AddResult{Err: err}
			return
		}

		seg := Segment{Kind: SegmentImage, Path: path, Meta: meta, AddedAt: time.Now().UTC()}
		s.mu.Lock()
		s.segments = append(s.segments, seg)
		s.mu.Unlock()

		ch <- AddResult{Segment: seg}
	}()
	return ch
}

// Delete removes the segment at index. With removeFromDisk, the backing
// file is deleted as well.
func (s *SegmentStore) Delete(index int, removeFromDisk bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.segments) {
		return ErrIndexOutOfRange
	}

	seg := s.segments[index]
	s.segments = append(s.segments[:index], s.segments[index+1:]...)

	if removeFromDisk {
		s.removeFileLocked(seg.Path)
	}
	return nil
}

// Move reorders the segment at from to position to, shifting the
// segments between them.
func (s *SegmentStore) Move(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.segments)
	if from < 0 || from >= n || to < 0 || to >= n {
		return ErrIndexOutOfRange
	}
	if from == to {
		return nil
	}

	seg := s.segments[from]
	s.segments = append(s.segments[:from], s.segments[from+1:]...)
	s.segments = append(s.segments, Segment{})
	copy(s.segments[to+1:], s.segments[to:])
	s.segments[to] = seg
	return nil
}

// Reset drops every segment. With removeFromDisk, backing files are
// deleted; removal failures are logged, not surfaced, because the
// segments are already gone from the list.
func (s *SegmentStore) Reset(removeFromDisk bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if removeFromDisk {
		for _, seg := range s.segments {
			s.removeFileLocked(seg.Path)
		}
	}
	s.segments = nil
}

// Segments returns an ordered copy of the segment list.
func (s *SegmentStore) Segments() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Len returns the number of stored segments.
func (s *SegmentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// TotalDuration sums clip durations, counting each still as
// StillSegmentDuration. Feeds recording-progress reporting.
func (s *SegmentStore) TotalDuration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total time.Duration
	for _, seg := range s.segments {
		if seg.Kind == SegmentImage {
			total += StillSegmentDuration
			continue
		}
		total += seg.Duration
	}
	return total
}

// removeFileLocked deletes a backing file, logging failures. Caller must
// hold s.mu in write mode.
func (s *SegmentStore) removeFileLocked(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove segment file",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

// writeJPEG encodes img to path at still quality.
func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recorder: create still: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: stillJPEGQuality}); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("recorder: encode still: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("recorder: close still: %w", err)
	}
	return nil
}
