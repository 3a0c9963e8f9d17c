package recorder

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"testing"
)

// twoPixel builds a 2x1 image with a red left pixel and a blue right
// pixel, so mirroring is observable.
func twoPixel() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	img.SetRGBA(1, 0, color.RGBA{B: 255, A: 255})
	return img
}

func TestMirrorHorizontally(t *testing.T) {
	mirrored := mirrorHorizontally(twoPixel())

	r, _, b, _ := mirrored.At(0, 0).RGBA()
	if r != 0 || b == 0 {
		t.Errorf("left pixel after mirror = %v, want blue", mirrored.At(0, 0))
	}
	r, _, b, _ = mirrored.At(1, 0).RGBA()
	if r == 0 || b != 0 {
		t.Errorf("right pixel after mirror = %v, want red", mirrored.At(1, 0))
	}
}

func TestCoordinator_TakePhoto(t *testing.T) {
	newPhotoCoordinator := func(t *testing.T, still *stubCapturer, d Delegate) (*Coordinator, *SegmentStore) {
		t.Helper()
		store, err := NewSegmentStore(t.TempDir(), discardLogger())
		if err != nil {
			t.Fatalf("NewSegmentStore: %v", err)
		}
		c := NewCoordinator(testSettings(t), store, still, nil, discardLogger(), nil)
		if d != nil {
			c.SetDelegate(d)
		}
		return c, store
	}

	t.Run("captures_and_stores_still", func(t *testing.T) {
		still := &stubCapturer{img: stillImage(8, 8)}
		c, store := newPhotoCoordinator(t, still, &stubDelegate{settings: PhotoSettings{FlashEnabled: true, Quality: 80}})

		res := awaitPhoto(t, c.TakePhoto(context.Background(), PositionBack))
		if res.Err != nil {
			t.Fatalf("photo: %v", res.Err)
		}
		if res.Segment.Kind != SegmentImage {
			t.Errorf("segment kind = %s, want image", res.Segment.Kind)
		}
		if _, err := os.Stat(res.Segment.Path); err != nil {
			t.Errorf("still file missing: %v", err)
		}
		if store.Len() != 1 {
			t.Errorf("stored %d segments, want 1", store.Len())
		}
		if c.Mode() != ModeStopMotion {
			t.Errorf("mode = %s after photo, want stop_motion baseline", c.Mode())
		}

		still.mu.Lock()
		defer still.mu.Unlock()
		if !still.settings.FlashEnabled || still.settings.Quality != 80 {
			t.Errorf("delegate settings not forwarded: %+v", still.settings)
		}
		if still.position != PositionBack {
			t.Errorf("capture position = %s, want back", still.position)
		}
	})

	t.Run("front_position_mirrors", func(t *testing.T) {
		c, _ := newPhotoCoordinator(t, &stubCapturer{img: twoPixel()}, nil)

		res := awaitPhoto(t, c.TakePhoto(context.Background(), PositionFront))
		if res.Err != nil {
			t.Fatalf("photo: %v", res.Err)
		}
		r, _, b, _ := res.Image.At(0, 0).RGBA()
		if r != 0 || b == 0 {
			t.Errorf("front still not mirrored, left pixel = %v", res.Image.At(0, 0))
		}
	})

	t.Run("back_position_keeps_orientation", func(t *testing.T) {
		c, _ := newPhotoCoordinator(t, &stubCapturer{img: twoPixel()}, nil)

		res := awaitPhoto(t, c.TakePhoto(context.Background(), PositionBack))
		if res.Err != nil {
			t.Fatalf("photo: %v", res.Err)
		}
		r, _, _, _ := res.Image.At(0, 0).RGBA()
		if r == 0 {
			t.Errorf("back still was mirrored, left pixel = %v", res.Image.At(0, 0))
		}
	})

	t.Run("delegate_veto", func(t *testing.T) {
		c, store := newPhotoCoordinator(t, &stubCapturer{img: stillImage(8, 8)}, &stubDelegate{veto: true})

		res := awaitPhoto(t, c.TakePhoto(context.Background(), PositionBack))
		if !errors.Is(res.Err, ErrPhotoVetoed) {
			t.Errorf("expected ErrPhotoVetoed, got %v", res.Err)
		}
		if store.Len() != 0 {
			t.Errorf("vetoed photo stored %d segments", store.Len())
		}
	})

	t.Run("capture_error", func(t *testing.T) {
		wantErr := errors.New("device detached")
		c, store := newPhotoCoordinator(t, &stubCapturer{err: wantErr}, nil)

		res := awaitPhoto(t, c.TakePhoto(context.Background(), PositionBack))
		if !errors.Is(res.Err, wantErr) {
			t.Errorf("photo err = %v, want %v", res.Err, wantErr)
		}
		if store.Len() != 0 {
			t.Errorf("failed photo stored %d segments", store.Len())
		}
	})

	t.Run("no_capturer", func(t *testing.T) {
		store, err := NewSegmentStore(t.TempDir(), discardLogger())
		if err != nil {
			t.Fatalf("NewSegmentStore: %v", err)
		}
		c := NewCoordinator(testSettings(t), store, nil, nil, discardLogger(), nil)

		res := awaitPhoto(t, c.TakePhoto(context.Background(), PositionBack))
		if !errors.Is(res.Err, ErrNoCapturer) {
			t.Errorf("expected ErrNoCapturer, got %v", res.Err)
		}
	})

	t.Run("noop_while_recording", func(t *testing.T) {
		still := &stubCapturer{img: stillImage(8, 8)}
		c, store := newPhotoCoordinator(t, still, nil)

		c.StartRecordingVideo()
		if ch := c.TakePhoto(context.Background(), PositionBack); ch != nil {
			t.Error("TakePhoto returned a channel while recording")
		}
		if store.Len() != 0 {
			t.Errorf("photo during recording stored %d segments", store.Len())
		}
		still.mu.Lock()
		calls := still.calls
		still.mu.Unlock()
		if calls != 0 {
			t.Errorf("capturer invoked %d times during recording", calls)
		}

		awaitClip(t, c.StopRecordingVideo())
		if store.Len() != 1 {
			t.Errorf("stored %d segments, want the clip alone", store.Len())
		}
	})
}
