package recorder

import (
	"errors"
	"image"
)

var (
	// ErrPhotoVetoed is delivered when the delegate's filter hook
	// returns nil for a captured still.
	ErrPhotoVetoed = errors.New("recorder: photo vetoed by delegate")

	// ErrNoCapturer is delivered when TakePhoto runs without a still
	// capturer wired.
	ErrNoCapturer = errors.New("recorder: no still capturer")

	// ErrNoExporter is delivered when ExportRecording runs without an
	// exporter wired.
	ErrNoExporter = errors.New("recorder: no exporter")
)

// mirrorHorizontally flips img around its vertical axis. Stills captured
// from the front position are mirrored so they match what the user saw.
func mirrorHorizontally(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.Set(x, y, img.At(b.Max.X-1-x, b.Min.Y+y))
		}
	}
	return dst
}
