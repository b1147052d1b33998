// Package testdata builds synthetic frames for pipeline tests.
package testdata

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Frame sizes used by tests.
const (
	FrameWidth  = 640
	FrameHeight = 480
)

// BlankFrame returns a black BGR frame of the given size.
func BlankFrame(width, height int) *gocv.Mat {
	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	return &mat
}

// SeatFrame returns a black frame with a filled white rectangle, standing in
// for a person or object inside rect.
func SeatFrame(width, height int, rect image.Rectangle) *gocv.Mat {
	mat := BlankFrame(width, height)
	gocv.Rectangle(mat, rect, color.RGBA{R: 255, G: 255, B: 255, A: 0}, -1)
	return mat
}

// Sequence returns n blank frames of the default test size.
func Sequence(n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		frames[i] = BlankFrame(FrameWidth, FrameHeight)
	}
	return frames
}

// CloseAll releases every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		if f != nil {
			f.Close()
		}
	}
}
