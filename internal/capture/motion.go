package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Motion gate constants
const (
	// GaussianBlurSize is the kernel size for Gaussian blur (21x21)
	GaussianBlurSize = 21
	// DiffThreshold is the binary threshold for difference detection
	DiffThreshold = 25
	// GateWidth is the width frames are downscaled to before differencing.
	GateWidth = 320
	// DefaultMaxStaleFrames forces a refresh after this many skipped frames.
	DefaultMaxStaleFrames = 30
)

// MotionGate decides whether a frame differs enough from the last inspected
// frame to be worth running person detection on again. On a static scene the
// previous detection result is still valid and inference can be skipped.
//
// A threshold of 0 disables the gate: every frame is reported as changed.
type MotionGate struct {
	threshold      float64
	maxStaleFrames int
	stale          int
	prevGray       gocv.Mat
	initialized    bool
	mu             sync.Mutex
}

// NewMotionGate creates a gate. threshold is the percentage of pixels that
// must change (1.0 means 1%). maxStaleFrames bounds how many consecutive
// frames may be skipped; values <= 0 select DefaultMaxStaleFrames.
func NewMotionGate(threshold float64, maxStaleFrames int) *MotionGate {
	if maxStaleFrames <= 0 {
		maxStaleFrames = DefaultMaxStaleFrames
	}
	return &MotionGate{
		threshold:      threshold,
		maxStaleFrames: maxStaleFrames,
		prevGray:       gocv.NewMat(),
	}
}

// Enabled reports whether the gate can ever skip a frame.
func (g *MotionGate) Enabled() bool {
	return g != nil && g.threshold > 0
}

// Changed reports whether frame should be inspected and the measured change
// percentage. The first frame, every frame after maxStaleFrames skips, and
// every frame when the gate is disabled count as changed.
//
// Algorithm:
// 1. Downscale and convert to grayscale
// 2. Apply Gaussian blur (21x21) to reduce sensor noise
// 3. Absolute difference against the last inspected frame
// 4. Binary threshold (25) and count changed pixels
// 5. changePercent > threshold means changed
func (g *MotionGate) Changed(frame *gocv.Mat) (bool, float64) {
	if !g.Enabled() {
		return true, 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if frame == nil || frame.Empty() {
		return true, 0
	}

	blurred := g.prepare(frame)
	defer blurred.Close()

	if !g.initialized {
		blurred.CopyTo(&g.prevGray)
		g.initialized = true
		g.stale = 0
		return true, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	nonZero := gocv.CountNonZero(thresh)
	totalPixels := thresh.Rows() * thresh.Cols()
	changePercent := 0.0
	if totalPixels > 0 {
		changePercent = float64(nonZero) / float64(totalPixels) * 100.0
	}

	if changePercent > g.threshold || g.stale >= g.maxStaleFrames {
		blurred.CopyTo(&g.prevGray)
		g.stale = 0
		return true, changePercent
	}

	g.stale++
	return false, changePercent
}

func (g *MotionGate) prepare(frame *gocv.Mat) gocv.Mat {
	small := gocv.NewMat()
	defer small.Close()
	if frame.Cols() > GateWidth {
		height := frame.Rows() * GateWidth / frame.Cols()
		gocv.Resize(*frame, &small, image.Point{X: GateWidth, Y: height}, 0, 0, gocv.InterpolationArea)
	} else {
		frame.CopyTo(&small)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if small.Channels() > 1 {
		gocv.CvtColor(small, &gray, gocv.ColorBGRToGray)
	} else {
		small.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)
	return blurred
}

// Reset drops the baseline so the next frame counts as changed.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.prevGray.Empty() {
		g.prevGray.Close()
		g.prevGray = gocv.NewMat()
	}
	g.initialized = false
	g.stale = 0
}

// Close releases resources used by the gate.
func (g *MotionGate) Close() {
	g.Reset()
}
