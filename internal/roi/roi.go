// Package roi provides the seat region geometry shared by the camera pipeline.
// Everything here is pure and independent of any capture source.
package roi

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
)

// Fallback frame size used to resolve normalized regions when the capture
// source has not reported its dimensions yet.
const (
	DefaultFrameWidth  = 1920
	DefaultFrameHeight = 1080
)

// Rect is an axis-aligned rectangle given by its top-left (X1, Y1) and
// bottom-right (X2, Y2) corners. It serializes as [x1, y1, x2, y2].
type Rect struct {
	X1, Y1, X2, Y2 float64
}

// FromSlice builds a Rect from a four element coordinate list.
func FromSlice(v []float64) (Rect, error) {
	if len(v) != 4 {
		return Rect{}, fmt.Errorf("roi: expected 4 coordinates, got %d", len(v))
	}
	r := Rect{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
	if r.X2 < r.X1 || r.Y2 < r.Y1 {
		return Rect{}, fmt.Errorf("roi: inverted rectangle %v", v)
	}
	return r, nil
}

// Normalized reports whether the rectangle is expressed in [0,1] frame units.
// A rectangle whose largest coordinate is at most 1.0 is treated as normalized.
func (r Rect) Normalized() bool {
	return math.Max(math.Max(r.X1, r.Y1), math.Max(r.X2, r.Y2)) <= 1.0
}

// ToPixel converts a normalized rectangle to pixel coordinates for a frame of
// the given size. Pixel rectangles are returned truncated to whole pixels.
// A non-positive width or height selects the default frame size.
func (r Rect) ToPixel(width, height int) Rect {
	if !r.Normalized() {
		return Rect{X1: trunc(r.X1), Y1: trunc(r.Y1), X2: trunc(r.X2), Y2: trunc(r.Y2)}
	}
	if width <= 0 || height <= 0 {
		width, height = DefaultFrameWidth, DefaultFrameHeight
	}
	w, h := float64(width), float64(height)
	return Rect{
		X1: trunc(r.X1 * w),
		Y1: trunc(r.Y1 * h),
		X2: trunc(r.X2 * w),
		Y2: trunc(r.Y2 * h),
	}
}

// Intersects reports whether two rectangles share at least one point.
// Touching edges count as an intersection.
func (r Rect) Intersects(o Rect) bool {
	return !(o.X2 < r.X1 || o.X1 > r.X2 || o.Y2 < r.Y1 || o.Y1 > r.Y2)
}

// Offset translates the rectangle by (dx, dy).
func (r Rect) Offset(dx, dy float64) Rect {
	return Rect{X1: r.X1 + dx, Y1: r.Y1 + dy, X2: r.X2 + dx, Y2: r.Y2 + dy}
}

// Clamp returns the integer rectangle clipped to a frame of the given size.
// The result is empty when the rectangle lies outside the frame.
func (r Rect) Clamp(width, height int) image.Rectangle {
	rect := image.Rect(int(r.X1), int(r.Y1), int(r.X2), int(r.Y2))
	return rect.Intersect(image.Rect(0, 0, width, height))
}

// MarshalJSON encodes the rectangle as [x1, y1, x2, y2].
func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{r.X1, r.Y1, r.X2, r.Y2})
}

// UnmarshalJSON decodes a rectangle from [x1, y1, x2, y2].
func (r *Rect) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := FromSlice(v)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// AnyIntersects reports whether any of boxes intersects region.
func AnyIntersects(region Rect, boxes []Rect) bool {
	for _, b := range boxes {
		if region.Intersects(b) {
			return true
		}
	}
	return false
}

// Item is a labeled detection returned by a lost-item scan.
type Item struct {
	Name       string  `json:"name"`
	Box        Rect    `json:"box"`
	Confidence float64 `json:"confidence,omitempty"`
}

func trunc(v float64) float64 {
	return math.Trunc(v)
}
