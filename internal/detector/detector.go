// Package detector wraps the object-detection models used by the camera
// pipeline: person presence for occupancy tracking and labeled objects for
// lost-item scans.
package detector

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/nitz7155/HiSmartStudy/internal/roi"
)

// PresenceDetector finds people in a frame.
type PresenceDetector interface {
	// DetectPersons returns the bounding boxes of every person in frame, in
	// frame pixel coordinates. Failures are returned as errors, never as an
	// empty result.
	DetectPersons(frame *gocv.Mat) ([]roi.Rect, error)

	// Close releases any resources held by the detector.
	Close() error
}

// ItemDetector finds labeled objects left on a seat.
type ItemDetector interface {
	// DetectItems returns every labeled object found in frame, in frame
	// pixel coordinates.
	DetectItems(frame *gocv.Mat) ([]roi.Item, error)

	// Close releases any resources held by the detector.
	Close() error
}

// PersonLabel is the class name person detections carry.
const PersonLabel = "person"

// Config holds configuration options for a YOLO detection service.
type Config struct {
	// ModelPath is the weights file handed to the detection service.
	ModelPath string

	// ScriptPath is the detection service script. Empty searches the
	// default locations.
	ScriptPath string

	// PythonPath is the interpreter used to run the script. Empty searches
	// for a virtual environment and falls back to python3.
	PythonPath string

	// Confidence is the minimum detection confidence (0.0-1.0).
	Confidence float64

	// IoU is the non-maximum suppression overlap threshold (0.0-1.0).
	IoU float64

	// ImageSize is the inference resolution; 0 keeps the model default.
	ImageSize int

	// Timeout bounds a single detection round trip.
	Timeout time.Duration

	// IdleTimeout stops the service after this long without requests.
	// Zero keeps it running.
	IdleTimeout time.Duration
}

// PersonConfig returns the settings used for continuous presence tracking.
func PersonConfig(modelPath string) Config {
	return Config{
		ModelPath:  modelPath,
		Confidence: 0.2,
		IoU:        0.3,
		ImageSize:  768,
		Timeout:    5 * time.Second,
	}
}

// ItemConfig returns the settings used for one-shot lost-item scans. The
// service is stopped when idle since scans only run on checkout.
func ItemConfig(modelPath string) Config {
	return Config{
		ModelPath:   modelPath,
		Confidence:  0.25,
		IoU:         0.45,
		Timeout:     10 * time.Second,
		IdleTimeout: 2 * time.Minute,
	}
}
