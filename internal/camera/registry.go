package camera

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nitz7155/HiSmartStudy/internal/roi"
)

// Registry is the camera layout loaded at startup.
type Registry struct {
	Cameras []CameraConfig `yaml:"cameras" json:"cameras"`
}

// CameraConfig describes one camera and the seats it sees. Seat keys are
// strings so the same file shape works for both YAML and JSON.
type CameraConfig struct {
	CameraID       string               `yaml:"camera_id" json:"camera_id"`
	Source         string               `yaml:"source" json:"source"`
	Threshold      int                  `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	FPS            int                  `yaml:"fps,omitempty" json:"fps,omitempty"`
	SeatROIs       map[string][]float64 `yaml:"seat_rois" json:"seat_rois"`
	SeatThresholds map[string]int       `yaml:"seat_thresholds,omitempty" json:"seat_thresholds,omitempty"`
}

// LoadRegistry reads a camera registry file. Files ending in .json are
// parsed as JSON, everything else as YAML.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read camera config: %w", err)
	}

	var reg Registry
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &reg)
	} else {
		err = yaml.Unmarshal(data, &reg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse camera config: %w", err)
	}

	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid camera config: %w", err)
	}

	return &reg, nil
}

// Validate checks camera ids, sources and seat regions. A seat may belong to
// only one camera.
func (r *Registry) Validate() error {
	if len(r.Cameras) == 0 {
		return fmt.Errorf("no cameras configured")
	}

	cameras := make(map[string]bool)
	seats := make(map[int]string)
	for i, c := range r.Cameras {
		if c.CameraID == "" {
			return fmt.Errorf("camera %d: camera_id is required", i)
		}
		if cameras[c.CameraID] {
			return fmt.Errorf("duplicate camera_id %q", c.CameraID)
		}
		cameras[c.CameraID] = true

		if c.Source == "" {
			return fmt.Errorf("camera %s: source is required", c.CameraID)
		}

		regions, err := c.Regions()
		if err != nil {
			return err
		}
		if len(regions) == 0 {
			return fmt.Errorf("camera %s: no seat_rois", c.CameraID)
		}
		for seatID := range regions {
			if other, ok := seats[seatID]; ok {
				return fmt.Errorf("seat %d assigned to both %s and %s", seatID, other, c.CameraID)
			}
			seats[seatID] = c.CameraID
		}

		if _, err := c.Thresholds(); err != nil {
			return err
		}
	}
	return nil
}

// Regions parses the seat rectangles keyed by seat id.
func (c CameraConfig) Regions() (map[int]roi.Rect, error) {
	out := make(map[int]roi.Rect, len(c.SeatROIs))
	for key, coords := range c.SeatROIs {
		seatID, err := parseSeatID(key)
		if err != nil {
			return nil, fmt.Errorf("camera %s: %w", c.CameraID, err)
		}
		rect, err := roi.FromSlice(coords)
		if err != nil {
			return nil, fmt.Errorf("camera %s: seat %d: %w", c.CameraID, seatID, err)
		}
		out[seatID] = rect
	}
	return out, nil
}

// Thresholds parses the per-seat stabilization overrides.
func (c CameraConfig) Thresholds() (map[int]int, error) {
	out := make(map[int]int, len(c.SeatThresholds))
	for key, n := range c.SeatThresholds {
		seatID, err := parseSeatID(key)
		if err != nil {
			return nil, fmt.Errorf("camera %s: seat_thresholds: %w", c.CameraID, err)
		}
		if _, ok := c.SeatROIs[key]; !ok {
			return nil, fmt.Errorf("camera %s: threshold for seat %d without a region", c.CameraID, seatID)
		}
		out[seatID] = n
	}
	return out, nil
}

// SeatIDs returns every configured seat in ascending order.
func (r *Registry) SeatIDs() []int {
	var ids []int
	for _, c := range r.Cameras {
		regions, err := c.Regions()
		if err != nil {
			continue
		}
		for id := range regions {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

func parseSeatID(key string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(key))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid seat id %q", key)
	}
	return id, nil
}
