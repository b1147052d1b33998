package camera

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nitz7155/HiSmartStudy/internal/roi"
)

const yamlRegistry = `
cameras:
  - camera_id: cam-1
    source: rtsp://192.168.0.10/live
    threshold: 15
    fps: 5
    seat_rois:
      21: [0.12, 0.33, 0.22, 0.50]
      22: [0.25, 0.33, 0.35, 0.50]
    seat_thresholds:
      22: 10
  - camera_id: cam-2
    source: "0"
    seat_rois:
      23: [100, 200, 300, 400]
`

const jsonRegistry = `{
  "cameras": [
    {
      "camera_id": "cam-1",
      "source": "videos/hall.mp4",
      "seat_rois": {"1": [0.0, 0.0, 0.5, 1.0], "2": [0.5, 0.0, 1.0, 1.0]}
    }
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadRegistry_YAML(t *testing.T) {
	reg, err := LoadRegistry(writeFile(t, "cameras.yaml", yamlRegistry))
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}

	if len(reg.Cameras) != 2 {
		t.Fatalf("got %d cameras, want 2", len(reg.Cameras))
	}

	c := reg.Cameras[0]
	if c.CameraID != "cam-1" || c.Threshold != 15 || c.FPS != 5 {
		t.Errorf("camera = %+v", c)
	}

	regions, err := c.Regions()
	if err != nil {
		t.Fatalf("Regions() error = %v", err)
	}
	want := roi.Rect{X1: 0.12, Y1: 0.33, X2: 0.22, Y2: 0.50}
	if regions[21] != want {
		t.Errorf("seat 21 = %+v, want %+v", regions[21], want)
	}

	thresholds, _ := c.Thresholds()
	if thresholds[22] != 10 {
		t.Errorf("seat 22 threshold = %d, want 10", thresholds[22])
	}

	if reg.Cameras[1].Source != "0" {
		t.Errorf("cam-2 source = %q, want \"0\"", reg.Cameras[1].Source)
	}

	ids := reg.SeatIDs()
	if len(ids) != 3 || ids[0] != 21 || ids[2] != 23 {
		t.Errorf("SeatIDs() = %v", ids)
	}
}

func TestLoadRegistry_JSON(t *testing.T) {
	reg, err := LoadRegistry(writeFile(t, "cameras.json", jsonRegistry))
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}

	regions, _ := reg.Cameras[0].Regions()
	if len(regions) != 2 {
		t.Fatalf("got %d regions, want 2", len(regions))
	}
	if !regions[2].Normalized() {
		t.Error("seat 2 region should be normalized")
	}
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	if _, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadRegistry() should fail for a missing file")
	}
}

func TestRegistry_Validate(t *testing.T) {
	rois := map[string][]float64{"1": {0, 0, 1, 1}}

	tests := []struct {
		name    string
		reg     Registry
		wantErr bool
	}{
		{
			name: "valid",
			reg:  Registry{Cameras: []CameraConfig{{CameraID: "a", Source: "0", SeatROIs: rois}}},
		},
		{
			name:    "no cameras",
			reg:     Registry{},
			wantErr: true,
		},
		{
			name:    "missing camera id",
			reg:     Registry{Cameras: []CameraConfig{{Source: "0", SeatROIs: rois}}},
			wantErr: true,
		},
		{
			name:    "missing source",
			reg:     Registry{Cameras: []CameraConfig{{CameraID: "a", SeatROIs: rois}}},
			wantErr: true,
		},
		{
			name:    "no seats",
			reg:     Registry{Cameras: []CameraConfig{{CameraID: "a", Source: "0"}}},
			wantErr: true,
		},
		{
			name: "duplicate camera",
			reg: Registry{Cameras: []CameraConfig{
				{CameraID: "a", Source: "0", SeatROIs: rois},
				{CameraID: "a", Source: "1", SeatROIs: map[string][]float64{"2": {0, 0, 1, 1}}},
			}},
			wantErr: true,
		},
		{
			name: "seat on two cameras",
			reg: Registry{Cameras: []CameraConfig{
				{CameraID: "a", Source: "0", SeatROIs: rois},
				{CameraID: "b", Source: "1", SeatROIs: rois},
			}},
			wantErr: true,
		},
		{
			name:    "non numeric seat",
			reg:     Registry{Cameras: []CameraConfig{{CameraID: "a", Source: "0", SeatROIs: map[string][]float64{"A1": {0, 0, 1, 1}}}}},
			wantErr: true,
		},
		{
			name:    "short rectangle",
			reg:     Registry{Cameras: []CameraConfig{{CameraID: "a", Source: "0", SeatROIs: map[string][]float64{"1": {0, 0, 1}}}}},
			wantErr: true,
		},
		{
			name: "threshold without region",
			reg: Registry{Cameras: []CameraConfig{{
				CameraID: "a", Source: "0", SeatROIs: rois, SeatThresholds: map[string]int{"9": 4},
			}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
