package hook

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/nitz7155/HiSmartStudy/internal/seat"
)

func writeManifest(t *testing.T, root, dir string, m Manifest) string {
	t.Helper()

	hookDir := filepath.Join(root, dir)
	if err := os.MkdirAll(hookDir, 0755); err != nil {
		t.Fatalf("failed to create hook dir: %v", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hookDir, ManifestFile), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return hookDir
}

func TestManager_Discover(t *testing.T) {
	root := t.TempDir()
	hookDir := writeManifest(t, root, "desk-alert", Manifest{
		Name:        "desk-alert",
		Version:     "1.0.0",
		Description: "Alerts the front desk",
		Executable:  "run.sh",
		Events:      []seat.EventType{seat.EventLostItem},
	})

	manager := NewManager(root)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	hooks := manager.List()
	if len(hooks) != 1 {
		t.Fatalf("expected 1 hook, got %d", len(hooks))
	}

	h := hooks[0]
	if h.Manifest.Name != "desk-alert" || h.Manifest.Description != "Alerts the front desk" {
		t.Errorf("manifest = %+v", h.Manifest)
	}
	if h.Path != hookDir {
		t.Errorf("expected path %q, got %q", hookDir, h.Path)
	}
	if h.Executable != filepath.Join(hookDir, "run.sh") {
		t.Errorf("expected executable under hook dir, got %q", h.Executable)
	}
}

func TestManager_Discover_SkipsInvalid(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "good", Manifest{Name: "good", Executable: "run"})
	writeManifest(t, root, "no-exec", Manifest{Name: "no-exec"})
	writeManifest(t, root, "bad-event", Manifest{Name: "bad-event", Executable: "run", Events: []seat.EventType{"PING"}})

	if err := os.MkdirAll(filepath.Join(root, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	broken := filepath.Join(root, "broken")
	os.MkdirAll(broken, 0755)
	os.WriteFile(filepath.Join(broken, ManifestFile), []byte("{not json"), 0644)
	os.WriteFile(filepath.Join(root, "stray-file"), []byte("x"), 0644)

	manager := NewManager(root)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	hooks := manager.List()
	if len(hooks) != 1 || hooks[0].Manifest.Name != "good" {
		t.Errorf("hooks = %v, want only 'good'", hooks)
	}
}

func TestManager_Discover_MissingDir(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "nope"))
	if err := manager.Discover(); err != nil {
		t.Errorf("missing directory should not be an error: %v", err)
	}
	if len(manager.List()) != 0 {
		t.Error("expected no hooks")
	}
}

func TestManager_Discover_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "hooks")
	os.WriteFile(file, []byte("x"), 0644)

	if err := NewManager(file).Discover(); err == nil {
		t.Error("a file as hook directory should be an error")
	}
}

func TestManager_For(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "all", Manifest{Name: "all", Executable: "run"})
	writeManifest(t, root, "lost", Manifest{Name: "lost", Executable: "run", Events: []seat.EventType{seat.EventLostItem}})
	writeManifest(t, root, "moves", Manifest{Name: "moves", Executable: "run", Events: []seat.EventType{seat.EventCheckIn, seat.EventCheckOut}})

	manager := NewManager(root)
	manager.Discover()

	tests := []struct {
		event seat.EventType
		want  []string
	}{
		{seat.EventCheckIn, []string{"all", "moves"}},
		{seat.EventCheckOut, []string{"all", "moves"}},
		{seat.EventLostItem, []string{"all", "lost"}},
	}

	for _, tt := range tests {
		got := manager.For(tt.event)
		if len(got) != len(tt.want) {
			t.Errorf("For(%s) returned %d hooks, want %d", tt.event, len(got), len(tt.want))
			continue
		}
		for i, h := range got {
			if h.Manifest.Name != tt.want[i] {
				t.Errorf("For(%s)[%d] = %s, want %s", tt.event, i, h.Manifest.Name, tt.want[i])
			}
		}
	}
}
