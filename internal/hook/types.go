// Package hook runs operator-supplied executables when seat events are
// applied. Each hook lives in its own directory with a hook.json manifest;
// the event is written to its stdin as JSON and a JSON Response is read
// back from stdout.
package hook

import (
	"encoding/json"

	"github.com/nitz7155/HiSmartStudy/internal/seat"
)

// ManifestFile is the manifest name looked up in each hook directory.
const ManifestFile = "hook.json"

// Manifest describes a hook's metadata and the events it subscribes to.
type Manifest struct {
	Name        string           `json:"name"`
	Version     string           `json:"version"`
	Description string           `json:"description"`
	Executable  string           `json:"executable"`
	Events      []seat.EventType `json:"events"`
	Config      json.RawMessage  `json:"config,omitempty"`
}

// Request is sent to a hook for one event.
type Request struct {
	Event  seat.Event      `json:"event"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Response is what a hook prints on stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Handles reports whether the hook subscribes to t. A hook with no events
// listed receives every event.
func (h *Hook) Handles(t seat.EventType) bool {
	if len(h.Manifest.Events) == 0 {
		return true
	}
	for _, e := range h.Manifest.Events {
		if e == t {
			return true
		}
	}
	return false
}
