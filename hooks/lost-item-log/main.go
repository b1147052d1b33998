// Package main provides a hook that appends lost-item findings to a JSON
// lines file.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Request represents the input from the hook executor.
type Request struct {
	Event  Event           `json:"event"`
	Config json.RawMessage `json:"config"`
}

// Event is the subset of a seat event this hook reads.
type Event struct {
	ID         string            `json:"id"`
	SeatID     int               `json:"seat_id"`
	Type       string            `json:"event_type"`
	DetectedAt time.Time         `json:"detected_at"`
	UsageID    *int64            `json:"usage_id"`
	Items      []json.RawMessage `json:"items"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type config struct {
	Path string `json:"path"`
}

type entry struct {
	SeatID     int               `json:"seat_id"`
	UsageID    *int64            `json:"usage_id"`
	DetectedAt time.Time         `json:"detected_at"`
	Items      []json.RawMessage `json:"items"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(fmt.Errorf("failed to decode request: %w", err))
		return
	}

	if req.Event.Type != "LOST_ITEM" || len(req.Event.Items) == 0 {
		writeResponse(nil)
		return
	}

	cfg := config{Path: "lost-items.jsonl"}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeResponse(fmt.Errorf("failed to parse config: %w", err))
			return
		}
	}

	writeResponse(appendEntry(cfg.Path, entry{
		SeatID:     req.Event.SeatID,
		UsageID:    req.Event.UsageID,
		DetectedAt: req.Event.DetectedAt,
		Items:      req.Event.Items,
	}))
}

func appendEntry(path string, e entry) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(e)
}

// writeResponse writes the result to stdout.
func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
