package store

import (
	"context"
	"testing"
	"time"

	"github.com/nitz7155/HiSmartStudy/internal/roi"
	"github.com/nitz7155/HiSmartStudy/internal/seat"
)

func TestJournal_WritesEventsAndResults(t *testing.T) {
	s := newTestStore(t)
	j := NewJournal(s, nil)

	checkin := seat.NewEvent(5, seat.EventCheckIn, t0).WithSource("cam-1", 777)
	lost := seat.NewEvent(5, seat.EventLostItem, t0.Add(time.Minute)).WithSource("cam-1", 777)
	lost.Items = []roi.Item{{Name: "laptop", Box: roi.Rect{X1: 1, Y1: 2, X2: 3, Y2: 4}}}
	lost.ImageBase64 = "aW1n"

	j.Handle(checkin)
	j.Handle(lost)

	// A cancelled context still flushes what was queued.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if j.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", j.Pending())
	}

	events, err := s.Events().ListByUsage(777)
	if err != nil {
		t.Fatalf("ListByUsage() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("journaled %d events, want 2", len(events))
	}

	res, ok, err := s.LoadLostItemResult(777)
	if err != nil || !ok {
		t.Fatalf("LoadLostItemResult() = %v, %v", ok, err)
	}
	if !res.Done || len(res.Items) != 1 || res.ImageBase64 != "aW1n" {
		t.Errorf("persisted result = %+v", res)
	}
}

func TestJournal_HandleNeverBlocks(t *testing.T) {
	j := NewJournal(newTestStore(t), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < journalBacklog+10; i++ {
			j.Handle(seat.NewEvent(1, seat.EventCheckIn, t0))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Handle blocked with no writer running")
	}
	if j.Pending() != journalBacklog {
		t.Errorf("Pending() = %d, want %d", j.Pending(), journalBacklog)
	}
}
