package store

import (
	"errors"
	"testing"
	"time"

	"github.com/nitz7155/HiSmartStudy/internal/occupancy"
	"github.com/nitz7155/HiSmartStudy/internal/roi"
)

func TestLostItemRepository_SaveAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.LostItems()

	pending := occupancy.LostItemResult{SeatID: 5, UsageID: 777, Items: []roi.Item{}}
	if err := repo.Save(pending); err != nil {
		t.Fatalf("Save(pending) error = %v", err)
	}

	got, err := repo.Get(777)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Done || got.SeatID != 5 || got.DetectedAt != nil || len(got.Items) != 0 {
		t.Errorf("pending result = %+v", got)
	}

	at := t0.Add(3 * time.Minute)
	done := occupancy.LostItemResult{
		Done:        true,
		SeatID:      5,
		UsageID:     777,
		Items:       []roi.Item{{Name: "bottle", Box: roi.Rect{X1: 1, Y1: 2, X2: 3, Y2: 4}}},
		ImageBase64: "aGVsbG8=",
		DetectedAt:  &at,
	}
	if err := repo.Save(done); err != nil {
		t.Fatalf("Save(done) error = %v", err)
	}

	got, err = repo.Get(777)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Done || got.ImageBase64 != "aGVsbG8=" || len(got.Items) != 1 {
		t.Errorf("done result = %+v", got)
	}
	if got.DetectedAt == nil || !got.DetectedAt.Equal(at) {
		t.Errorf("DetectedAt = %v, want %v", got.DetectedAt, at)
	}
}

func TestLostItemRepository_DoneNotOverwritten(t *testing.T) {
	s := newTestStore(t)
	repo := s.LostItems()

	at := t0
	if err := repo.Save(occupancy.LostItemResult{Done: true, SeatID: 5, UsageID: 777, DetectedAt: &at}); err != nil {
		t.Fatalf("Save(done) error = %v", err)
	}
	if err := repo.Save(occupancy.LostItemResult{SeatID: 9, UsageID: 777}); err != nil {
		t.Fatalf("Save(pending) error = %v", err)
	}

	got, err := repo.Get(777)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Done || got.SeatID != 5 {
		t.Errorf("completed result was replaced: %+v", got)
	}
}

func TestLostItemRepository_NotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.LostItems().Get(1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}

	_, ok, err := s.LoadLostItemResult(1)
	if err != nil || ok {
		t.Errorf("LoadLostItemResult() = ok %v, err %v; want missing without error", ok, err)
	}
}

func TestLostItemRepository_ListPending(t *testing.T) {
	s := newTestStore(t)

	for _, res := range []occupancy.LostItemResult{
		{SeatID: 1, UsageID: 10},
		{SeatID: 2, UsageID: 20, Done: true},
		{SeatID: 3, UsageID: 30},
	} {
		if err := s.SaveLostItemResult(res); err != nil {
			t.Fatalf("SaveLostItemResult() error = %v", err)
		}
	}

	ids, err := s.LostItems().ListPending()
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ListPending() = %v, want two ids", ids)
	}
	for _, id := range ids {
		if id == 20 {
			t.Error("completed result should not be pending")
		}
	}
}

// Store must satisfy the occupancy recorder contract.
var _ occupancy.Recorder = (*Store)(nil)
