package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nitz7155/HiSmartStudy/internal/occupancy"
	"github.com/nitz7155/HiSmartStudy/internal/seat"
	"github.com/nitz7155/HiSmartStudy/internal/store"
)

type testDispatcher struct{}

func (testDispatcher) StartTracking(seatID int, usageID int64) error      { return nil }
func (testDispatcher) StartLostItemCheck(seatID int, usageID int64) error { return nil }
func (testDispatcher) Owns(seatID int) bool                               { return seatID == 5 }

func TestAPI_SeatWorkflow(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer st.Close()

	seats := occupancy.New(occupancy.Config{Dispatcher: testDispatcher{}, Recorder: st})
	journal := store.NewJournal(st, nil)
	hub := NewHub(nil)
	seats.Observe(journal.Handle)
	seats.Observe(hub.Broadcast)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go seats.Run(ctx)
	go journal.Run(ctx)

	srv := New(Config{Seats: seats, Journal: st.Events(), Hub: hub})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	defer hub.Close()

	client := ts.Client()

	// 1. Subscribe to the event stream
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/camera/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	// 2. Check in
	resp, err := client.Post(ts.URL+"/camera/checkin", "application/json", bytes.NewBufferString(`{"seat_id": 5, "usage_id": 777}`))
	if err != nil {
		t.Fatalf("POST /camera/checkin error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("checkin status = %d, want 200", resp.StatusCode)
	}

	// 3. Camera confirms presence
	seats.PushEvent(seat.NewEvent(5, seat.EventCheckIn, time.Now()).WithSource("cam-1", 777))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev seat.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("websocket read error = %v", err)
	}
	if ev.SeatID != 5 || ev.Type != seat.EventCheckIn {
		t.Errorf("streamed event = %+v", ev)
	}

	// 4. Check out; a pending result is immediately pollable
	resp, err = client.Post(ts.URL+"/camera/checkout", "application/json", bytes.NewBufferString(`{"seat_id": 5, "usage_id": 777}`))
	if err != nil {
		t.Fatalf("POST /camera/checkout error = %v", err)
	}
	var accepted struct {
		JobID int64 `json:"job_id"`
	}
	json.NewDecoder(resp.Body).Decode(&accepted)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || accepted.JobID != 777 {
		t.Fatalf("checkout status = %d, job_id = %d", resp.StatusCode, accepted.JobID)
	}

	resp, _ = client.Get(ts.URL + "/camera/lost-item/result/777")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// 5. The applied check-in reaches the journal
	var history struct {
		Events []seat.Event `json:"events"`
	}
	deadline = time.Now().Add(2 * time.Second)
	for len(history.Events) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		resp, _ = client.Get(ts.URL + "/camera/history/5")
		json.NewDecoder(resp.Body).Decode(&history)
		resp.Body.Close()
	}
	if len(history.Events) != 1 || history.Events[0].ID != ev.ID {
		t.Errorf("history = %+v, want the streamed check-in", history.Events)
	}

	// 6. Unmapped seat is rejected
	resp, _ = client.Post(ts.URL+"/camera/checkin", "application/json", bytes.NewBufferString(`{"seat_id": 6, "usage_id": 1}`))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unmapped checkin status = %d, want 400", resp.StatusCode)
	}
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub(nil)
	hub.Broadcast(seat.NewEvent(1, seat.EventCheckOut, time.Now()))
	if hub.Clients() != 0 {
		t.Errorf("Clients() = %d, want 0", hub.Clients())
	}
}
