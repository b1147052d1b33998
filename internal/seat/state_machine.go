package seat

import "time"

// DefaultThreshold is the number of consecutive consistent frames required
// before a seat commits to a transition.
const DefaultThreshold = 20

// State is the debounced occupancy of a seat.
type State string

const (
	// StateEmpty means nobody is detected in the seat region.
	StateEmpty State = "EMPTY"
	// StateOccupied means a person is detected in the seat region.
	StateOccupied State = "OCCUPIED"
)

// StateMachine debounces a noisy per-frame presence signal into stable
// CHECK_IN / CHECK_OUT transitions. It is not safe for concurrent use; each
// machine belongs to exactly one camera worker loop.
type StateMachine struct {
	seatID    int
	state     State
	counter   int
	threshold int
	now       func() time.Time
}

// NewStateMachine creates a machine in the EMPTY state. Thresholds below 1
// select DefaultThreshold.
func NewStateMachine(seatID, threshold int) *StateMachine {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &StateMachine{
		seatID:    seatID,
		state:     StateEmpty,
		threshold: threshold,
		now:       time.Now,
	}
}

// SetClock replaces the time source used to stamp events.
func (m *StateMachine) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Update feeds one frame's presence result. It returns an event and true only
// on the frame that completes a transition.
//
// In EMPTY, presence frames count toward CHECK_IN and any absent frame resets
// the count. OCCUPIED is symmetric with absence counting toward CHECK_OUT.
func (m *StateMachine) Update(present bool) (Event, bool) {
	switch m.state {
	case StateEmpty:
		if !present {
			m.counter = 0
			return Event{}, false
		}
		m.counter++
		if m.counter >= m.threshold {
			m.state = StateOccupied
			m.counter = 0
			return NewEvent(m.seatID, EventCheckIn, m.now()), true
		}

	case StateOccupied:
		if present {
			m.counter = 0
			return Event{}, false
		}
		m.counter++
		if m.counter >= m.threshold {
			m.state = StateEmpty
			m.counter = 0
			return NewEvent(m.seatID, EventCheckOut, m.now()), true
		}
	}

	return Event{}, false
}

// Reset returns the machine to EMPTY with a cleared counter.
func (m *StateMachine) Reset() {
	m.state = StateEmpty
	m.counter = 0
}

// SeatID returns the seat this machine tracks.
func (m *StateMachine) SeatID() int { return m.seatID }

// State returns the current debounced state.
func (m *StateMachine) State() State { return m.state }

// Counter returns the number of consecutive frames counted toward the next
// transition.
func (m *StateMachine) Counter() int { return m.counter }

// Threshold returns the stabilization window length in frames.
func (m *StateMachine) Threshold() int { return m.threshold }
