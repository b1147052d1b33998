package detector

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/nitz7155/HiSmartStudy/internal/roi"
)

// MockDetector is a test implementation of PresenceDetector and ItemDetector.
// It allows tests to control the detection results while a worker loop is
// calling it from another goroutine.
type MockDetector struct {
	mu          sync.Mutex
	persons     []roi.Rect
	items       []roi.Item
	err         error
	personCalls int
	itemCalls   int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetPersons sets the boxes that will be returned by DetectPersons.
func (m *MockDetector) SetPersons(boxes []roi.Rect) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persons = boxes
}

// SetItems sets the items that will be returned by DetectItems.
func (m *MockDetector) SetItems(items []roi.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
}

// SetError sets the error that will be returned by both detect calls.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// DetectPersons returns the pre-configured boxes or error.
func (m *MockDetector) DetectPersons(frame *gocv.Mat) ([]roi.Rect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.personCalls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]roi.Rect(nil), m.persons...), nil
}

// DetectItems returns the pre-configured items or error.
func (m *MockDetector) DetectItems(frame *gocv.Mat) ([]roi.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemCalls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]roi.Item(nil), m.items...), nil
}

// PersonCalls returns how many times DetectPersons ran.
func (m *MockDetector) PersonCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.personCalls
}

// ItemCalls returns how many times DetectItems ran.
func (m *MockDetector) ItemCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.itemCalls
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}
