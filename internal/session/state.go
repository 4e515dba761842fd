package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// View enumerates the client screens.
type View string

const (
	ViewList    View = "list"
	ViewCapture View = "capture"
	ViewDetail  View = "detail"
)

var (
	// ErrInvalidView indicates an unknown view name.
	ErrInvalidView = errors.New("session: invalid view")
	// ErrUnknownRecord rejects a detail selection for a record that does
	// not exist: the detail view must always reference a live record.
	ErrUnknownRecord = errors.New("session: unknown record")
)

// ParseView validates a raw view value.
func ParseView(value string) (View, error) {
	switch View(strings.ToLower(strings.TrimSpace(value))) {
	case ViewList:
		return ViewList, nil
	case ViewCapture:
		return ViewCapture, nil
	case ViewDetail:
		return ViewDetail, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidView, value)
	}
}

// State is the explicit, serializable screen state: which view is active,
// which record is selected, and whether a capture is processing. It replaces
// ambient per-component state so transitions are testable.
type State struct {
	ActiveView       View   `json:"active_view"`
	SelectedRecordID string `json:"selected_record_id,omitempty"`
	Busy             bool   `json:"busy"`
}

// Tracker owns the screen state and guards its invariants.
type Tracker struct {
	mu     sync.Mutex
	state  State
	exists func(recordID string) bool
}

// NewTracker starts on the list view. The exists probe backs the detail-view
// invariant.
func NewTracker(exists func(recordID string) bool) (*Tracker, error) {
	if exists == nil {
		return nil, errors.New("session: record existence probe is required")
	}
	return &Tracker{
		state:  State{ActiveView: ViewList},
		exists: exists,
	}, nil
}

// ShowList switches to the journal list and clears the selection.
func (t *Tracker) ShowList() {
	t.mu.Lock()
	t.state.ActiveView = ViewList
	t.state.SelectedRecordID = ""
	t.mu.Unlock()
}

// ShowCapture switches to the capture screen and clears the selection.
func (t *Tracker) ShowCapture() {
	t.mu.Lock()
	t.state.ActiveView = ViewCapture
	t.state.SelectedRecordID = ""
	t.mu.Unlock()
}

// ShowDetail selects an existing record and switches to the detail view.
func (t *Tracker) ShowDetail(recordID string) error {
	if strings.TrimSpace(recordID) == "" || !t.exists(recordID) {
		return fmt.Errorf("%w: %q", ErrUnknownRecord, recordID)
	}
	t.mu.Lock()
	t.state.ActiveView = ViewDetail
	t.state.SelectedRecordID = recordID
	t.mu.Unlock()
	return nil
}

// SetBusy records whether a capture sequence is processing.
func (t *Tracker) SetBusy(busy bool) {
	t.mu.Lock()
	t.state.Busy = busy
	t.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Apply transitions to the requested view in one step, enforcing the same
// invariants as the individual transitions.
func (t *Tracker) Apply(view View, selectedRecordID string) error {
	switch view {
	case ViewList:
		t.ShowList()
		return nil
	case ViewCapture:
		t.ShowCapture()
		return nil
	case ViewDetail:
		return t.ShowDetail(selectedRecordID)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidView, string(view))
	}
}
