package session

import (
	"errors"
	"testing"
)

func newTestTracker(t *testing.T, known ...string) *Tracker {
	t.Helper()
	knownSet := map[string]bool{}
	for _, id := range known {
		knownSet[id] = true
	}
	tracker, err := NewTracker(func(recordID string) bool { return knownSet[recordID] })
	if err != nil {
		t.Fatalf("unexpected tracker error: %v", err)
	}
	return tracker
}

func TestTrackerStartsOnList(t *testing.T) {
	tracker := newTestTracker(t)

	state := tracker.Snapshot()
	if state.ActiveView != ViewList {
		t.Fatalf("expected list view, got %q", state.ActiveView)
	}
	if state.SelectedRecordID != "" {
		t.Fatalf("expected empty selection, got %q", state.SelectedRecordID)
	}
	if state.Busy {
		t.Fatalf("expected not busy")
	}
}

func TestShowDetailRequiresExistingRecord(t *testing.T) {
	tracker := newTestTracker(t, "dream-1")

	if err := tracker.ShowDetail("dream-1"); err != nil {
		t.Fatalf("unexpected detail error: %v", err)
	}
	state := tracker.Snapshot()
	if state.ActiveView != ViewDetail || state.SelectedRecordID != "dream-1" {
		t.Fatalf("unexpected state %+v", state)
	}

	if err := tracker.ShowDetail("missing"); !errors.Is(err, ErrUnknownRecord) {
		t.Fatalf("expected unknown record, got %v", err)
	}
	if err := tracker.ShowDetail("  "); !errors.Is(err, ErrUnknownRecord) {
		t.Fatalf("expected unknown record for blank id, got %v", err)
	}
	state = tracker.Snapshot()
	if state.SelectedRecordID != "dream-1" {
		t.Fatalf("rejected transition must not change the selection, got %+v", state)
	}
}

func TestListAndCaptureClearSelection(t *testing.T) {
	tracker := newTestTracker(t, "dream-1")
	if err := tracker.ShowDetail("dream-1"); err != nil {
		t.Fatalf("unexpected detail error: %v", err)
	}

	tracker.ShowCapture()
	state := tracker.Snapshot()
	if state.ActiveView != ViewCapture || state.SelectedRecordID != "" {
		t.Fatalf("capture must clear the selection, got %+v", state)
	}

	if err := tracker.ShowDetail("dream-1"); err != nil {
		t.Fatalf("unexpected detail error: %v", err)
	}
	tracker.ShowList()
	state = tracker.Snapshot()
	if state.ActiveView != ViewList || state.SelectedRecordID != "" {
		t.Fatalf("list must clear the selection, got %+v", state)
	}
}

func TestSetBusy(t *testing.T) {
	tracker := newTestTracker(t)

	tracker.SetBusy(true)
	if !tracker.Snapshot().Busy {
		t.Fatalf("expected busy state")
	}
	tracker.SetBusy(false)
	if tracker.Snapshot().Busy {
		t.Fatalf("expected idle state")
	}
}

func TestApply(t *testing.T) {
	tracker := newTestTracker(t, "dream-1")

	if err := tracker.Apply(ViewDetail, "dream-1"); err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}
	if state := tracker.Snapshot(); state.ActiveView != ViewDetail {
		t.Fatalf("expected detail view, got %+v", state)
	}

	if err := tracker.Apply(ViewDetail, "missing"); !errors.Is(err, ErrUnknownRecord) {
		t.Fatalf("expected unknown record, got %v", err)
	}
	if err := tracker.Apply(View("settings"), ""); !errors.Is(err, ErrInvalidView) {
		t.Fatalf("expected invalid view, got %v", err)
	}

	if err := tracker.Apply(ViewList, "ignored"); err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}
	if state := tracker.Snapshot(); state.SelectedRecordID != "" {
		t.Fatalf("list must drop the selection, got %+v", state)
	}
}

func TestParseView(t *testing.T) {
	if view, err := ParseView(" Detail "); err != nil || view != ViewDetail {
		t.Fatalf("expected detail view, got %q %v", view, err)
	}
	if _, err := ParseView("dashboard"); !errors.Is(err, ErrInvalidView) {
		t.Fatalf("expected invalid view, got %v", err)
	}
}

func TestNewTrackerRequiresProbe(t *testing.T) {
	if _, err := NewTracker(nil); err == nil {
		t.Fatalf("expected error without existence probe")
	}
}
