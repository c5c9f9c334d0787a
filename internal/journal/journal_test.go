package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mtzanidakis/taskmaster/internal/broker"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("create journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestInteractionEventAndHistory(t *testing.T) {
	j := newTestJournal(t)

	now := time.Now()
	for _, state := range []string{broker.StateDispatching, broker.StateAwaitingAgent, broker.StateCompleted} {
		j.InteractionEvent(broker.Event{
			InteractionID: "i1",
			State:         state,
			Command:       "expand-task",
			Time:          now,
		})
	}
	j.InteractionEvent(broker.Event{InteractionID: "i2", State: broker.StateFailed, Command: "research", Detail: "boom", Time: now})

	history, err := j.History("i1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 events, got %d", len(history))
	}
	if history[0].State != broker.StateDispatching || history[2].State != broker.StateCompleted {
		t.Errorf("history out of order: %+v", history)
	}

	recent, err := j.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 4 {
		t.Fatalf("expected 4 events, got %d", len(recent))
	}
	if recent[0].InteractionID != "i2" || recent[0].Detail != "boom" {
		t.Errorf("newest first expected, got %+v", recent[0])
	}
}

func TestRecentLimit(t *testing.T) {
	j := newTestJournal(t)
	for i := 0; i < 5; i++ {
		j.InteractionEvent(broker.Event{InteractionID: "x", State: broker.StateCompleted, Command: "c", Time: time.Now()})
	}
	recent, err := j.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("limit not applied, got %d", len(recent))
	}
}
