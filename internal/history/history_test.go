package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
)

func TestRingOnlyStore(t *testing.T) {
	s := New("run-1", slogt.New(t))
	if s.Persistent() {
		t.Error("memory store should not report persistence")
	}

	s.Record(Event{Type: EventStarted})
	s.Record(Event{Type: EventLost, BadCycles: 1})
	s.Record(Event{Type: EventPresent, Address: "84.1.2.3"})

	events := s.Recent(10)
	if len(events) != 3 {
		t.Fatalf("Recent returned %d events, want 3", len(events))
	}
	if events[0].Type != EventPresent || events[2].Type != EventStarted {
		t.Errorf("events not newest-first: %v %v", events[0].Type, events[2].Type)
	}
	for _, ev := range events {
		if ev.RunID != "run-1" {
			t.Errorf("event missing run id: %+v", ev)
		}
		if ev.Time.IsZero() {
			t.Errorf("event missing timestamp: %+v", ev)
		}
	}
}

func TestRingWrap(t *testing.T) {
	s := New("run-1", slogt.New(t))
	total := ringSize + 10
	for i := 0; i < total; i++ {
		s.Record(Event{Type: EventHeal, Details: fmt.Sprintf("event-%d", i)})
	}

	events := s.Recent(ringSize * 2)
	if len(events) != ringSize {
		t.Fatalf("Recent returned %d events, want %d", len(events), ringSize)
	}
	if events[0].Details != fmt.Sprintf("event-%d", total-1) {
		t.Errorf("newest = %q", events[0].Details)
	}
	if events[len(events)-1].Details != fmt.Sprintf("event-%d", total-ringSize) {
		t.Errorf("oldest = %q, want event-%d", events[len(events)-1].Details, total-ringSize)
	}
}

func TestRecentLimit(t *testing.T) {
	s := New("run-1", slogt.New(t))
	for i := 0; i < 5; i++ {
		s.Record(Event{Type: EventProbeError})
	}
	if got := len(s.Recent(2)); got != 2 {
		t.Errorf("Recent(2) returned %d events", got)
	}
	if s.Recent(0) != nil {
		t.Error("Recent(0) should return nil")
	}
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s := Open(path, "run-1", 30, slogt.New(t))
	if !s.Persistent() {
		t.Fatal("store should persist with a writable path")
	}
	s.Record(Event{Type: EventStarted})
	s.Record(Event{Type: EventHeal, Action: "reconnect", Attempts: 1})
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	// A later run sees the earlier rows.
	s2 := Open(path, "run-2", 30, slogt.New(t))
	defer s2.Close()
	s2.Record(Event{Type: EventStarted})

	events := s2.Recent(10)
	if len(events) != 3 {
		t.Fatalf("Recent returned %d events across runs, want 3", len(events))
	}
	if events[0].RunID != "run-2" || events[2].RunID != "run-1" {
		t.Errorf("run ordering wrong: %s ... %s", events[0].RunID, events[2].RunID)
	}
	if events[1].Action != "reconnect" {
		t.Errorf("persisted action = %q", events[1].Action)
	}
}

func TestOpenBadPathDegrades(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := Open(filepath.Join(blocker, "sub", "history.db"), "run-1", 30, slogt.New(t))
	if s.Persistent() {
		t.Error("store should degrade when the directory cannot be created")
	}
	s.Record(Event{Type: EventStarted})
	if len(s.Recent(1)) != 1 {
		t.Error("degraded store must still record to the ring")
	}
}

func TestPrune(t *testing.T) {
	s := Open(":memory:", "run-1", 30, slogt.New(t))
	defer s.Close()

	old := Event{RunID: "run-0", Time: time.Now().AddDate(0, 0, -40), Type: EventStopped}
	if err := s.db.Create(&old).Error; err != nil {
		t.Fatal(err)
	}
	s.Record(Event{Type: EventStarted})

	s.Prune()

	var count int64
	if err := s.db.Model(&Event{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("rows after prune = %d, want 1", count)
	}
	events := s.Recent(10)
	if len(events) != 1 || events[0].Type != EventStarted {
		t.Errorf("surviving events = %+v", events)
	}
}

func TestSubscribe(t *testing.T) {
	s := New("run-1", slogt.New(t))

	var got []Event
	cancel := s.Subscribe(func(ev Event) { got = append(got, ev) })

	s.Record(Event{Type: EventLost})
	if len(got) != 1 || got[0].Type != EventLost {
		t.Fatalf("subscriber saw %+v", got)
	}

	cancel()
	s.Record(Event{Type: EventPresent})
	if len(got) != 1 {
		t.Errorf("subscriber called after cancel, saw %d events", len(got))
	}
}
