// Package history keeps a bounded record of watchdog events: a fixed-size
// in-memory ring for the status API plus a SQLite mirror that survives
// restarts. When the database cannot be opened the store degrades to
// ring-only with a single warning.
package history

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ringSize is the number of events kept in memory.
const ringSize = 256

// EventType classifies a recorded event.
type EventType string

const (
	EventStarted            EventType = "started"
	EventPresent            EventType = "address_present"
	EventLost               EventType = "address_lost"
	EventChanged            EventType = "address_changed"
	EventProbeError         EventType = "probe_error"
	EventHeal               EventType = "heal"
	EventReconnectRequested EventType = "reconnect_requested"
	EventStopped            EventType = "stopped"
)

// Event is one recorded watchdog occurrence.
type Event struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RunID     string    `gorm:"index;size:36" json:"run_id"`
	Time      time.Time `gorm:"index" json:"time"`
	Type      EventType `gorm:"index;size:32" json:"type"`
	Address   string    `json:"address,omitempty"`
	Action    string    `json:"action,omitempty"`
	BadCycles int       `json:"bad_cycles"`
	Attempts  int       `json:"attempts"`
	Details   string    `json:"details,omitempty"`
}

// Store records events. Safe for concurrent use: the watchdog loop writes
// while the status API reads.
type Store struct {
	log   *slog.Logger
	runID string
	days  int
	db    *gorm.DB

	mu        sync.RWMutex
	ring      [ringSize]Event
	head      int
	count     int
	listeners map[int]func(Event)
	nextSub   int
}

// New creates a memory-only store stamping events with runID.
func New(runID string, log *slog.Logger) *Store {
	return &Store{
		log:       log,
		runID:     runID,
		listeners: make(map[int]func(Event)),
	}
}

// Open creates a store persisting to the SQLite file at path and keeping
// retentionDays of rows. Database trouble is logged once and the store
// continues ring-only.
func Open(path, runID string, retentionDays int, log *slog.Logger) *Store {
	s := New(runID, log)
	s.days = retentionDays

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn("cannot create history directory, events stay in memory",
				"dir", dir, "error", err)
			return s
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Warn("cannot open history database, events stay in memory",
			"path", path, "error", err)
		return s
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Exec("PRAGMA journal_mode=WAL")
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		log.Warn("cannot migrate history schema, events stay in memory", "error", err)
		return s
	}
	s.db = db
	return s
}

// Persistent reports whether events are mirrored to SQLite.
func (s *Store) Persistent() bool {
	return s.db != nil
}

// Record stamps and stores an event, fanning it out to subscribers.
// Subscribers run synchronously; slow consumers must buffer on their side.
func (s *Store) Record(ev Event) {
	ev.RunID = s.runID
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	s.mu.Lock()
	s.ring[s.head] = ev
	s.head = (s.head + 1) % ringSize
	if s.count < ringSize {
		s.count++
	}
	listeners := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Create(&ev).Error; err != nil {
			s.log.Warn("persist history event", "type", ev.Type, "error", err)
		}
	}
	for _, fn := range listeners {
		fn(ev)
	}
}

// Recent returns up to n events, newest first. With a database attached the
// result spans previous runs; otherwise it comes from the in-memory ring.
func (s *Store) Recent(n int) []Event {
	if n <= 0 {
		return nil
	}
	if s.db != nil {
		var events []Event
		if err := s.db.Order("id DESC").Limit(n).Find(&events).Error; err == nil {
			return events
		}
		s.log.Warn("query history database, falling back to memory")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return nil
	}
	if n > s.count {
		n = s.count
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.ring[(s.head-1-i+ringSize)%ringSize])
	}
	return out
}

// Prune deletes persisted events older than the retention window.
func (s *Store) Prune() {
	if s.db == nil || s.days <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -s.days)
	res := s.db.Where("time < ?", cutoff).Delete(&Event{})
	if res.Error != nil {
		s.log.Warn("prune history", "error", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		s.log.Debug("pruned history events", "rows", res.RowsAffected)
	}
}

// Subscribe registers fn for every future event. The returned func cancels
// the subscription.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Close releases the database handle, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
