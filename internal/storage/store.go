// Package storage persists a history of entity sightings (new/stopped
// events) to SQLite. Persistence is optional: with no db_path configured
// the factory hands back a no-op recorder and the rest of the system is
// unaffected.
package storage

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"
)

const (
	writeChannelSize = 1000
	batchSize        = 50
	flushInterval    = 100 * time.Millisecond
)

// Sighting is one recorded lifecycle event for a tracked entity.
type Sighting struct {
	Key       string
	Class     string
	Event     string // "new" or "stopped"
	PID       int32
	Port      int
	Name      string
	Framework string
	CWD       string
	At        time.Time
}

// Recorder is the sighting sink handed to the engine listeners.
type Recorder interface {
	// RecordSighting enqueues a sighting; it never blocks the caller.
	RecordSighting(s Sighting)
	// RecentSightings returns the newest sightings, newest first.
	RecentSightings(limit int) ([]Sighting, error)
	Close() error
}

// SQLiteStore writes sightings through a single background writer with
// batched transactions, so the engine's event path never waits on disk.
type SQLiteStore struct {
	db            *sql.DB
	writeChan     chan Sighting
	doneChan      chan struct{}
	closed        atomic.Bool
	droppedWrites atomic.Int64
}

// NewSQLiteStore opens the database, prunes rows past the retention
// window and starts the background writer.
func NewSQLiteStore(dbPath string, retentionDays int) (*SQLiteStore, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}

	if retentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -retentionDays).UTC().Format(time.RFC3339)
		if _, err := db.Exec("DELETE FROM sightings WHERE at < ?", cutoff); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pruning retention window: %w", err)
		}
	}

	s := &SQLiteStore{
		db:        db,
		writeChan: make(chan Sighting, writeChannelSize),
		doneChan:  make(chan struct{}),
	}
	go s.writerLoop()
	return s, nil
}

// RecordSighting enqueues a sighting for the background writer. When the
// queue is full the sighting is dropped and counted rather than blocking
// a scan cycle.
func (s *SQLiteStore) RecordSighting(sighting Sighting) {
	if s.closed.Load() {
		return
	}
	select {
	case s.writeChan <- sighting:
	default:
		s.droppedWrites.Add(1)
	}
}

// DroppedWrites reports how many sightings were discarded due to a full
// write queue.
func (s *SQLiteStore) DroppedWrites() int64 {
	return s.droppedWrites.Load()
}

// RecentSightings returns the newest sightings, newest first.
func (s *SQLiteStore) RecentSightings(limit int) ([]Sighting, error) {
	rows, err := s.db.Query(`
		SELECT key, class, event, pid, port, name, framework, cwd, at
		FROM sightings ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sightings: %w", err)
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var sg Sighting
		var at string
		if err := rows.Scan(&sg.Key, &sg.Class, &sg.Event, &sg.PID, &sg.Port, &sg.Name, &sg.Framework, &sg.CWD, &at); err != nil {
			return nil, fmt.Errorf("scanning sighting: %w", err)
		}
		sg.At, _ = time.Parse(time.RFC3339, at)
		out = append(out, sg)
	}
	return out, rows.Err()
}

// Close drains the write queue, flushes the final batch and closes the
// database.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.writeChan)
	<-s.doneChan
	return s.db.Close()
}

func (s *SQLiteStore) writerLoop() {
	defer close(s.doneChan)

	batch := make([]Sighting, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case sighting, ok := <-s.writeChan:
			if !ok {
				s.flush(batch)
				return
			}
			batch = append(batch, sighting)
			if len(batch) >= batchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *SQLiteStore) flush(batch []Sighting) {
	if len(batch) == 0 {
		return
	}
	tx, err := s.db.Begin()
	if err != nil {
		s.droppedWrites.Add(int64(len(batch)))
		return
	}
	stmt, err := tx.Prepare(`
		INSERT INTO sightings (key, class, event, pid, port, name, framework, cwd, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		s.droppedWrites.Add(int64(len(batch)))
		return
	}
	for _, sg := range batch {
		_, _ = stmt.Exec(sg.Key, sg.Class, sg.Event, sg.PID, sg.Port, sg.Name, sg.Framework, sg.CWD, sg.At.UTC().Format(time.RFC3339))
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		s.droppedWrites.Add(int64(len(batch)))
	}
}

// NopRecorder is the in-memory fallback: it records nothing.
type NopRecorder struct{}

func (NopRecorder) RecordSighting(Sighting) {}

func (NopRecorder) RecentSightings(int) ([]Sighting, error) { return nil, nil }

func (NopRecorder) Close() error { return nil }
