package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LivenessFunc answers whether a session accepts joins at a given instant.
// The session memory store provides one that holds its own lock.
type LivenessFunc func(ctx context.Context, sessionID string, at time.Time) (bool, error)

// MemoryStore is an in-memory Store for dev and tests. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record // keyed by sessionID+"/"+studentID
	live    LivenessFunc
}

// NewMemoryStore creates an empty store checking liveness through live.
func NewMemoryStore(live LivenessFunc) *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record), live: live}
}

func key(sessionID, studentID string) string {
	return sessionID + "/" + studentID
}

// InsertIfLive mirrors the SQL conditional insert: uniqueness check, liveness
// check, and insert happen under one lock.
func (s *MemoryStore) InsertIfLive(ctx context.Context, rec Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(rec.SessionID, rec.StudentID)
	if _, exists := s.records[k]; exists {
		return false, nil
	}
	ok, err := s.live(ctx, rec.SessionID, rec.TimeJoined)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	cp := rec
	s.records[k] = &cp
	return true, nil
}

// Get returns a copy of the record for the pair, nil when absent.
func (s *MemoryStore) Get(ctx context.Context, sessionID, studentID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key(sessionID, studentID)]
	if !ok {
		return nil, nil
	}
	cp := copyRecord(rec)
	return &cp, nil
}

// OpenBySession lists the session's not-yet-finalized records.
func (s *MemoryStore) OpenBySession(ctx context.Context, sessionID string) ([]Record, error) {
	return s.listBySession(sessionID, true), nil
}

// BySession lists all of the session's records.
func (s *MemoryStore) BySession(ctx context.Context, sessionID string) ([]Record, error) {
	return s.listBySession(sessionID, false), nil
}

func (s *MemoryStore) listBySession(sessionID string, openOnly bool) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Record
	for _, rec := range s.records {
		if rec.SessionID != sessionID {
			continue
		}
		if openOnly && rec.Closed() {
			continue
		}
		res = append(res, copyRecord(rec))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].TimeJoined.Before(res[j].TimeJoined) })
	return res
}

// Close finalizes an open record.
func (s *MemoryStore) Close(ctx context.Context, id string, timeLeft time.Time, hours float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID(id)
	if rec == nil || rec.Closed() {
		return false, nil
	}
	t := timeLeft
	rec.TimeLeft = &t
	rec.HoursAttended = hours
	return true, nil
}

// SetRemoved performs the present -> removed transition.
func (s *MemoryStore) SetRemoved(ctx context.Context, id string, closeAt *time.Time, hours *float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID(id)
	if rec == nil || rec.Status != StatusPresent {
		return false, nil
	}
	rec.Status = StatusRemoved
	if rec.TimeLeft == nil && closeAt != nil {
		t := *closeAt
		rec.TimeLeft = &t
	}
	if hours != nil {
		rec.HoursAttended = *hours
	}
	return true, nil
}

func (s *MemoryStore) byID(id string) *Record {
	for _, rec := range s.records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func copyRecord(rec *Record) Record {
	cp := *rec
	if rec.TimeLeft != nil {
		t := *rec.TimeLeft
		cp.TimeLeft = &t
	}
	return cp
}
