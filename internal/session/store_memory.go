package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for dev and tests. Safe for concurrent use.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*ClassSession
	byToken     map[string]string
	enrollments map[string]map[string]bool // classID -> studentID set
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*ClassSession),
		byToken:     make(map[string]string),
		enrollments: make(map[string]map[string]bool),
	}
}

// Create inserts a new session, filling defaults like the SQL store.
func (s *MemoryStore) Create(ctx context.Context, sess ClassSession) (ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Token == "" {
		sess.Token = uuid.NewString()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	if sess.SessionDate.IsZero() {
		sess.SessionDate = sess.StartedAt
	}
	cp := sess
	s.sessions[cp.ID] = &cp
	s.byToken[cp.Token] = cp.ID
	return sess, nil
}

// GetByID returns a copy of the session, nil when absent.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyOf(id), nil
}

// GetByToken returns a copy of the session carrying the token, nil when absent.
func (s *MemoryStore) GetByToken(ctx context.Context, token string) (*ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, nil
	}
	return s.copyOf(id), nil
}

// End performs the open-to-ended transition at most once.
func (s *MemoryStore) End(ctx context.Context, id string, endedAt time.Time) (*ClassSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false, ErrSessionNotFound
	}
	if sess.EndedAt != nil {
		return s.copyOf(id), false, nil
	}
	at := endedAt
	sess.EndedAt = &at
	return s.copyOf(id), true, nil
}

// Enroll records class membership.
func (s *MemoryStore) Enroll(ctx context.Context, studentID, classID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.enrollments[classID]
	if !ok {
		set = make(map[string]bool)
		s.enrollments[classID] = set
	}
	set[studentID] = true
	return nil
}

// IsEnrolled reports class membership.
func (s *MemoryStore) IsEnrolled(ctx context.Context, studentID, classID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrollments[classID][studentID], nil
}

// EnrolledCount returns how many students belong to the class.
func (s *MemoryStore) EnrolledCount(ctx context.Context, classID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.enrollments[classID]), nil
}

// LiveAt reports session liveness under the store lock; the attendance
// memory store uses it to make its conditional insert atomic with the
// liveness check.
func (s *MemoryStore) LiveAt(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return false, nil
	}
	return sess.Live(at), nil
}

func (s *MemoryStore) copyOf(id string) *ClassSession {
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	cp := *sess
	if sess.EndedAt != nil {
		t := *sess.EndedAt
		cp.EndedAt = &t
	}
	if sess.TokenExpiry != nil {
		t := *sess.TokenExpiry
		cp.TokenExpiry = &t
	}
	if sess.LectureID != nil {
		l := *sess.LectureID
		cp.LectureID = &l
	}
	return &cp
}
