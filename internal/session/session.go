package session

import (
	"context"
	"errors"
	"time"
)

// ClassSession is one scheduled class meeting with a join token.
type ClassSession struct {
	ID          string
	ClassID     string
	LectureID   *string
	SessionDate time.Time
	StartedAt   time.Time
	EndedAt     *time.Time
	Token       string
	TokenExpiry *time.Time
}

// Live reports whether the session accepts joins at the given instant.
func (s ClassSession) Live(now time.Time) bool {
	if s.EndedAt != nil {
		return false
	}
	if s.TokenExpiry != nil && !now.Before(*s.TokenExpiry) {
		return false
	}
	return true
}

// Duration is the wall-clock length of an ended session; zero while open.
func (s ClassSession) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	d := s.EndedAt.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

var ErrSessionNotFound = errors.New("session not found")

// Store persists class sessions and class enrollment membership.
type Store interface {
	Create(ctx context.Context, s ClassSession) (ClassSession, error)
	// GetByID returns nil, nil when no session matches.
	GetByID(ctx context.Context, id string) (*ClassSession, error)
	// GetByToken returns nil, nil when no session carries the token.
	GetByToken(ctx context.Context, token string) (*ClassSession, error)
	// End sets ended_at only if it is currently unset. The bool reports
	// whether this call performed the transition.
	End(ctx context.Context, id string, endedAt time.Time) (*ClassSession, bool, error)

	Enroll(ctx context.Context, studentID, classID string) error
	IsEnrolled(ctx context.Context, studentID, classID string) (bool, error)
	EnrolledCount(ctx context.Context, classID string) (int, error)
}
