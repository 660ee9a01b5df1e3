package attendance

import (
	"context"
	"errors"
	"time"
)

// Status is the closed set of attendance record states. The only legal
// transition is present -> removed.
type Status string

const (
	StatusPresent Status = "present"
	StatusRemoved Status = "removed"
)

// Record is one student's attendance in one session. At most one record
// ever exists per (SessionID, StudentID); the store enforces the key.
type Record struct {
	ID            string
	SessionID     string
	StudentID     string
	TimeJoined    time.Time
	TimeLeft      *time.Time
	HoursAttended float64
	Status        Status
}

// Closed reports whether the attendance window has been finalized.
func (r Record) Closed() bool {
	return r.TimeLeft != nil
}

var (
	ErrRecordNotFound = errors.New("attendance record not found")
	ErrAlreadyRemoved = errors.New("record already removed")
)

// Store persists attendance records. InsertIfLive must be a single atomic
// conditional write: it fails without side effects when a record for the
// key already exists or when the session is no longer live.
type Store interface {
	InsertIfLive(ctx context.Context, rec Record) (bool, error)
	// Get returns nil, nil when no record exists for the pair.
	Get(ctx context.Context, sessionID, studentID string) (*Record, error)
	// OpenBySession lists records whose attendance window is still open.
	OpenBySession(ctx context.Context, sessionID string) ([]Record, error)
	BySession(ctx context.Context, sessionID string) ([]Record, error)
	// Close finalizes an open record; returns false if it was already closed.
	Close(ctx context.Context, id string, timeLeft time.Time, hours float64) (bool, error)
	// SetRemoved flips a present record to removed. closeAt and hours are
	// applied only when the record is still open (nil leaves them as stored).
	// Returns false if the record was not present.
	SetRemoved(ctx context.Context, id string, closeAt *time.Time, hours *float64) (bool, error)
}
