package attendance

import (
	"context"
	"fmt"
	"time"

	"classtrack/internal/session"
)

// Accumulator finalizes open attendance windows into recorded hours.
// Only this component (and the removal action it hosts) writes TimeLeft,
// HoursAttended, and Status on existing records.
type Accumulator struct {
	records  Store
	sessions session.Store
}

// NewAccumulator creates an accumulator.
func NewAccumulator(records Store, sessions session.Store) *Accumulator {
	return &Accumulator{records: records, sessions: sessions}
}

// attendedHours clamps the attended window to [0, session duration]. While
// the session is still open its duration runs up to closeAt.
func attendedHours(sess session.ClassSession, joined, closeAt time.Time) float64 {
	attended := closeAt.Sub(joined)
	if attended < 0 {
		attended = 0
	}
	var total time.Duration
	if sess.EndedAt != nil {
		total = sess.EndedAt.Sub(sess.StartedAt)
	} else {
		total = closeAt.Sub(sess.StartedAt)
	}
	if total < 0 {
		total = 0
	}
	if attended > total {
		attended = total
	}
	return attended.Hours()
}

// CloseRecord finalizes one record at closeAt. Already-closed records are
// left untouched.
func (a *Accumulator) CloseRecord(ctx context.Context, sess session.ClassSession, rec Record, closeAt time.Time) error {
	if rec.Closed() {
		return nil
	}
	hours := attendedHours(sess, rec.TimeJoined, closeAt)
	if _, err := a.records.Close(ctx, rec.ID, closeAt, hours); err != nil {
		return fmt.Errorf("close record %s: %w", rec.ID, err)
	}
	return nil
}

// Leave handles an explicit leave signal from a student. Leaving twice is a
// no-op; leaving without a record is ErrRecordNotFound.
func (a *Accumulator) Leave(ctx context.Context, sessionID, studentID string, at time.Time) error {
	sess, err := a.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return session.ErrSessionNotFound
	}
	rec, err := a.records.Get(ctx, sessionID, studentID)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		return ErrRecordNotFound
	}
	return a.CloseRecord(ctx, *sess, *rec, at.UTC())
}

// OnSessionEnd closes every still-open record of an ended session at the
// session's end time. Idempotent, so queue re-delivery is harmless.
// Returns how many records this call finalized.
func (a *Accumulator) OnSessionEnd(ctx context.Context, sess session.ClassSession) (int, error) {
	if sess.EndedAt == nil {
		return 0, fmt.Errorf("session %s has not ended", sess.ID)
	}
	open, err := a.records.OpenBySession(ctx, sess.ID)
	if err != nil {
		return 0, fmt.Errorf("list open records: %w", err)
	}
	closed := 0
	for _, rec := range open {
		if err := a.CloseRecord(ctx, sess, rec, *sess.EndedAt); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}

// Remove performs the teacher's present -> removed action, freezing hours at
// the removal instant for records that were still open. Any other starting
// state is rejected.
func (a *Accumulator) Remove(ctx context.Context, sessionID, studentID string, at time.Time) error {
	sess, err := a.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return session.ErrSessionNotFound
	}
	rec, err := a.records.Get(ctx, sessionID, studentID)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		return ErrRecordNotFound
	}
	if rec.Status == StatusRemoved {
		return ErrAlreadyRemoved
	}

	var closeAt *time.Time
	var hours *float64
	if !rec.Closed() {
		t := at.UTC()
		h := attendedHours(*sess, rec.TimeJoined, t)
		closeAt, hours = &t, &h
	}
	changed, err := a.records.SetRemoved(ctx, rec.ID, closeAt, hours)
	if err != nil {
		return fmt.Errorf("remove record: %w", err)
	}
	if !changed {
		// Lost a race with a concurrent removal.
		return ErrAlreadyRemoved
	}
	return nil
}
