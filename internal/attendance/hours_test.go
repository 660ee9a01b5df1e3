package attendance

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"classtrack/internal/session"
)

// closeTo compares hour values with a small tolerance.
func closeTo(got, want float64) bool {
	return math.Abs(got-want) < 1e-6
}

type hoursFixture struct {
	sessions    *session.MemoryStore
	records     *MemoryStore
	accumulator *Accumulator
}

func newHoursFixture() *hoursFixture {
	sessions := session.NewMemoryStore()
	records := NewMemoryStore(sessions.LiveAt)
	return &hoursFixture{
		sessions:    sessions,
		records:     records,
		accumulator: NewAccumulator(records, sessions),
	}
}

// day builds a clock reading on a fixed date.
func day(hour, min int) time.Time {
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func (f *hoursFixture) seedSession(t *testing.T, started time.Time) session.ClassSession {
	t.Helper()
	sess, err := f.sessions.Create(context.Background(), session.ClassSession{
		ID: "sess-1", ClassID: "class-1", StartedAt: started, Token: "tok-1",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func (f *hoursFixture) seedRecord(t *testing.T, student string, joined time.Time) Record {
	t.Helper()
	rec := Record{ID: "rec-" + student, SessionID: "sess-1", StudentID: student, TimeJoined: joined, Status: StatusPresent}
	created, err := f.records.InsertIfLive(context.Background(), rec)
	if err != nil || !created {
		t.Fatalf("seed record: created=%v err=%v", created, err)
	}
	return rec
}

func TestLeaveComputesClampedHours(t *testing.T) {
	fx := newHoursFixture()
	ctx := context.Background()
	fx.seedSession(t, day(9, 0))
	fx.seedRecord(t, "stu-1", day(9, 10))

	if err := fx.accumulator.Leave(ctx, "sess-1", "stu-1", day(10, 0)); err != nil {
		t.Fatalf("leave: %v", err)
	}
	rec, _ := fx.records.Get(ctx, "sess-1", "stu-1")
	if !rec.Closed() {
		t.Fatal("expected record closed")
	}
	if !closeTo(rec.HoursAttended, 50.0/60.0) {
		t.Fatalf("expected 0.8333h, got %v", rec.HoursAttended)
	}

	// Leaving again must not recompute.
	if err := fx.accumulator.Leave(ctx, "sess-1", "stu-1", day(11, 0)); err != nil {
		t.Fatalf("second leave: %v", err)
	}
	rec2, _ := fx.records.Get(ctx, "sess-1", "stu-1")
	if !closeTo(rec2.HoursAttended, 50.0/60.0) || !rec2.TimeLeft.Equal(day(10, 0)) {
		t.Fatalf("closed record mutated: %+v", rec2)
	}
}

func TestLeaveWithoutRecord(t *testing.T) {
	fx := newHoursFixture()
	fx.seedSession(t, day(9, 0))
	err := fx.accumulator.Leave(context.Background(), "sess-1", "stu-1", day(10, 0))
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestOnSessionEndClosesOpenRecords(t *testing.T) {
	fx := newHoursFixture()
	ctx := context.Background()
	fx.seedSession(t, day(9, 0))
	fx.seedRecord(t, "stu-1", day(9, 10))
	fx.seedRecord(t, "stu-2", day(9, 20))

	// stu-2 leaves early and must not be touched by finalization.
	if err := fx.accumulator.Leave(ctx, "sess-1", "stu-2", day(9, 50)); err != nil {
		t.Fatalf("leave: %v", err)
	}

	sess, _, err := fx.sessions.End(ctx, "sess-1", day(10, 30))
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	n, err := fx.accumulator.OnSessionEnd(ctx, *sess)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 record finalized, got %d", n)
	}

	rec1, _ := fx.records.Get(ctx, "sess-1", "stu-1")
	if !closeTo(rec1.HoursAttended, 80.0/60.0) {
		t.Fatalf("expected 1.3333h for stu-1, got %v", rec1.HoursAttended)
	}
	rec2, _ := fx.records.Get(ctx, "sess-1", "stu-2")
	if !closeTo(rec2.HoursAttended, 30.0/60.0) {
		t.Fatalf("expected stu-2 hours untouched at 0.5h, got %v", rec2.HoursAttended)
	}

	// Re-delivery of the end event finalizes nothing new.
	n, err = fx.accumulator.OnSessionEnd(ctx, *sess)
	if err != nil || n != 0 {
		t.Fatalf("expected idempotent finalize, n=%d err=%v", n, err)
	}
}

func TestRemoveFreezesHoursAtRemovalInstant(t *testing.T) {
	fx := newHoursFixture()
	ctx := context.Background()
	fx.seedSession(t, day(9, 0))
	fx.seedRecord(t, "stu-1", day(9, 10))

	if err := fx.accumulator.Remove(ctx, "sess-1", "stu-1", day(9, 40)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	rec, _ := fx.records.Get(ctx, "sess-1", "stu-1")
	if rec.Status != StatusRemoved || !rec.Closed() {
		t.Fatalf("expected closed removed record, got %+v", rec)
	}
	if !closeTo(rec.HoursAttended, 0.5) {
		t.Fatalf("expected 0.5h frozen, got %v", rec.HoursAttended)
	}

	// removed -> removed is rejected.
	if err := fx.accumulator.Remove(ctx, "sess-1", "stu-1", day(9, 50)); !errors.Is(err, ErrAlreadyRemoved) {
		t.Fatalf("expected ErrAlreadyRemoved, got %v", err)
	}
}

func TestRemoveClosedRecordKeepsHours(t *testing.T) {
	fx := newHoursFixture()
	ctx := context.Background()
	fx.seedSession(t, day(9, 0))
	fx.seedRecord(t, "stu-1", day(9, 10))

	if err := fx.accumulator.Leave(ctx, "sess-1", "stu-1", day(10, 0)); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := fx.accumulator.Remove(ctx, "sess-1", "stu-1", day(10, 20)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	rec, _ := fx.records.Get(ctx, "sess-1", "stu-1")
	if rec.Status != StatusRemoved {
		t.Fatalf("expected removed, got %s", rec.Status)
	}
	if !closeTo(rec.HoursAttended, 50.0/60.0) || !rec.TimeLeft.Equal(day(10, 0)) {
		t.Fatalf("removal of closed record mutated hours: %+v", rec)
	}
}

func TestAttendedHoursClamps(t *testing.T) {
	ended := day(10, 30)
	endedSess := session.ClassSession{StartedAt: day(9, 0), EndedAt: &ended}

	tests := []struct {
		name    string
		sess    session.ClassSession
		joined  time.Time
		closeAt time.Time
		want    float64
	}{
		{"negative window clamps to zero", endedSess, day(10, 0), day(9, 30), 0},
		{"cannot exceed session duration", endedSess, day(8, 0), day(11, 0), 1.5},
		{"open session bounded by close time", session.ClassSession{StartedAt: day(9, 0)}, day(8, 0), day(10, 0), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := attendedHours(tt.sess, tt.joined, tt.closeAt); !closeTo(got, tt.want) {
				t.Fatalf("attendedHours = %v, want %v", got, tt.want)
			}
		})
	}
}
