package report

import (
	"context"
	"math"
	"testing"
	"time"

	"classtrack/internal/attendance"
	"classtrack/internal/session"
)

func closeTo(got, want float64) bool {
	return math.Abs(got-want) < 1e-6
}

// stubSource serves canned report data.
type stubSource struct {
	sessions []SessionReport
	counts   map[string]int
}

func (s *stubSource) Sessions(ctx context.Context, f Filter) ([]SessionReport, error) {
	return s.sessions, nil
}

func (s *stubSource) EnrolledCount(ctx context.Context, classID string) (int, error) {
	return s.counts[classID], nil
}

func hourSession(id string, start time.Time) session.ClassSession {
	end := start.Add(time.Hour)
	return session.ClassSession{
		ID:          id,
		ClassID:     "class-1",
		SessionDate: start,
		StartedAt:   start,
		EndedAt:     &end,
		Token:       "tok-" + id,
	}
}

func presentRecord(sessionID, studentID string, hours float64) attendance.Record {
	return attendance.Record{
		ID: "rec-" + sessionID + "-" + studentID, SessionID: sessionID, StudentID: studentID,
		HoursAttended: hours, Status: attendance.StatusPresent,
	}
}

func TestSummarySingleStudentAcrossSessions(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sessA := hourSession("a", start)
	sessB := hourSession("b", start.Add(24*time.Hour))

	src := &stubSource{sessions: []SessionReport{
		{Session: sessA, Records: []attendance.Record{presentRecord("a", "stu-1", 1)}},
		{Session: sessB}, // stu-1 absent
	}}
	agg := NewAggregator(src)

	sum, err := agg.Summary(context.Background(), Filter{StudentID: "stu-1"})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !closeTo(sum.TotalHours, 2) || !closeTo(sum.PresentHours, 1) || !closeTo(sum.AbsentHours, 1) {
		t.Fatalf("expected 2/1/1 hours, got %+v", sum)
	}
	if sum.Sessions != 2 {
		t.Fatalf("expected 2 sessions in scope, got %d", sum.Sessions)
	}
}

func TestSummaryCohortUsesEnrolledCount(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sess := hourSession("a", start)
	src := &stubSource{
		sessions: []SessionReport{{
			Session: sess,
			Records: []attendance.Record{
				presentRecord("a", "stu-1", 1),
				presentRecord("a", "stu-2", 0.5),
			},
		}},
		counts: map[string]int{"class-1": 3},
	}
	sum, err := NewAggregator(src).Summary(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	// 3 enrolled * 1h = 3h total, 1.5h present.
	if !closeTo(sum.TotalHours, 3) || !closeTo(sum.PresentHours, 1.5) || !closeTo(sum.AbsentHours, 1.5) {
		t.Fatalf("expected 3/1.5/1.5 hours, got %+v", sum)
	}
}

func TestSummaryCohortFallsBackToPresentCount(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sess := hourSession("a", start)
	src := &stubSource{
		sessions: []SessionReport{{
			Session: sess,
			Records: []attendance.Record{
				presentRecord("a", "stu-1", 1),
				presentRecord("a", "stu-2", 1),
			},
		}},
	}
	sum, err := NewAggregator(src).Summary(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	// No enrollment count known: total falls back to 2 present * 1h.
	if !closeTo(sum.TotalHours, 2) || !closeTo(sum.AbsentHours, 0) {
		t.Fatalf("expected fallback totals 2/0, got %+v", sum)
	}
}

func TestComputeSummaryIgnoresRemovedAndOpenSessions(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sess := hourSession("a", start)
	removed := presentRecord("a", "stu-2", 0.75)
	removed.Status = attendance.StatusRemoved

	open := session.ClassSession{ID: "b", ClassID: "class-1", SessionDate: start, StartedAt: start, Token: "tok-b"}

	sum := ComputeSummary([]SessionReport{
		{Session: sess, Records: []attendance.Record{presentRecord("a", "stu-1", 1), removed}},
		{Session: open, Records: []attendance.Record{presentRecord("b", "stu-1", 0.25)}},
	}, "stu-2", nil)

	// stu-2's only record is removed; the open session contributes no duration.
	if !closeTo(sum.TotalHours, 1) || !closeTo(sum.PresentHours, 0) || !closeTo(sum.AbsentHours, 1) {
		t.Fatalf("expected 1/0/1 hours, got %+v", sum)
	}
}

func TestComputeSummaryAbsentNeverNegative(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sess := hourSession("a", start)
	// A float overcount must clamp to zero absence, not go negative.
	sum := ComputeSummary([]SessionReport{
		{Session: sess, Records: []attendance.Record{presentRecord("a", "stu-1", 1.0000001)}},
	}, "stu-1", nil)
	if sum.AbsentHours != 0 {
		t.Fatalf("expected clamped absent hours, got %v", sum.AbsentHours)
	}
}
