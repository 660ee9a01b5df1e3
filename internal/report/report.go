package report

import (
	"context"
	"fmt"
	"time"

	"classtrack/internal/attendance"
	"classtrack/internal/session"
)

// Filter narrows a report query. Zero-valued fields are ignored; every
// provided field is ANDed.
type Filter struct {
	StudentID string
	ClassID   string
	LectureID string
	DateFrom  time.Time
	DateTo    time.Time
}

// SessionReport is one session with its attendance records embedded.
type SessionReport struct {
	Session session.ClassSession
	Records []attendance.Record
}

// Summary aggregates attendance across the sessions in scope.
type Summary struct {
	Sessions     int     `json:"sessions"`
	TotalHours   float64 `json:"total_hours"`
	PresentHours float64 `json:"present_hours"`
	AbsentHours  float64 `json:"absent_hours"`
}

// Source is the read side the aggregator runs on. Reads are snapshots and
// never block in-flight joins.
type Source interface {
	Sessions(ctx context.Context, f Filter) ([]SessionReport, error)
	EnrolledCount(ctx context.Context, classID string) (int, error)
}

// Aggregator rolls attendance records up into hour totals.
type Aggregator struct {
	src Source
}

// NewAggregator creates an aggregator over the given source.
func NewAggregator(src Source) *Aggregator {
	return &Aggregator{src: src}
}

// SessionsReport returns the filtered sessions with embedded records,
// ordered by session date.
func (a *Aggregator) SessionsReport(ctx context.Context, f Filter) ([]SessionReport, error) {
	return a.src.Sessions(ctx, f)
}

// Summary computes present/absent totals for the filtered sessions. For the
// cohort view it fetches the enrolled count of every distinct class in scope.
func (a *Aggregator) Summary(ctx context.Context, f Filter) (Summary, error) {
	sessions, err := a.src.Sessions(ctx, f)
	if err != nil {
		return Summary{}, err
	}
	counts := make(map[string]int)
	if f.StudentID == "" {
		for _, s := range sessions {
			classID := s.Session.ClassID
			if _, seen := counts[classID]; seen {
				continue
			}
			n, err := a.src.EnrolledCount(ctx, classID)
			if err != nil {
				return Summary{}, fmt.Errorf("enrolled count for class %s: %w", classID, err)
			}
			counts[classID] = n
		}
	}
	return ComputeSummary(sessions, f.StudentID, counts), nil
}

// ComputeSummary is the pure rollup. With a student selected, total hours is
// the duration of every session in scope and present hours that student's
// recorded hours. Without one, totals scale by the class's enrolled count,
// falling back to the session's present-record count when the class has no
// known enrollment. Absent hours never go negative.
func ComputeSummary(sessions []SessionReport, studentID string, enrolledCounts map[string]int) Summary {
	sum := Summary{Sessions: len(sessions)}
	for _, s := range sessions {
		dur := s.Session.Duration().Hours()
		if studentID != "" {
			sum.TotalHours += dur
			for _, rec := range s.Records {
				if rec.StudentID == studentID && rec.Status == attendance.StatusPresent {
					sum.PresentHours += rec.HoursAttended
					break
				}
			}
			continue
		}

		present := 0
		for _, rec := range s.Records {
			if rec.Status == attendance.StatusPresent {
				present++
				sum.PresentHours += rec.HoursAttended
			}
		}
		n := enrolledCounts[s.Session.ClassID]
		if n <= 0 {
			// Defensive fallback: understates absence when enrolled
			// students never joined at all.
			n = present
		}
		sum.TotalHours += dur * float64(n)
	}
	sum.AbsentHours = sum.TotalHours - sum.PresentHours
	if sum.AbsentHours < 0 {
		sum.AbsentHours = 0
	}
	return sum
}
