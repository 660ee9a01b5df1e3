package report

import (
	"context"
	"database/sql"
	"fmt"

	"classtrack/internal/attendance"
	"classtrack/internal/session"
)

// SQLSource reads report data straight from Postgres.
type SQLSource struct {
	db *sql.DB
}

// NewSQLSource creates a source over an open connection pool.
func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

// Sessions runs the filtered session query and attaches each session's
// records. Filters on the student restrict sessions to classes the student
// is enrolled in, not to sessions the student attended, so absences count.
func (s *SQLSource) Sessions(ctx context.Context, f Filter) ([]SessionReport, error) {
	query := `SELECT id, class_id, lecture_id, session_date, started_at, ended_at, token, token_expiry
		FROM class_sessions`
	args := []any{}
	clauses := []string{}
	if f.ClassID != "" {
		clauses = append(clauses, "class_id = $"+itoa(len(args)+1))
		args = append(args, f.ClassID)
	}
	if f.LectureID != "" {
		clauses = append(clauses, "lecture_id = $"+itoa(len(args)+1))
		args = append(args, f.LectureID)
	}
	if f.StudentID != "" {
		clauses = append(clauses, "class_id IN (SELECT class_id FROM enrollments WHERE student_id = $"+itoa(len(args)+1)+")")
		args = append(args, f.StudentID)
	}
	if !f.DateFrom.IsZero() {
		clauses = append(clauses, "session_date >= $"+itoa(len(args)+1))
		args = append(args, f.DateFrom)
	}
	if !f.DateTo.IsZero() {
		clauses = append(clauses, "session_date <= $"+itoa(len(args)+1))
		args = append(args, f.DateTo)
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	query += " ORDER BY session_date, started_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []SessionReport
	for rows.Next() {
		var sess session.ClassSession
		if err := rows.Scan(&sess.ID, &sess.ClassID, &sess.LectureID, &sess.SessionDate,
			&sess.StartedAt, &sess.EndedAt, &sess.Token, &sess.TokenExpiry); err != nil {
			return nil, err
		}
		res = append(res, SessionReport{Session: sess})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range res {
		records, err := s.sessionRecords(ctx, res[i].Session.ID)
		if err != nil {
			return nil, err
		}
		res[i].Records = records
	}
	return res, nil
}

func (s *SQLSource) sessionRecords(ctx context.Context, sessionID string) ([]attendance.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, student_id, time_joined, time_left, hours_attended, status
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY time_joined
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []attendance.Record
	for rows.Next() {
		var rec attendance.Record
		var status string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.TimeJoined,
			&rec.TimeLeft, &rec.HoursAttended, &status); err != nil {
			return nil, err
		}
		rec.Status = attendance.Status(status)
		res = append(res, rec)
	}
	return res, rows.Err()
}

// EnrolledCount returns the class's enrollment size.
func (s *SQLSource) EnrolledCount(ctx context.Context, classID string) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments WHERE class_id = $1`, classID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }

func joinClauses(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += sep + parts[i]
	}
	return out
}
