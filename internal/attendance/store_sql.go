package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// SQLStore persists attendance records in Postgres.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over an open connection pool.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// InsertIfLive creates an open record unless one exists for the key or the
// session has stopped being live. One statement, so a join can never race a
// session close into a ghost record, and concurrent identical scans collapse
// onto the unique key.
func (s *SQLStore) InsertIfLive(ctx context.Context, rec Record) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, session_id, student_id, time_joined, status)
		SELECT $1, $2, $3, $4, $5
		WHERE EXISTS (
			SELECT 1 FROM class_sessions
			WHERE id = $2 AND ended_at IS NULL
			  AND (token_expiry IS NULL OR token_expiry > $4)
		)
		ON CONFLICT (session_id, student_id) DO NOTHING
	`, rec.ID, rec.SessionID, rec.StudentID, rec.TimeJoined, string(rec.Status))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const recordColumns = `id, session_id, student_id, time_joined, time_left, hours_attended, status`

// Get returns the record for the pair, nil when absent.
func (s *SQLStore) Get(ctx context.Context, sessionID, studentID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// OpenBySession lists the session's not-yet-finalized records.
func (s *SQLStore) OpenBySession(ctx context.Context, sessionID string) ([]Record, error) {
	return s.list(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE session_id = $1 AND time_left IS NULL
		ORDER BY time_joined
	`, sessionID)
}

// BySession lists all of the session's records.
func (s *SQLStore) BySession(ctx context.Context, sessionID string) ([]Record, error) {
	return s.list(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE session_id = $1
		ORDER BY time_joined
	`, sessionID)
}

func (s *SQLStore) list(ctx context.Context, query, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rec)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var status string
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.TimeJoined,
		&rec.TimeLeft, &rec.HoursAttended, &status); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	return &rec, nil
}

// Close finalizes an open record. The time_left guard keeps closed records
// immutable even when finalization is re-delivered.
func (s *SQLStore) Close(ctx context.Context, id string, timeLeft time.Time, hours float64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET time_left = $2, hours_attended = $3
		WHERE id = $1 AND time_left IS NULL
	`, id, timeLeft, hours)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// SetRemoved performs the present -> removed transition.
func (s *SQLStore) SetRemoved(ctx context.Context, id string, closeAt *time.Time, hours *float64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET status = 'removed',
		    time_left = COALESCE(time_left, $2),
		    hours_attended = COALESCE($3, hours_attended)
		WHERE id = $1 AND status = 'present'
	`, id, closeAt, hours)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
