package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// SQLStore persists sessions and enrollments in Postgres.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over an open connection pool.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const sessionColumns = `id, class_id, lecture_id, session_date, started_at, ended_at, token, token_expiry`

// Create inserts a new session.
func (s *SQLStore) Create(ctx context.Context, sess ClassSession) (ClassSession, error) {
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO class_sessions (id, class_id, lecture_id, session_date, started_at, ended_at, token, token_expiry)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sess.ID, sess.ClassID, sess.LectureID, sess.SessionDate, sess.StartedAt, sess.EndedAt, sess.Token, sess.TokenExpiry)
	if err != nil {
		return ClassSession{}, err
	}
	return sess, nil
}

// GetByID returns a session by primary key, nil when absent.
func (s *SQLStore) GetByID(ctx context.Context, id string) (*ClassSession, error) {
	return s.get(ctx, `SELECT `+sessionColumns+` FROM class_sessions WHERE id = $1`, id)
}

// GetByToken resolves a scanned token to its session, nil when absent.
func (s *SQLStore) GetByToken(ctx context.Context, token string) (*ClassSession, error) {
	return s.get(ctx, `SELECT `+sessionColumns+` FROM class_sessions WHERE token = $1`, token)
}

func (s *SQLStore) get(ctx context.Context, query, arg string) (*ClassSession, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	var sess ClassSession
	if err := row.Scan(&sess.ID, &sess.ClassID, &sess.LectureID, &sess.SessionDate,
		&sess.StartedAt, &sess.EndedAt, &sess.Token, &sess.TokenExpiry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

// End marks the session ended iff it is still open, then re-reads it.
func (s *SQLStore) End(ctx context.Context, id string, endedAt time.Time) (*ClassSession, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE class_sessions SET ended_at = $2
		WHERE id = $1 AND ended_at IS NULL
	`, id, endedAt)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	sess, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if sess == nil {
		return nil, false, ErrSessionNotFound
	}
	return sess, n == 1, nil
}

// Enroll records class membership; repeat enrollments are no-ops.
func (s *SQLStore) Enroll(ctx context.Context, studentID, classID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollments (student_id, class_id)
		VALUES ($1, $2)
		ON CONFLICT (student_id, class_id) DO NOTHING
	`, studentID, classID)
	return err
}

// IsEnrolled reports class membership.
func (s *SQLStore) IsEnrolled(ctx context.Context, studentID, classID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2)
	`, studentID, classID)
	var enrolled bool
	if err := row.Scan(&enrolled); err != nil {
		return false, err
	}
	return enrolled, nil
}

// EnrolledCount returns how many students belong to the class.
func (s *SQLStore) EnrolledCount(ctx context.Context, classID string) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments WHERE class_id = $1`, classID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
