package store

import "context"

// Migrate creates the schema when it does not exist yet. The unique index on
// (session_id, student_id) and the nullable device_fingerprint column are
// what the conditional writes in the domain stores rely on.
func (d *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY,
			role TEXT NOT NULL,
			login_id TEXT NOT NULL UNIQUE,
			credential_hash TEXT NOT NULL,
			device_fingerprint TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS class_sessions (
			id UUID PRIMARY KEY,
			class_id TEXT NOT NULL,
			lecture_id TEXT,
			session_date TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			token TEXT NOT NULL UNIQUE,
			token_expiry TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS enrollments (
			student_id UUID NOT NULL,
			class_id TEXT NOT NULL,
			PRIMARY KEY (student_id, class_id)
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_records (
			id UUID PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES class_sessions(id) ON DELETE CASCADE,
			student_id UUID NOT NULL,
			time_joined TIMESTAMPTZ NOT NULL,
			time_left TIMESTAMPTZ,
			hours_attended DOUBLE PRECISION NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'present',
			UNIQUE (session_id, student_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_class_date ON class_sessions (class_id, session_date)`,
	}
	for _, stmt := range statements {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
