package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classtrack/internal/session"
)

// JoinReason explains a rejected join. Rejections are expected user-facing
// outcomes and travel as results, never as Go errors.
type JoinReason string

const (
	ReasonTokenInvalid   JoinReason = "token_invalid"
	ReasonNotEnrolled    JoinReason = "not_enrolled"
	ReasonAlreadyRemoved JoinReason = "already_removed"
)

// JoinResult is the outcome of a scan. On success Record carries the
// admitted record; on rejection Reason says why.
type JoinResult struct {
	Success bool
	Message string
	Reason  JoinReason
	Record  *Record
}

func rejected(reason JoinReason, msg string) JoinResult {
	return JoinResult{Reason: reason, Message: msg}
}

// Coordinator admits students into live sessions at most once per session.
type Coordinator struct {
	records  Store
	sessions session.Store
	now      func() time.Time
}

// NewCoordinator creates a coordinator. now may be nil for wall-clock time.
func NewCoordinator(records Store, sessions session.Store, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{records: records, sessions: sessions, now: now}
}

// VerifyAndJoin resolves the scanned token, authorizes the student, and
// creates the attendance record through the store's conditional insert.
// A re-scan of a still-live session is an idempotent success: the existing
// record is returned untouched. Returned errors are store failures only.
func (c *Coordinator) VerifyAndJoin(ctx context.Context, token, studentID string) (JoinResult, error) {
	now := c.now().UTC()

	sess, err := c.sessions.GetByToken(ctx, token)
	if err != nil {
		return JoinResult{}, fmt.Errorf("resolve token: %w", err)
	}
	if sess == nil || !sess.Live(now) {
		return rejected(ReasonTokenInvalid, "code is invalid or the session has ended"), nil
	}

	enrolled, err := c.sessions.IsEnrolled(ctx, studentID, sess.ClassID)
	if err != nil {
		return JoinResult{}, fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return rejected(ReasonNotEnrolled, "you are not enrolled in this class"), nil
	}

	rec := Record{
		ID:         uuid.NewString(),
		SessionID:  sess.ID,
		StudentID:  studentID,
		TimeJoined: now,
		Status:     StatusPresent,
	}
	created, err := c.records.InsertIfLive(ctx, rec)
	if err != nil {
		return JoinResult{}, fmt.Errorf("create record: %w", err)
	}
	if created {
		return JoinResult{Success: true, Message: "checked in", Record: &rec}, nil
	}

	// The insert was refused: either the record already exists or the
	// session stopped being live between the check above and the write.
	existing, err := c.records.Get(ctx, sess.ID, studentID)
	if err != nil {
		return JoinResult{}, fmt.Errorf("load existing record: %w", err)
	}
	switch {
	case existing == nil:
		return rejected(ReasonTokenInvalid, "code is invalid or the session has ended"), nil
	case existing.Status == StatusRemoved:
		return rejected(ReasonAlreadyRemoved, "you were removed from this session"), nil
	default:
		return JoinResult{Success: true, Message: "already checked in", Record: existing}, nil
	}
}
