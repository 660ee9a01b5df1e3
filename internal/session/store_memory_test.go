package session

import (
	"context"
	"testing"
	"time"
)

func TestEndTransitionsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sess, err := store.Create(ctx, ClassSession{ID: "sess-1", ClassID: "class-1", Token: "tok-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first := sess.StartedAt.Add(time.Hour)
	got, ended, err := store.End(ctx, "sess-1", first)
	if err != nil || !ended {
		t.Fatalf("first end: ended=%v err=%v", ended, err)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(first) {
		t.Fatalf("unexpected ended_at: %v", got.EndedAt)
	}

	// A second end call must not move the timestamp.
	got, ended, err = store.End(ctx, "sess-1", first.Add(time.Hour))
	if err != nil || ended {
		t.Fatalf("second end: ended=%v err=%v", ended, err)
	}
	if !got.EndedAt.Equal(first) {
		t.Fatalf("ended_at moved on repeat end: %v", got.EndedAt)
	}
}

func TestLiveness(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	expiry := now.Add(time.Hour)
	ended := now.Add(30 * time.Minute)

	tests := []struct {
		name string
		sess ClassSession
		at   time.Time
		want bool
	}{
		{"open without expiry", ClassSession{StartedAt: now}, now.Add(time.Hour), true},
		{"before expiry", ClassSession{StartedAt: now, TokenExpiry: &expiry}, now.Add(30 * time.Minute), true},
		{"at expiry", ClassSession{StartedAt: now, TokenExpiry: &expiry}, expiry, false},
		{"ended", ClassSession{StartedAt: now, EndedAt: &ended}, now, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sess.Live(tt.at); got != tt.want {
				t.Fatalf("Live(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestEnrollmentQueries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, stu := range []string{"stu-1", "stu-2", "stu-2"} {
		if err := store.Enroll(ctx, stu, "class-1"); err != nil {
			t.Fatalf("enroll: %v", err)
		}
	}

	enrolled, err := store.IsEnrolled(ctx, "stu-1", "class-1")
	if err != nil || !enrolled {
		t.Fatalf("expected stu-1 enrolled, got %v %v", enrolled, err)
	}
	enrolled, _ = store.IsEnrolled(ctx, "stu-3", "class-1")
	if enrolled {
		t.Fatal("stu-3 should not be enrolled")
	}
	if n, _ := store.EnrolledCount(ctx, "class-1"); n != 2 {
		t.Fatalf("expected enrolled count 2, got %d", n)
	}
}
