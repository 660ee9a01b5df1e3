package auth

import (
	"testing"
	"time"
)

func TestIssueAndParseRoundTrip(t *testing.T) {
	pair, err := Issue("acc-1", "teacher", "classtrack", "test-key", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := Parse(pair.AccessToken, "test-key", "classtrack")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "acc-1" || claims.Role != "teacher" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseRejectsWrongKeyAndIssuer(t *testing.T) {
	pair, err := Issue("acc-1", "student", "classtrack", "test-key", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := Parse(pair.AccessToken, "other-key", "classtrack"); err == nil {
		t.Fatal("expected error for wrong key")
	}
	if _, err := Parse(pair.AccessToken, "test-key", "other-issuer"); err == nil {
		t.Fatal("expected error for issuer mismatch")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	pair, err := Issue("acc-1", "student", "classtrack", "test-key", -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "test-key", "classtrack"); err == nil {
		t.Fatal("expected error for expired token")
	}
}
