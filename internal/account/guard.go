package account

import (
	"context"
	"errors"
	"fmt"
)

// AuthResult identifies a successfully authenticated account.
type AuthResult struct {
	ID   string
	Role Role
}

// Guard enforces the one-account-one-device policy at login time.
// The fingerprint is bound on the first successful login and every later
// login must present the same one until an admin resets the lock.
type Guard struct {
	store    Store
	verifier CredentialVerifier
}

// NewGuard creates a guard over the given store.
func NewGuard(store Store, verifier CredentialVerifier) *Guard {
	return &Guard{store: store, verifier: verifier}
}

// Authenticate validates the credential and then binds or checks the device
// fingerprint. The bind is a conditional write against "currently unset", so
// of N concurrent first logins exactly one wins and the rest are rejected.
func (g *Guard) Authenticate(ctx context.Context, identifier, credential, fingerprint string) (AuthResult, error) {
	if fingerprint == "" {
		return AuthResult{}, errors.New("device fingerprint required")
	}

	acc, err := g.store.GetByLoginID(ctx, identifier)
	if err != nil {
		return AuthResult{}, fmt.Errorf("lookup account: %w", err)
	}
	if acc == nil {
		return AuthResult{}, ErrAccountNotFound
	}
	if !g.verifier.Verify(acc.CredentialHash, credential) {
		return AuthResult{}, ErrInvalidCredential
	}

	if acc.DeviceLocked() {
		if *acc.DeviceFingerprint != fingerprint {
			return AuthResult{}, ErrDeviceLockViolation
		}
		return AuthResult{ID: acc.ID, Role: acc.Role}, nil
	}

	bound, err := g.store.BindFingerprint(ctx, acc.ID, fingerprint)
	if err != nil {
		return AuthResult{}, fmt.Errorf("bind fingerprint: %w", err)
	}
	if !bound {
		// Lost the first-login race. Re-read and accept only if the winner
		// bound the same fingerprint.
		current, err := g.store.GetByID(ctx, acc.ID)
		if err != nil {
			return AuthResult{}, fmt.Errorf("reread account: %w", err)
		}
		if current == nil || !current.DeviceLocked() || *current.DeviceFingerprint != fingerprint {
			return AuthResult{}, ErrDeviceLockViolation
		}
	}
	return AuthResult{ID: acc.ID, Role: acc.Role}, nil
}

// ResetDeviceLock clears the bound fingerprint. Administrative only; the
// HTTP layer enforces the role. Attendance records are untouched.
func (g *Guard) ResetDeviceLock(ctx context.Context, accountID string) error {
	return g.store.ClearFingerprint(ctx, accountID)
}
