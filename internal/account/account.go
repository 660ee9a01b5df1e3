package account

import (
	"context"
	"errors"
	"time"
)

// Role classifies what an account is allowed to do.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Account is an identity known to the platform. The credential hash is
// opaque to everything except the CredentialVerifier.
type Account struct {
	ID                string
	Role              Role
	LoginID           string // serial code or email
	CredentialHash    string
	DeviceFingerprint *string
	CreatedAt         time.Time
}

// DeviceLocked reports whether the account is pinned to a device.
func (a Account) DeviceLocked() bool {
	return a.DeviceFingerprint != nil && *a.DeviceFingerprint != ""
}

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrDeviceLockViolation = errors.New("account is locked to another device")
)

// Store persists accounts. Implementations must make BindFingerprint a
// single conditional write so concurrent first logins cannot both win.
type Store interface {
	Create(ctx context.Context, acc Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	// GetByLoginID returns nil, nil when no account matches.
	GetByLoginID(ctx context.Context, loginID string) (*Account, error)
	// BindFingerprint sets the fingerprint only if it is currently unset.
	// Returns false when the account already has a fingerprint.
	BindFingerprint(ctx context.Context, accountID, fingerprint string) (bool, error)
	// ClearFingerprint unconditionally removes the device lock.
	ClearFingerprint(ctx context.Context, accountID string) error
}
