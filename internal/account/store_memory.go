package account

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for dev and tests. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*Account
	byLogin map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Account),
		byLogin: make(map[string]string),
	}
}

// Create inserts a new account.
func (s *MemoryStore) Create(ctx context.Context, acc Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	cp := acc
	s.byID[cp.ID] = &cp
	s.byLogin[cp.LoginID] = cp.ID
	return nil
}

// GetByID returns a copy of the account, nil when absent.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyOf(id), nil
}

// GetByLoginID returns a copy of the account, nil when absent.
func (s *MemoryStore) GetByLoginID(ctx context.Context, loginID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byLogin[loginID]
	if !ok {
		return nil, nil
	}
	return s.copyOf(id), nil
}

// BindFingerprint is the compare-and-set against an unset fingerprint.
func (s *MemoryStore) BindFingerprint(ctx context.Context, accountID, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.byID[accountID]
	if !ok {
		return false, ErrAccountNotFound
	}
	if acc.DeviceLocked() {
		return false, nil
	}
	fp := fingerprint
	acc.DeviceFingerprint = &fp
	return true, nil
}

// ClearFingerprint removes the device lock.
func (s *MemoryStore) ClearFingerprint(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.byID[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	acc.DeviceFingerprint = nil
	return nil
}

func (s *MemoryStore) copyOf(id string) *Account {
	acc, ok := s.byID[id]
	if !ok {
		return nil
	}
	cp := *acc
	if acc.DeviceFingerprint != nil {
		fp := *acc.DeviceFingerprint
		cp.DeviceFingerprint = &fp
	}
	return &cp
}
