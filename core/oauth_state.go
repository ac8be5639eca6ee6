package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

// stateEntropyBytes yields 192 bits of entropy per nonce.
const stateEntropyBytes = 24

type MemoryInstallStateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]InstallStateRecord
}

func NewMemoryInstallStateStore(ttl time.Duration) *MemoryInstallStateStore {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &MemoryInstallStateStore{
		ttl: ttl,
		now: func() time.Time {
			return time.Now().UTC()
		},
		entries: map[string]InstallStateRecord{},
	}
}

func (s *MemoryInstallStateStore) Save(_ context.Context, record InstallStateRecord) error {
	if s == nil {
		return fmt.Errorf("core: install state store is not configured")
	}
	sessionID := strings.TrimSpace(record.SessionID)
	if sessionID == "" {
		return fmt.Errorf("core: install session id is required")
	}
	if strings.TrimSpace(record.State) == "" {
		return fmt.Errorf("core: install state is required")
	}
	record.SessionID = sessionID

	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	s.pruneLocked(now)
	s.entries[sessionID] = record
	s.mu.Unlock()
	return nil
}

func (s *MemoryInstallStateStore) Consume(_ context.Context, sessionID string) (InstallStateRecord, error) {
	if s == nil {
		return InstallStateRecord{}, fmt.Errorf("core: install state store is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return InstallStateRecord{}, ErrStateNotFound
	}

	s.mu.Lock()
	record, ok := s.entries[sessionID]
	if ok {
		delete(s.entries, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return InstallStateRecord{}, ErrStateNotFound
	}
	if !record.ExpiresAt.IsZero() && s.now().After(record.ExpiresAt) {
		return InstallStateRecord{}, ErrStateExpired
	}
	return record, nil
}

// Len reports the number of pending records, expired ones included.
func (s *MemoryInstallStateStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryInstallStateStore) pruneLocked(now time.Time) {
	for key, record := range s.entries {
		if !record.ExpiresAt.IsZero() && now.After(record.ExpiresAt) {
			delete(s.entries, key)
		}
	}
}

func generateInstallState() (string, error) {
	raw := make([]byte, stateEntropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate install state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
