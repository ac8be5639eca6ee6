package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-shopinstall/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type InstallStateStore struct {
	db   *bun.DB
	repo repository.Repository[*installStateRecord]
	ttl  time.Duration
	now  func() time.Time
}

func NewInstallStateStore(db *bun.DB, ttl time.Duration) (*InstallStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("sqlstore: install state ttl must be positive")
	}
	repo := repository.NewRepository[*installStateRecord](db, installStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid install state repository wiring: %w", err)
		}
	}
	return &InstallStateStore{
		db:   db,
		repo: repo,
		ttl:  ttl,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Save replaces any pending record for the session and drops expired rows.
func (s *InstallStateStore) Save(ctx context.Context, state core.InstallStateRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: install state store is not configured")
	}
	sessionID := strings.TrimSpace(state.SessionID)
	if sessionID == "" {
		return fmt.Errorf("sqlstore: install session id is required")
	}
	if strings.TrimSpace(state.State) == "" {
		return fmt.Errorf("sqlstore: install state is required")
	}
	now := s.now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	if state.ExpiresAt.IsZero() {
		state.ExpiresAt = state.CreatedAt.Add(s.ttl)
	}

	record := &installStateRecord{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		State:       state.State,
		Shop:        strings.TrimSpace(state.Shop),
		RedirectURI: strings.TrimSpace(state.RedirectURI),
		CreatedAt:   state.CreatedAt.UTC(),
		ExpiresAt:   state.ExpiresAt.UTC(),
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*installStateRecord)(nil)).
			Where("session_id = ? OR expires_at < ?", sessionID, now).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := s.repo.CreateTx(ctx, tx, record); err != nil {
			return err
		}
		return nil
	})
}

// Consume loads and deletes the session record. Only one concurrent caller
// can observe a given record.
func (s *InstallStateStore) Consume(ctx context.Context, sessionID string) (core.InstallStateRecord, error) {
	if s == nil || s.db == nil {
		return core.InstallStateRecord{}, fmt.Errorf("sqlstore: install state store is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return core.InstallStateRecord{}, core.ErrStateNotFound
	}

	var consumed core.InstallStateRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &installStateRecord{}
		if err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.session_id = ?", sessionID).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrStateNotFound
			}
			return err
		}
		result, err := tx.NewDelete().
			Model((*installStateRecord)(nil)).
			Where("id = ?", record.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, affectedErr := result.RowsAffected(); affectedErr == nil && affected == 0 {
			return core.ErrStateNotFound
		}
		consumed = record.toDomain()
		return nil
	})
	if err != nil {
		return core.InstallStateRecord{}, err
	}
	if !consumed.ExpiresAt.IsZero() && s.now().After(consumed.ExpiresAt) {
		return core.InstallStateRecord{}, core.ErrStateExpired
	}
	return consumed, nil
}

// Pending counts stored records, expired ones included.
func (s *InstallStateStore) Pending(ctx context.Context) (int, error) {
	if s == nil || s.repo == nil {
		return 0, fmt.Errorf("sqlstore: install state store is not configured")
	}
	_, total, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	return total, nil
}
