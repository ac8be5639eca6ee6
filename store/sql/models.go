package sqlstore

import (
	"time"

	"github.com/goliatone/go-shopinstall/core"
	"github.com/uptrace/bun"
)

type installStateRecord struct {
	bun.BaseModel `bun:"table:install_states,alias:ist"`

	ID          string    `bun:"id,pk"`
	SessionID   string    `bun:"session_id,notnull"`
	State       string    `bun:"state,notnull"`
	Shop        string    `bun:"shop,notnull"`
	RedirectURI string    `bun:"redirect_uri,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
}

func (r *installStateRecord) toDomain() core.InstallStateRecord {
	if r == nil {
		return core.InstallStateRecord{}
	}
	return core.InstallStateRecord{
		SessionID:   r.SessionID,
		State:       r.State,
		Shop:        r.Shop,
		RedirectURI: r.RedirectURI,
		CreatedAt:   r.CreatedAt.UTC(),
		ExpiresAt:   r.ExpiresAt.UTC(),
	}
}
