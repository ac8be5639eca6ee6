package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func installStateHandlers() repository.ModelHandlers[*installStateRecord] {
	return repository.ModelHandlers[*installStateRecord]{
		NewRecord: func() *installStateRecord {
			return &installStateRecord{}
		},
		GetID: func(record *installStateRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *installStateRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "session_id"
		},
		GetIdentifierValue: func(record *installStateRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.SessionID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
