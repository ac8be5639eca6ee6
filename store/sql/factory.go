package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-shopinstall/core"
	"github.com/goliatone/go-shopinstall/migrations"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const defaultPingTimeout = 5 * time.Second

type persistenceConfig struct {
	driver string
	server string
	debug  bool
	name   string
}

func (c persistenceConfig) GetDebug() bool {
	return c.debug
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return defaultPingTimeout
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return c.name
}

type OpenOptions struct {
	ServiceName string
	TTL         time.Duration
	Debug       bool
	// SkipMigrations leaves schema management to the caller.
	SkipMigrations bool
}

// Open connects to the configured database, applies the install state
// migrations and returns the store with the client backing it. The caller
// owns the client and must close it. The database/sql driver must be
// registered by the caller.
func Open(ctx context.Context, cfg core.StoreConfig, opts OpenOptions) (*InstallStateStore, *persistence.Client, error) {
	driver := strings.TrimSpace(cfg.Driver)
	dsn := strings.TrimSpace(cfg.DSN)
	if driver == "" || driver == core.StoreDriverMemory {
		return nil, nil, fmt.Errorf("sqlstore: driver %q is not a sql driver", cfg.Driver)
	}
	if dsn == "" {
		return nil, nil, fmt.Errorf("sqlstore: dsn is required")
	}
	dialect, err := migrations.DialectForDriver(driver)
	if err != nil {
		return nil, nil, err
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if dialect == migrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	name := strings.TrimSpace(opts.ServiceName)
	if name == "" {
		name = "shopinstall"
	}
	client, err := persistence.New(persistenceConfig{
		driver: driver,
		server: dsn,
		debug:  opts.Debug,
		name:   name,
	}, sqlDB, bunDialect(dialect))
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}

	if !opts.SkipMigrations {
		if err := Migrate(ctx, client, dialect); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}

	store, err := NewInstallStateStoreFromPersistence(client, opts.TTL)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, client, nil
}

// Migrate registers the embedded migrations for dialect and applies them.
func Migrate(ctx context.Context, client *persistence.Client, dialect string) error {
	if client == nil {
		return fmt.Errorf("sqlstore: persistence client is required")
	}
	_, err := migrations.Register(ctx, func(_ context.Context, source migrations.Source) error {
		client.RegisterSQLMigrations(source.FS)
		return nil
	}, dialect)
	if err != nil {
		return fmt.Errorf("sqlstore: register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

func NewInstallStateStoreFromPersistence(client any, ttl time.Duration) (*InstallStateStore, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	return NewInstallStateStore(db, ttl)
}

func bunDialect(dialect string) schema.Dialect {
	if dialect == migrations.DialectPostgres {
		return pgdialect.New()
	}
	return sqlitedialect.New()
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
