package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/goliatone/go-ordersync/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type RepositoryFactory struct {
	db *bun.DB

	dedupWindow time.Duration

	mappingStore     *MappingStore
	idempotencyStore *IdempotencyStore
	timelineStore    *TimelineStore
	deadLetterStore  *DeadLetterStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// WithDedupWindow sets how long a completed idempotency claim keeps
// answering duplicates. Must be called before BuildStores.
func (f *RepositoryFactory) WithDedupWindow(window time.Duration) *RepositoryFactory {
	if f != nil && window > 0 {
		f.dedupWindow = window
	}
	return f
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.mappingStore != nil && f.idempotencyStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) MappingStore() core.MappingStore {
	if f == nil || f.mappingStore == nil {
		return nil
	}
	return f.mappingStore
}

func (f *RepositoryFactory) IdempotencyLedger() core.IdempotencyLedger {
	if f == nil || f.idempotencyStore == nil {
		return nil
	}
	return f.idempotencyStore
}

func (f *RepositoryFactory) TimelineStore() core.TimelineStore {
	if f == nil || f.timelineStore == nil {
		return nil
	}
	return f.timelineStore
}

func (f *RepositoryFactory) DeadLetterStore() core.DeadLetterStore {
	if f == nil || f.deadLetterStore == nil {
		return nil
	}
	return f.deadLetterStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	mappingStore, err := NewMappingStore(f.db)
	if err != nil {
		return err
	}
	f.mappingStore = mappingStore

	idempotencyStore, err := NewIdempotencyStore(f.db, f.dedupWindow)
	if err != nil {
		return err
	}
	f.idempotencyStore = idempotencyStore

	timelineStore, err := NewTimelineStore(f.db)
	if err != nil {
		return err
	}
	f.timelineStore = timelineStore

	deadLetterStore, err := NewDeadLetterStore(f.db)
	if err != nil {
		return err
	}
	f.deadLetterStore = deadLetterStore

	return nil
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

// OpenPostgres wires a lib/pq connection through the pg dialect.
func OpenPostgres(dsn string) (*bun.DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	return bun.NewDB(sqlDB, pgdialect.New()), nil
}

// OpenSQLite wires a mattn/go-sqlite3 connection through the sqlite dialect.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return bun.NewDB(sqlDB, sqlitedialect.New()), nil
}

var _ core.StoreProvider = (*RepositoryFactory)(nil)
var _ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
