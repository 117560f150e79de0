package store

import (
	"context"
	"fmt"

	"github.com/threatgate/threatgate/internal/config"
	"github.com/threatgate/threatgate/internal/logger"
)

// Storages aggregates every repository over one shared database
// connection. The connection is the single persistent store shared by all
// callers (engine, CLI, background jobs); WAL mode lets them read
// concurrently with a single writer.
type Storages struct {
	DB *DB

	Policies      PolicyRepository
	Relationships RelationshipRepository
	Threats       ThreatRepository
	Templates     TemplateRepository
	Quarantine    QuarantineRepository
}

// NewStorages opens the SQLite database, applies migrations and constructs
// all repositories.
func NewStorages(ctx context.Context, storageCfg config.Storage, breakerCfg config.Breaker, log *logger.Logger) (*Storages, error) {
	db, err := NewConnectSQLite(ctx, storageCfg, breakerCfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect storage: %w", err)
	}

	if err = db.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate storage: %w", err)
	}

	return &Storages{
		DB:            db,
		Policies:      NewPolicyRepository(db, log),
		Relationships: NewRelationshipRepository(db, log),
		Threats:       NewThreatRepository(db, log),
		Templates:     NewTemplateRepository(db, log),
		Quarantine:    NewQuarantineRepository(db, log),
	}, nil
}

// Close releases the underlying database connection.
func (s *Storages) Close() error {
	return s.DB.Close()
}
