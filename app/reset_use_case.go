package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/journeylab/db-reset-go/data"
	"github.com/journeylab/db-reset-go/domain"
)

// CatalogGateway is the catalog service boundary the reset drives.
type CatalogGateway interface {
	DropDatabaseCascade(ctx context.Context, name string) error
	CreateDatabase(ctx context.Context, name string) error
	DatabaseExists(ctx context.Context, name string) (bool, error)
	DumpDatabase(name string, dumpPath string) error
}

// SnapshotStore persists pre-reset dumps.
type SnapshotStore interface {
	StoreSnapshot(dumpPath string, dbName string) (string, error)
	CleanupSnapshots(dbName string, retentionCount int) error
}

// ResetOptions controls the optional pre-reset snapshot.
type ResetOptions struct {
	Snapshot       bool
	RetentionCount int
}

// ResetUseCase resets a database to an empty state: destroy it and everything
// it contains if it exists, then recreate it empty. The two steps run
// strictly in sequence; a drop failure aborts the operation and create is
// never attempted. The whole operation is idempotent, so a caller that sees
// a connectivity or concurrency error can simply run it again.
type ResetUseCase struct {
	catalog   CatalogGateway
	snapshots SnapshotStore
	protected map[string]bool
	logger    zerolog.Logger
}

// NewResetUseCase creates a new ResetUseCase instance. snapshots may be nil
// when snapshots are disabled. protectedDBs lists databases that must never
// be reset, on top of the server's own system databases.
func NewResetUseCase(catalog CatalogGateway, snapshots SnapshotStore, protectedDBs []string) *ResetUseCase {
	protected := map[string]bool{
		"information_schema": true,
		"performance_schema": true,
		"mysql":              true,
		"sys":                true,
	}
	for _, db := range protectedDBs {
		if db != "" {
			protected[db] = true
		}
	}

	return &ResetUseCase{
		catalog:   catalog,
		snapshots: snapshots,
		protected: protected,
		logger:    log.With().Str("component", "reset").Logger(),
	}
}

// Execute performs the reset. On success exactly one empty database with the
// given name exists; no other database is touched.
func (uc *ResetUseCase) Execute(ctx context.Context, name string, opts ResetOptions) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	if uc.protected[name] {
		return fmt.Errorf("database %q is protected and will not be reset", name)
	}

	if opts.Snapshot && uc.snapshots != nil {
		// Only a database that exists has anything worth snapshotting.
		exists, err := uc.catalog.DatabaseExists(ctx, name)
		if err != nil {
			return fmt.Errorf("check database %q: %w", name, err)
		}
		if exists {
			if err := uc.takeSnapshot(name, opts.RetentionCount); err != nil {
				return fmt.Errorf("snapshot database %q: %w", name, err)
			}
		}
	}

	if err := uc.catalog.DropDatabaseCascade(ctx, name); err != nil {
		return fmt.Errorf("drop database %q: %w", name, err)
	}

	if err := uc.catalog.CreateDatabase(ctx, name); err != nil {
		return fmt.Errorf("create database %q: %w", name, err)
	}

	uc.logger.Info().Str("database", name).Msg("database reset complete")
	return nil
}

// takeSnapshot dumps the database, compresses the dump and hands it to the
// snapshot store. Runs before anything is destroyed; any failure aborts the
// reset with the database untouched.
func (uc *ResetUseCase) takeSnapshot(name string, retentionCount int) error {
	timestamp := time.Now().Format("20060102150405")
	dumpPath := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s.sql", name, timestamp))

	if err := uc.catalog.DumpDatabase(name, dumpPath); err != nil {
		return err
	}

	gzPath := dumpPath + ".gz"
	if err := data.Compress(dumpPath, gzPath); err != nil {
		os.Remove(dumpPath)
		return fmt.Errorf("failed to compress snapshot: %w", err)
	}
	os.Remove(dumpPath)

	location, err := uc.snapshots.StoreSnapshot(gzPath, name)
	if err != nil {
		os.Remove(gzPath)
		return err
	}
	uc.logger.Info().Str("database", name).Str("location", location).Msg("pre-reset snapshot stored")

	if err := uc.snapshots.CleanupSnapshots(name, retentionCount); err != nil {
		uc.logger.Warn().Err(err).Str("database", name).Msg("failed to prune old snapshots")
	}
	return nil
}
