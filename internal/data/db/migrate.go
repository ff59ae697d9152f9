package db

import (
	"fmt"

	types "github.com/brightledger/hashlookup/internal/domain"
	"gorm.io/gorm"
)

// AutoMigrateAll creates (or updates) the tables the coordinator and workers
// read and write at runtime. The mapping table is included so a fresh
// environment has somewhere for the offline loader to populate, but the
// core process never inserts into it.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Job{},
		&types.Target{},
		&types.Result{},
		&types.ProcessedBatch{},
		&types.MappingEntry{},
	)
}

// EnsureIndexes adds the indexes GORM's tag-driven AutoMigrate can't express:
// partial/composite indexes tuned for the query shapes in §4.3 and §4.6.
func EnsureIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_results_job_id
		ON results (job_id);
	`).Error; err != nil {
		return fmt.Errorf("create idx_results_job_id: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_targets_job_id_hash
		ON targets (job_id, hash_hex);
	`).Error; err != nil {
		return fmt.Errorf("create idx_targets_job_id_hash: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_jobs_status_created_at
		ON jobs (status, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_jobs_status_created_at: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureIndexes(s.db); err != nil {
		s.log.Error("Index migration failed", "error", err)
		return err
	}
	return nil
}
