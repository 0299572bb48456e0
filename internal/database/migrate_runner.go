package database

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"dietlog/internal/middleware"

	"gorm.io/gorm"
)

// MigrationLog is one row of the applied-migrations ledger.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the database table name for MigrationLog.
func (MigrationLog) TableName() string {
	return "migration_logs"
}

const createLedgerSQL = `
CREATE TABLE IF NOT EXISTS migration_logs (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// appliedVersions lists ledger versions in ascending order. A missing ledger reads as empty.
func appliedVersions(ctx context.Context, db *gorm.DB) ([]int, error) {
	var versions []int
	err := db.WithContext(ctx).Model(&MigrationLog{}).Order("version ASC").Pluck("version", &versions).Error
	if err == nil {
		return versions, nil
	}
	msg := err.Error()
	if strings.Contains(msg, "no such table") ||
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")) {
		return []int{}, nil
	}
	return nil, fmt.Errorf("read migration ledger: %w", err)
}

// planMigrations returns the registered migrations missing from applied, in version order.
// A ledger version with no registered script means the binary is older than the database.
func planMigrations(applied []int, registered []Migration) ([]Migration, error) {
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	var pending []Migration
	for _, m := range registered {
		if done[m.Version] {
			delete(done, m.Version)
			continue
		}
		pending = append(pending, m)
	}
	if len(done) == 0 {
		return pending, nil
	}

	unknown := make([]int, 0, len(done))
	for v := range done {
		unknown = append(unknown, v)
	}
	sort.Ints(unknown)
	labels := make([]string, len(unknown))
	for i, v := range unknown {
		labels[i] = fmt.Sprintf("%06d", v)
	}
	return nil, fmt.Errorf("migration_logs has versions this build does not know: %s", strings.Join(labels, ", "))
}

// RunMigrations creates the ledger if needed and applies every pending embedded migration.
// Each script and its ledger row commit together.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).Exec(createLedgerSQL).Error; err != nil {
		return fmt.Errorf("create migration ledger: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}
	pending, err := planMigrations(applied, migrations)
	if err != nil {
		return err
	}

	for _, m := range pending {
		m := m
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(m.UpScript).Error; err != nil {
				return fmt.Errorf("apply migration %06d_%s: %w", m.Version, m.Name, err)
			}
			return tx.Create(&MigrationLog{Version: m.Version, Name: m.Name}).Error
		})
		if err != nil {
			return err
		}
		middleware.Logger.Info("Migration applied", slog.Int("version", m.Version), slog.String("name", m.Name))
	}
	return nil
}

// RollbackMigration runs the down script of an applied migration and removes its ledger row.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	m := GetMigrationByVersion(version)
	if m == nil {
		return fmt.Errorf("migration version %d not found", version)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}
	if i := sort.SearchInts(applied, version); i == len(applied) || applied[i] != version {
		return fmt.Errorf("migration %d has not been applied", version)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.DownScript).Error; err != nil {
			return fmt.Errorf("roll back migration %06d_%s: %w", version, m.Name, err)
		}
		return tx.Where("version = ?", version).Delete(&MigrationLog{}).Error
	})
	if err != nil {
		return err
	}
	middleware.Logger.Info("Migration rolled back", slog.Int("version", version), slog.String("name", m.Name))
	return nil
}
