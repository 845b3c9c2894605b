package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/francozeta/musicbox/internal/middleware"

	"gorm.io/gorm"
)

// appliedMigration is one row of the schema_migrations ledger.
type appliedMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (appliedMigration) TableName() string { return "schema_migrations" }

// Migrator applies and rolls back a fixed, version-ordered migration set.
// Every script runs in the same transaction as its ledger row.
type Migrator struct {
	db         *gorm.DB
	migrations []Migration
}

// NewMigrator returns a Migrator over migrations, which must be sorted by version.
func NewMigrator(db *gorm.DB, migrations []Migration) *Migrator {
	return &Migrator{db: db, migrations: migrations}
}

// Applied lists applied versions in ascending order. A database that has never
// been migrated has none.
func (m *Migrator) Applied(ctx context.Context) ([]int, error) {
	if !m.db.Migrator().HasTable(&appliedMigration{}) {
		return nil, nil
	}
	var versions []int
	err := m.db.WithContext(ctx).Model(&appliedMigration{}).Order("version").Pluck("version", &versions).Error
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	return versions, nil
}

// Pending lists the registered migrations not yet applied.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, mig := range m.migrations {
		if !slices.Contains(applied, mig.Version) {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// Up applies every pending migration. It refuses to run against a database
// that has versions this build does not know, since that database was
// migrated by a newer build.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&appliedMigration{}); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	if unknown := m.unknownVersions(applied); len(unknown) > 0 {
		return fmt.Errorf("schema_migrations has unknown versions not present in this build: %s",
			strings.Join(unknown, ", "))
	}

	for _, mig := range m.migrations {
		if slices.Contains(applied, mig.Version) {
			continue
		}
		middleware.Logger.InfoContext(ctx, "applying migration", slog.String("migration", mig.String()))
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mig.UpScript).Error; err != nil {
				return fmt.Errorf("apply %s: %w", mig, err)
			}
			return tx.Create(&appliedMigration{Version: mig.Version, Name: mig.Name}).Error
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Down rolls back one applied migration.
func (m *Migrator) Down(ctx context.Context, version int) error {
	idx := slices.IndexFunc(m.migrations, func(mig Migration) bool { return mig.Version == version })
	if idx < 0 {
		return fmt.Errorf("migration version %d not found", version)
	}
	mig := m.migrations[idx]

	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(applied, version) {
		return fmt.Errorf("migration %s has not been applied", mig)
	}

	middleware.Logger.InfoContext(ctx, "rolling back migration", slog.String("migration", mig.String()))
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(mig.DownScript).Error; err != nil {
			return fmt.Errorf("roll back %s: %w", mig, err)
		}
		return tx.Delete(&appliedMigration{}, "version = ?", version).Error
	})
}

func (m *Migrator) unknownVersions(applied []int) []string {
	var unknown []string
	for _, v := range applied {
		known := slices.ContainsFunc(m.migrations, func(mig Migration) bool { return mig.Version == v })
		if !known {
			unknown = append(unknown, fmt.Sprintf("%06d", v))
		}
	}
	return unknown
}

// RunMigrations applies the embedded migrations.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	return NewMigrator(db, GetMigrations()).Up(ctx)
}

// RollbackMigration reverts one embedded migration by version.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	return NewMigrator(db, GetMigrations()).Down(ctx, version)
}
