package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/francozeta/musicbox/internal/config"
	"github.com/francozeta/musicbox/internal/middleware"

	"gorm.io/gorm"
)

// Schema modes accepted by DB_SCHEMA_MODE.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
	SchemaModeOff    = "off"
)

// SchemaStatus describes what ApplySchema would do for a config.
type SchemaStatus struct {
	Mode               string
	Environment        string
	WillRunSQL         bool
	WillRunAutoMigrate bool
	AppliedVersions    []int
	PendingMigrations  []Migration
}

// schemaPlan is the set of steps one schema mode runs on one dialect.
type schemaPlan struct {
	mode    string
	sql     bool
	autoMig bool
}

// planSchema resolves DB_SCHEMA_MODE against the dialect. SQL migrations are
// written for postgres, so other dialects only ever get AutoMigrate.
func planSchema(cfg *config.Config, dialect string) (schemaPlan, error) {
	plan := schemaPlan{mode: strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode))}
	if plan.mode == "" {
		plan.mode = SchemaModeHybrid
	}
	onPostgres := dialect == "postgres"

	switch plan.mode {
	case SchemaModeOff:
	case SchemaModeAuto:
		plan.autoMig = true
	case SchemaModeSQL:
		if !onPostgres {
			return plan, fmt.Errorf("DB_SCHEMA_MODE=sql requires postgres, got %q", dialect)
		}
		plan.sql = true
	case SchemaModeHybrid:
		plan.sql = onPostgres
		plan.autoMig = !onPostgres || !cfg.IsProduction()
	default:
		return plan, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", plan.mode)
	}
	return plan, nil
}

// ApplySchema brings the schema up to date according to DB_SCHEMA_MODE.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := planSchema(cfg, db.Dialector.Name())
	if err != nil {
		return err
	}
	if plan.sql {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	if !plan.autoMig {
		return nil
	}
	middleware.Logger.InfoContext(ctx, "auto-migrating models",
		slog.String("mode", plan.mode),
		slog.String("env", cfg.Env),
	)
	if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// GetSchemaStatus reports the schema policy and, for SQL modes, which
// migrations are still pending.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := planSchema(cfg, db.Dialector.Name())
	if err != nil {
		return nil, err
	}

	status := &SchemaStatus{
		Mode:               plan.mode,
		Environment:        cfg.Env,
		WillRunSQL:         plan.sql,
		WillRunAutoMigrate: plan.autoMig,
	}
	if !plan.sql {
		return status, nil
	}

	migrator := NewMigrator(db, GetMigrations())
	if status.AppliedVersions, err = migrator.Applied(ctx); err != nil {
		return nil, err
	}
	if status.PendingMigrations, err = migrator.Pending(ctx); err != nil {
		return nil, err
	}
	return status, nil
}
