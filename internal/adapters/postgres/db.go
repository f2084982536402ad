package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Connect opens the gorm pool every repository shares and verifies it with a
// bounded ping before handing it out. PrepareStmt caches statements across the
// hot session-validation path; TranslateError turns driver errors into gorm
// sentinels the repositories match on.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("underlying sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(int(maxConns))
		sqlDB.SetMaxIdleConns(int(maxConns) / 2)
	}
	// A dashboard sees long quiet stretches; recycle idle connections rather
	// than pinning them against the instance's connection budget.
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	slog.Default().InfoContext(ctx, "database pool ready",
		"module", "postgres",
		"layer", "adapter",
		"operation", "connect",
		"outcome", "success",
		"max_conns", maxConns,
	)
	return db, nil
}

// RunMigrations executes the embedded schema files in lexical filename order.
// Statements are idempotent (IF NOT EXISTS / ON CONFLICT), so reapplying the
// full set on every start is safe and keeps the binary and schema in step.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := migrationFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := db.WithContext(ctx).Exec(string(raw)).Error; err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		slog.Default().InfoContext(ctx, "schema migration applied",
			"module", "postgres",
			"layer", "adapter",
			"operation", "migrate",
			"outcome", "success",
			"file", name,
		)
	}
	slog.Default().InfoContext(ctx, "schema up to date",
		"module", "postgres",
		"layer", "adapter",
		"operation", "migrate",
		"outcome", "success",
		"applied", len(names),
	)
	return nil
}
