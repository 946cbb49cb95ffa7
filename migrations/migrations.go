// Package migrations embeds the SQL schema and applies it in version order.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/pkg/database"
)

//go:embed *.sql
var files embed.FS

const upSuffix = ".up.sql"

const createVersionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version VARCHAR(255) PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Versions lists the embedded up migrations in apply order.
func Versions() ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, upSuffix) {
			versions = append(versions, strings.TrimSuffix(name, upSuffix))
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// Up applies every pending migration, each in its own transaction, and returns the applied versions.
func Up(ctx context.Context, db *sqlx.DB, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.ExecContext(ctx, createVersionTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	var done []string
	if err := db.SelectContext(ctx, &done, `SELECT version FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}
	appliedSet := make(map[string]struct{}, len(done))
	for _, version := range done {
		appliedSet[version] = struct{}{}
	}

	versions, err := Versions()
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, version := range versions {
		if _, ok := appliedSet[version]; ok {
			continue
		}
		script, err := files.ReadFile(version + upSuffix)
		if err != nil {
			return applied, err
		}
		err = database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, string(script)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply %s: %w", version, err)
		}
		logger.Info("migration applied", zap.String("version", version))
		applied = append(applied, version)
	}
	return applied, nil
}
