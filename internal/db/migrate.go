package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"time"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

type migrationFile struct {
	name string
	data []byte
}

// RunMigrations applies every migration that has not been recorded in
// schema_migrations yet. Files in migrationsDir take precedence over the
// embedded set when the directory exists.
func RunMigrations(ctx context.Context, db *sql.DB, migrationsDir string) ([]string, error) {
	files, err := loadMigrations(migrationsDir)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
    name       TEXT PRIMARY KEY,
    applied_at TEXT NOT NULL
)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	var applied []string
	for _, mf := range files {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE name = ?`, mf.name).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return applied, fmt.Errorf("check migration %s: %w", mf.name, err)
		}
		if err := applyMigration(ctx, db, mf); err != nil {
			return applied, err
		}
		applied = append(applied, mf.name)
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db *sql.DB, mf migrationFile) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", mf.name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	if len(mf.data) > 0 {
		if _, err = tx.ExecContext(ctx, string(mf.data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", mf.name, err)
		}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, mf.name, formatTime(time.Now()))
	return err
}

func loadMigrations(dir string) ([]migrationFile, error) {
	var fsys fs.FS
	if dir != "" {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			fsys = os.DirFS(dir)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read migrations: %w", err)
		}
	}
	if fsys == nil {
		sub, err := fs.Sub(embeddedMigrations, "migrations")
		if err != nil {
			return nil, fmt.Errorf("read embedded migrations: %w", err)
		}
		fsys = sub
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []migrationFile
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		files = append(files, migrationFile{name: entry.Name(), data: content})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}
