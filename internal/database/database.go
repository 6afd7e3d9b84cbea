package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// FileName is the SQLite file created inside the data directory.
const FileName = "sccpd.db"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqlitePragmas are applied to every connection through the DSN.
var sqlitePragmas = []string{
	"journal_mode(wal)",
	"busy_timeout(5000)",
	"foreign_keys(on)",
	"synchronous(normal)",
}

// DB is the sccpd state database: provisioning, admin users, device
// messages and system settings.
type DB struct {
	*sql.DB
	path string
}

// Open opens <dataDir>/sccpd.db, creating the directory and file when
// missing, and brings the schema up to date.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	file := filepath.Join(dataDir, FileName)

	sqlDB, err := sql.Open("sqlite", sqliteDSN(file))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", file, err)
	}
	// SQLite has a single writer.
	sqlDB.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging %s: %w", file, err)
	}

	db := &DB{DB: sqlDB, path: file}
	applied, err := db.migrate(ctx)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating %s: %w", file, err)
	}

	slog.Info("database opened", "path", file, "migrations_applied", applied)
	return db, nil
}

// Path returns the database file location.
func (db *DB) Path() string { return db.path }

func sqliteDSN(file string) string {
	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(file)
	for i, p := range sqlitePragmas {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString("_pragma=")
		b.WriteString(p)
	}
	return b.String()
}

// migrate applies every embedded migration not yet recorded in
// schema_migrations and returns how many ran.
func (db *DB) migrate(ctx context.Context) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return 0, fmt.Errorf("creating schema_migrations: %w", err)
	}

	done, err := db.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	// fs.Glob returns names in lexical order, which is the apply order.
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return 0, fmt.Errorf("listing migrations: %w", err)
	}

	n := 0
	for _, name := range files {
		version := strings.TrimSuffix(path.Base(name), ".sql")
		if done[version] {
			continue
		}
		body, err := migrationsFS.ReadFile(name)
		if err != nil {
			return n, fmt.Errorf("reading migration %s: %w", version, err)
		}
		if err := db.applyMigration(ctx, version, string(body)); err != nil {
			return n, err
		}
		slog.Info("applied migration", "version", version)
		n++
	}
	return n, nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("listing applied migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning applied migration: %w", err)
		}
		done[v] = true
	}
	return done, rows.Err()
}

func (db *DB) applyMigration(ctx context.Context, version, body string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %s: beginning transaction: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("migration %s: recording version: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %s: committing: %w", version, err)
	}
	return nil
}
