// Package migrator applies the SQL files in db/migrations in lexical order and
// records a SHA-256 checksum for each, refusing to run if an applied file changed.
package migrator

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS migrations (
	filename   TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Migrator struct {
	pool          *pgxpool.Pool
	migrationsDir string
	logger        *slog.Logger
}

func New(pool *pgxpool.Pool, migrationsDir string) *Migrator {
	return &Migrator{
		pool:          pool,
		migrationsDir: migrationsDir,
		logger:        slog.Default().With("component", "migrator"),
	}
}

// WithLogger replaces the logger.
func (m *Migrator) WithLogger(logger *slog.Logger) *Migrator {
	m.logger = logger.With("component", "migrator")
	return m
}

// ApplyAll applies every pending migration and verifies the checksum of the
// ones already applied.
func (m *Migrator) ApplyAll(ctx context.Context) error {
	_, err := m.Apply(ctx)
	return err
}

// Apply is ApplyAll returning the applied filenames.
func (m *Migrator) Apply(ctx context.Context) ([]string, error) {
	if _, err := m.pool.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	files, err := MigrationFiles(m.migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get migration files: %w", err)
	}

	var newlyApplied []string
	for _, filename := range files {
		content, err := os.ReadFile(filepath.Join(m.migrationsDir, filename))
		if err != nil {
			return newlyApplied, err
		}
		checksum := Checksum(content)

		if stored, ok := applied[filename]; ok {
			if stored != checksum {
				return newlyApplied, fmt.Errorf("checksum verification failed for %s: migration has been modified (expected checksum %s, got %s)",
					filename, stored, checksum)
			}
			continue
		}

		if err := m.applyMigration(ctx, filename, string(content), checksum); err != nil {
			return newlyApplied, fmt.Errorf("failed to apply migration %s: %w", filename, err)
		}
		newlyApplied = append(newlyApplied, filename)
	}

	return newlyApplied, nil
}

func (m *Migrator) getAppliedMigrations(ctx context.Context) (map[string]string, error) {
	rows, err := m.pool.Query(ctx, "SELECT filename, checksum FROM migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var filename, checksum string
		if err := rows.Scan(&filename, &checksum); err != nil {
			return nil, err
		}
		applied[filename] = checksum
	}

	return applied, rows.Err()
}

// MigrationFiles lists the .sql files in dir in lexical order, skipping READMEs.
func MigrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		if strings.HasPrefix(entry.Name(), "README") {
			continue
		}
		files = append(files, entry.Name())
	}

	sort.Strings(files)

	return files, nil
}

// Checksum returns the hex SHA-256 of a migration file.
func Checksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

func (m *Migrator) applyMigration(ctx context.Context, filename, content, checksum string) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			m.logger.Warn("failed to rollback transaction", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, content); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO migrations (filename, checksum) VALUES ($1, $2)",
		filename, checksum)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	m.logger.Info("applied migration", "file", filename, "checksum", checksum[:8])
	return nil
}

// ListApplied returns applied migration filenames in the order they ran.
func (m *Migrator) ListApplied(ctx context.Context) ([]string, error) {
	rows, err := m.pool.Query(ctx,
		"SELECT filename FROM migrations ORDER BY applied_at ASC, filename ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var migrations []string
	for rows.Next() {
		var filename string
		if err := rows.Scan(&filename); err != nil {
			return nil, err
		}
		migrations = append(migrations, filename)
	}

	return migrations, rows.Err()
}
