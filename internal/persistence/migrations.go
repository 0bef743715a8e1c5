package persistence

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const migrationLedger = `CREATE TABLE IF NOT EXISTS schema_migrations (
    filename   TEXT PRIMARY KEY,
    checksum   TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migration is one SQL file found on disk.
type Migration struct {
	Name     string
	SQL      string
	Checksum string
}

// LoadMigrations reads the .sql files in dir in lexical order.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	filenames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		filenames = append(filenames, entry.Name())
	}
	sort.Strings(filenames)

	migrations := make([]Migration, 0, len(filenames))
	for _, name := range filenames {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		sum := blake2b.Sum256(content)
		migrations = append(migrations, Migration{Name: name, SQL: string(content), Checksum: hex.EncodeToString(sum[:])})
	}
	return migrations, nil
}

// RunMigrations applies the files in dir that schema_migrations has not seen.
// Each file runs in its own transaction together with its ledger row. A file
// whose checksum changed after it was applied is reported and skipped.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, dir string, logger *zap.Logger) error {
	if pool == nil {
		logger.Warn("no postgres pool available; skipping migrations")
		return nil
	}

	migrations, err := LoadMigrations(dir)
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, migrationLedger); err != nil {
		return fmt.Errorf("create migration ledger: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		var recorded string
		err := pool.QueryRow(ctx, `SELECT checksum FROM schema_migrations WHERE filename = $1`, m.Name).Scan(&recorded)
		switch {
		case err == nil:
			if recorded != m.Checksum {
				logger.Warn("migration changed after it was applied", zap.String("file", m.Name))
			}
			continue
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("check migration %s: %w", m.Name, err)
		}

		logger.Info("applying migration", zap.String("file", m.Name))
		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename, checksum) VALUES ($1, $2)`, m.Name, m.Checksum)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		applied++
	}

	logger.Info("migrations applied", zap.Int("applied", applied), zap.Int("total", len(migrations)))
	return nil
}
