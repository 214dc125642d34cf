package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/RezaEskandarii/jobfire/internal/constants"
	"github.com/RezaEskandarii/jobfire/internal/lock"
	"github.com/cockroachdb/errors"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, postgresURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return db, nil
}

// Init creates the schema and applies every embedded migration script.
// Only one process migrates at a time: the scripts run under the
// distributed migration lock.
//
// The function performs the following steps:
//  1. Acquires the migration lock.
//  2. Creates the schema if it does not exist.
//  3. Executes the embedded scripts in file name order.
//
// Scripts are idempotent, so re-running Init is safe.
func Init(ctx context.Context, db *sql.DB, distributedLock lock.DistributedLockManager, logger *zap.SugaredLogger) error {
	migrationLock := constants.MigrationLock

	if err := distributedLock.Acquire(ctx, migrationLock); err != nil {
		return errors.Wrap(err, "acquire migration lock")
	}
	defer func() {
		if err := distributedLock.Release(context.WithoutCancel(ctx), migrationLock); err != nil {
			logger.Warnw("release migration lock", "error", err)
		}
	}()

	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", constants.DatabaseSchema)); err != nil {
		return errors.Wrap(err, "create schema")
	}

	scripts, err := readSQLScripts()
	if err != nil {
		return err
	}
	for _, script := range scripts {
		logger.Infow("applying migration", "file", script.name)
		if _, err := db.ExecContext(ctx, script.body); err != nil {
			return errors.Wrapf(err, "migration %s", script.name)
		}
	}

	return nil
}

type sqlScript struct {
	name string
	body string
}

func readSQLScripts() ([]sqlScript, error) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		return nil, err
	}

	var scripts []sqlScript
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		content, err := migrations.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, err
		}

		scripts = append(scripts, sqlScript{name: entry.Name(), body: string(content)})
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].name < scripts[j].name })

	return scripts, nil
}
