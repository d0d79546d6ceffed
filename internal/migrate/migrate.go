// Package migrate applies embedded SQL migrations on startup.
package migrate

import (
	"context"
	"database/sql"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/thermolink/migrations"
)

// Up runs all pending PostgreSQL migrations from the embedded filesystem.
func Up(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	return run(ctx, db, goose.DialectPostgres, migrations.Postgres, "postgres")
}

// UpSQLite runs the SQLite migrations against an already opened database.
func UpSQLite(ctx context.Context, db *sql.DB) error {
	return run(ctx, db, goose.DialectSQLite3, migrations.SQLite, "sqlite")
}

func run(ctx context.Context, db *sql.DB, dialect goose.Dialect, fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}
