package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var files embed.FS

// Up applies all pending migrations.
func Up(db *sql.DB) error {
	goose.SetBaseFS(files)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// UpDSN opens a dedicated connection for migrating and closes it afterwards.
func UpDSN(driver, dsn string) error {
	db, err := goose.OpenDBWithDriver(driver, dsn)
	if err != nil {
		return fmt.Errorf("open %s for migrations: %w", driver, err)
	}
	defer func() { _ = db.Close() }()
	return Up(db)
}

// Status prints the applied state of every migration.
func Status(db *sql.DB) error {
	goose.SetBaseFS(files)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.Status(db, ".")
}
