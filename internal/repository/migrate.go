package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // database/sql driver for goose
	"github.com/pressly/goose/v3"

	"github.com/marchand/essence/migrations"
)

// RunMigrations applies all pending schema migrations. Goose needs a
// database/sql handle, so this opens its own short-lived connection instead
// of going through the pgx pool.
func RunMigrations(databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.MigrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
