// Command migrate applies or rolls back the vault's database schema using
// goose against the SQL files in migrations/sql.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrymomot/credvault/core/config"
	vaultconfig "github.com/dmitrymomot/credvault/internal/config"
)

func main() {
	dir := flag.String("dir", "migrations/sql", "directory of goose migration files")
	flag.Parse()

	direction := flag.Arg(0)
	if direction == "" {
		direction = "up"
	}

	if err := run(direction, *dir); err != nil {
		slog.Default().Error("migrate: failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(direction, dir string) error {
	var cfg vaultconfig.Config
	if err := config.Load(&cfg); err != nil {
		return err
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	ctx := context.Background()

	switch direction {
	case "up":
		return goose.UpContext(ctx, db, dir)
	case "down":
		return goose.DownContext(ctx, db, dir)
	case "status":
		return goose.StatusContext(ctx, db, dir)
	default:
		return fmt.Errorf("migrate: unknown direction %q", direction)
	}
}
