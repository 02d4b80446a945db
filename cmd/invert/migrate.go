package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/invertfield/internal/db"
)

// runMigrate handles "invert -db PATH migrate up|down|status".
func runMigrate(args []string, dbPath string, stdout io.Writer) error {
	if dbPath == "" {
		return errors.New("migrate requires -db")
	}
	if len(args) != 1 {
		return errors.New("usage: invert -db PATH migrate up|down|status")
	}

	database, err := db.OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	migrations := db.MigrationsFS()
	switch args[0] {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
	case "status":
	default:
		return fmt.Errorf("unknown migrate action %q", args[0])
	}

	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "version=%d dirty=%v\n", version, dirty)
	return nil
}
