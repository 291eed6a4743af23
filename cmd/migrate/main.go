package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const defaultMigrationsPath = "migrations"

var (
	upFlag      = flag.Bool("up", false, "Apply all pending migrations")
	downFlag    = flag.Bool("down", false, "Roll back the last migration")
	versionFlag = flag.Bool("version", false, "Show current migration version")
	forceFlag   = flag.Int("force", -1, "Force migration version without running migrations")

	dsn           = flag.String("dsn", os.Getenv("RETRIEVAL_DATABASE_DSN"), "Database connection string")
	migrationsDir = flag.String("dir", defaultMigrationsPath, "Migrations directory")
)

func main() {
	flag.Parse()

	if *dsn == "" {
		fmt.Println("Error: -dsn or RETRIEVAL_DATABASE_DSN is required")
		flag.Usage()
		os.Exit(1)
	}

	m, err := migrate.New("file://"+*migrationsDir, *dsn)
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			log.Printf("Failed to close migration source: %v", srcErr)
		}
		if dbErr != nil {
			log.Printf("Failed to close migration database: %v", dbErr)
		}
	}()

	switch {
	case *upFlag:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("Migrations applied")
	case *downFlag:
		if err := m.Steps(-1); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Rolled back one migration")
	case *forceFlag >= 0:
		if err := m.Force(*forceFlag); err != nil {
			log.Fatalf("Force failed: %v", err)
		}
		log.Printf("Forced version to %d", *forceFlag)
	case *versionFlag:
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("Failed to read version: %v", err)
		}
		log.Printf("Version: %d dirty: %v", version, dirty)
	default:
		flag.Usage()
		os.Exit(1)
	}
}
