package main

import (
	"errors"
	"flag"
	"log"
	"os"

	"github.com/Domenick1991/tourledger/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
)

func main() {
	action := flag.String("action", "up", "Migration action: up, down, or version")
	steps := flag.Int("steps", 0, "Number of migrations to roll back (for down)")
	dir := flag.String("dir", "migrations", "Directory with migration files")
	flag.Parse()

	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	m, err := migrate.New("file://"+*dir, cfg.Database.URL())
	if err != nil {
		log.Fatalf("create migrate instance: %v", err)
	}
	defer m.Close()

	switch *action {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("migration up failed: %v", err)
		}
		log.Println("migrations applied")
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("migration down failed: %v", err)
		}
		log.Println("migrations rolled back")
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("get version: %v", err)
		}
		log.Printf("current version: %d, dirty: %v", version, dirty)
	default:
		log.Fatalf("unknown action %q (use up, down, or version)", *action)
	}
}
