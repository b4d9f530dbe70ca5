package main

import (
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const usage = `usage: migrate [<migrations-path> <database-url>] <up|down>

Applies the fsmon schema migrations. With one argument the defaults
./migrations and sqlite3://./data/fsmon.db are used.`

func main() {
	migrationsPath := "./migrations"
	databaseURL := "sqlite3://./data/fsmon.db"

	args := os.Args[1:]
	switch len(args) {
	case 1:
	case 3:
		migrationsPath, databaseURL = args[0], args[1]
		args = args[2:]
	default:
		log.Fatal(usage)
	}

	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		log.Fatalf("Failed to open migrations: %v", err)
	}

	switch args[0] {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("fsmon schema is up to date.")
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("fsmon schema rolled back.")
	default:
		log.Fatal(usage)
	}
}
