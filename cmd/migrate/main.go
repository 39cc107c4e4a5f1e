// Command migrate applies or rolls back dcbengine's embedded schema
// migrations against DATABASE_URL.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dcbengine/dcbengine/internal/migrations"
)

func main() {
	showVersion := flag.Bool("version", false, "print the current schema version and exit")
	flag.Parse()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("migrate: DATABASE_URL must be set")
	}
	migrationsTable := os.Getenv("MIGRATIONS_TABLE")

	runner, err := migrations.NewRunner(databaseURL, migrationsTable)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	defer runner.Close()

	if *showVersion {
		printVersion(runner)
		return
	}

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	switch command {
	case "up":
		if err := runner.Up(); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Println("migrate: schema is up to date")
	case "down":
		if err := runner.Down(); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Println("migrate: rolled back one migration")
	case "version":
		printVersion(runner)
	default:
		fmt.Fprintf(os.Stderr, "usage: migrate [up|down|version]\n")
		os.Exit(2)
	}
}

func printVersion(runner *migrations.Runner) {
	v, dirty, ok, err := runner.Version()
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if !ok {
		log.Println("migrate: no migrations applied yet")
		return
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	log.Printf("migrate: schema version %d (%s)\n", v, state)
}
