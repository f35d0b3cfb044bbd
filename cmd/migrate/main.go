package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"ms-order-worker/internal/config"
	"ms-order-worker/internal/database"
	"ms-order-worker/internal/database/migrations"
	"ms-order-worker/internal/logger"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: migrate [-dir ./migrations] up|down|version|goto <version>\n")
	os.Exit(2)
}

func main() {
	config.LoadDotEnv()
	cfg := config.Load()

	dir := flag.String("dir", cfg.Database.MigrationsDir, "directory holding the migration files")
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}

	log, err := logger.NewLogger(logger.Options{Service: "order-migrate", Level: cfg.Log.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	sqldb, err := database.Open(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer sqldb.Close()

	runner := migrations.NewRunner(sqldb, migrations.MigrateOptions{
		MigrationsDir: *dir,
		SchemaName:    cfg.Database.Schema,
	}, log)
	defer runner.Close()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		err = runner.MigrateUp()
	case "down":
		err = runner.MigrateDown()
	case "goto":
		var version uint
		if flag.NArg() < 2 {
			usage()
		}
		if _, scanErr := fmt.Sscanf(flag.Arg(1), "%d", &version); scanErr != nil {
			usage()
		}
		err = runner.MigrateTo(version)
	case "version":
		version, dirty, ok, verr := runner.Version()
		if verr != nil {
			err = verr
			break
		}
		if !ok {
			log.Info("MIGRATE", "No migrations applied")
			break
		}
		log.Info("MIGRATE", fmt.Sprintf("Version %d (dirty: %t)", version, dirty))
	default:
		usage()
	}

	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", fmt.Sprintf("%s complete", flag.Arg(0)))
}
