package main

import (
	"context"
	"fmt"
	"os"

	"github.com/platinummonkey/andobill/pkg/cli"
	"github.com/platinummonkey/andobill/pkg/config"
	"github.com/platinummonkey/andobill/pkg/storage/postgres"
)

func main() {
	// only the database is needed, so the full config is not validated
	cfg := config.Default()
	cfg.Database.URL = os.Getenv("ANDOBILL_DATABASE_URL")
	if cfg.Database.URL == "" {
		fmt.Fprintln(os.Stderr, "Error: ANDOBILL_DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := postgres.Open(context.Background(), postgres.ConnectionConfig{
		URL:          cfg.Database.URL,
		MaxOpenConns: 2,
		MaxLifetime:  cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	rootCmd := cli.NewRootCommand(&cli.Runtime{
		DB:      db,
		Dialect: postgres.DialectPostgres,
		Out:     os.Stdout,
	})

	if err := rootCmd.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		db.Close()
		os.Exit(1)
	}
}
