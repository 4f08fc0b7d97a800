// Copyright 2026 b2bgate
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/b2bgate/xmlgate/internal/bootstrap"
	"github.com/b2bgate/xmlgate/internal/config"
	"github.com/b2bgate/xmlgate/internal/errors"
	"github.com/b2bgate/xmlgate/internal/ui"
)

// runMigrate executes the 'migrate' CLI command, applying every pending
// migration under --dir against the configured database.
func runMigrate(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dir := fs.String("dir", "db/migrations", "Directory of golang-migrate migration files")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: xmlgate migrate [options]

Applies every pending database migration.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ui.InitColors(globals.NoColor)

	cfg, err := config.Load(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	ui.Info("Applying migrations...")
	if err := bootstrap.Migrate(cfg, *dir); err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Migration failed",
			err.Error(),
			"Check XMLGATE_DATABASE_DSN and that the migration directory is reachable",
			err,
		), globals.JSON)
	}
	ui.Success("Database is up to date")
}
