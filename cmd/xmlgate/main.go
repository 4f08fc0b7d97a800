// Copyright 2026 b2bgate
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package main implements the xmlgate CLI: the operational entrypoint for
// the XML ingestion pipeline's worker service.
//
// Usage:
//
//	xmlgate serve                 Run the ingestion worker pool until signaled
//	xmlgate migrate                Apply pending database migrations
//	xmlgate status [--json]       Show breaker/batch/queue snapshot
package main

import (
	"flag"
	"fmt"
	"os"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags carries the options every subcommand's output formatting
// respects.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Quiet   bool
}

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to config YAML (default: built-in defaults + env overrides)")
		jsonOutput  = flag.Bool("json", false, "Output as JSON where supported")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `xmlgate - XML document ingestion pipeline

Usage:
  xmlgate <command> [options]

Commands:
  serve     Run the ingestion worker pool (consumes RabbitMQ, persists to Postgres)
  migrate   Apply pending database migrations
  status    Show breaker/batch/queue snapshot

Global Options:
  --config     Path to config YAML
  --json       Output as JSON where supported
  --no-color   Disable colored output
  --version    Show version and exit

Environment Variables:
  XMLGATE_DATABASE_DSN     Postgres DSN override
  XMLGATE_RABBITMQ_URL     Broker URL override
  XMLGATE_METRICS_ADDR     Prometheus listen address override

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("xmlgate version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	globals := GlobalFlags{JSON: *jsonOutput, NoColor: *noColor}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "serve":
		runServe(cmdArgs, *configPath, globals)
	case "migrate":
		runMigrate(cmdArgs, *configPath, globals)
	case "status":
		runStatus(cmdArgs, *configPath, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
