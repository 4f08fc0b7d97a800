// Copyright 2026 b2bgate
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/b2bgate/xmlgate/internal/config"
	"github.com/b2bgate/xmlgate/internal/errors"
	"github.com/b2bgate/xmlgate/internal/output"
	"github.com/b2bgate/xmlgate/internal/ui"
	"github.com/b2bgate/xmlgate/pkg/persistence"
)

// StatusResult represents the pipeline's operational snapshot for JSON
// output.
type StatusResult struct {
	Connected       bool              `json:"connected"`
	BatchSize       int               `json:"batch_size"`
	ProcessingCount int               `json:"processing_count"`
	SuccessCount    int               `json:"success_count"`
	ErrorCount      int               `json:"error_count"`
	ServiceReached  bool              `json:"service_reached"`
	QueueDepth      int               `json:"queue_depth,omitempty"`
	Breakers        map[string]string `json:"breakers,omitempty"`
	Error           string            `json:"error,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// runStatus executes the 'status' CLI command: it reports how many
// processed_files rows sit in each terminal/non-terminal state from
// Postgres directly, plus the live breaker/batch/queue snapshot served by
// a running `xmlgate serve` instance's /status endpoint, when reachable.
//
// Flags:
//   - --json: output as JSON (default: false)
func runStatus(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", globals.JSON, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: xmlgate status [options]

Shows a snapshot of the processed-file ledger plus the running service's
breaker/batch/queue state, when reachable.

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
		errors.FatalError(err, *jsonOutput)
	}

	result := &StatusResult{
		BatchSize: cfg.Batch.InitialSize,
		Timestamp: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := persistence.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		result.Error = err.Error()
		emitStatus(result, *jsonOutput)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	result.Connected = true

	result.ProcessingCount = countByStatus(ctx, db, "PROCESSING")
	result.SuccessCount = countByStatus(ctx, db, "SUCCESS")
	result.ErrorCount = countByStatus(ctx, db, "ERROR")

	fetchServiceSnapshot(ctx, cfg.MetricsAddr, result)

	emitStatus(result, *jsonOutput)
}

// fetchServiceSnapshot hits a running xmlgate serve instance's /status
// endpoint for its live breaker states, batch size, and queue depth.
// A running service is optional: status still reports the ledger counts
// above when none is reachable.
func fetchServiceSnapshot(ctx context.Context, metricsAddr string, result *StatusResult) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metricsBaseURL(metricsAddr)+"/status", nil)
	if err != nil {
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return
	}

	var snapshot statusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return
	}
	result.ServiceReached = true
	result.BatchSize = snapshot.BatchSize
	result.QueueDepth = snapshot.QueueDepth
	result.Breakers = snapshot.Breakers
}

func metricsBaseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func countByStatus(ctx context.Context, db *persistence.DB, status string) int {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT count(*) FROM processed_files WHERE status = $1`, status); err != nil {
		return 0
	}
	return n
}

func emitStatus(result *StatusResult, jsonOutput bool) {
	if jsonOutput {
		_ = output.JSON(result)
		return
	}
	ui.Header("xmlgate Status")
	fmt.Printf("%s %d\n", ui.Label("Batch size:"), result.BatchSize)
	fmt.Printf("%s %v\n", ui.Label("Connected:"), result.Connected)
	ui.SubHeader("\nProcessed files:")
	fmt.Printf("  Processing: %d\n", result.ProcessingCount)
	fmt.Printf("  Success:    %d\n", result.SuccessCount)
	fmt.Printf("  Error:      %d\n", result.ErrorCount)

	if result.ServiceReached {
		ui.SubHeader("\nRunning service:")
		fmt.Printf("  Queue depth: %d\n", result.QueueDepth)
		for _, name := range sortedKeys(result.Breakers) {
			fmt.Printf("  Breaker %s: %s\n", name, result.Breakers[name])
		}
	} else {
		ui.SubHeader("\nRunning service:")
		fmt.Println("  not reachable (no xmlgate serve instance responding on the metrics port)")
	}

	if result.Error != "" {
		ui.Warning(result.Error)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
