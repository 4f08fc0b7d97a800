// Copyright 2026 b2bgate
//
// SPDX-License-Identifier: AGPL-3.0-only

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/b2bgate/xmlgate/internal/config"
	"github.com/b2bgate/xmlgate/internal/metrics"
	"github.com/b2bgate/xmlgate/pkg/batch"
	"github.com/b2bgate/xmlgate/pkg/breaker"
	"github.com/b2bgate/xmlgate/pkg/persistence"
	"github.com/b2bgate/xmlgate/pkg/pipeline"
	"github.com/b2bgate/xmlgate/pkg/queue"
	"github.com/b2bgate/xmlgate/pkg/rules"
	"github.com/b2bgate/xmlgate/pkg/schema"
	"github.com/b2bgate/xmlgate/pkg/strategy"
)

// sizerAdjustInterval matches the 30s cadence spec.md §4.9 names for the
// batch sizer's dedicated timer task.
const sizerAdjustInterval = 30 * time.Second

// Service bundles every running component a "serve" invocation owns, so
// main can start and later gracefully stop the whole tree.
type Service struct {
	DB           *persistence.DB
	Breakers     *breaker.Registry
	Sizer        *batch.Sizer
	Queue        *queue.Pool
	Orchestrator *pipeline.Orchestrator
}

// Build connects to the database, wires the breaker registry, batch sizer,
// mapping-rule store, document strategies, validator, and orchestrator, and
// dials the broker, assembling one running ingestion service.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}

	log.Info("bootstrap.database.connect")
	db, err := persistence.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	breakers := breaker.NewRegistry()
	for name, bc := range cfg.BreakerConfigs() {
		breakers.Register(name, bc)
	}
	if _, ok := cfg.CircuitBreakers["repository"]; !ok {
		breakers.Register("repository", breaker.DefaultConfig())
	}

	catalog := persistence.NewCatalogRepository(breakers)
	resolver := persistence.NewResolver(db, catalog)
	headers := persistence.NewHeaderRepository(breakers)
	lines := persistence.NewLineRepository(breakers)
	processedFile := persistence.NewProcessedFileRepository(breakers)

	ruleStore := rules.New(persistence.NewRuleRepository(db), breakers, rules.DefaultTTL)

	sizer := batch.New(cfg.BatchSizerConfig(), noopSampler{})
	factory := strategy.NewCatalog(ruleStore, headers, lines, sizer)
	validator := schema.New(cfg.SchemaLimits())
	orch := pipeline.New(db, resolver, validator, factory, processedFile)

	log.Info("bootstrap.broker.dial")
	pool, err := queue.Dial(cfg.QueueConfig(), queue.HandlerFunc(orch.ProcessEnvelope), sizer, log)
	if err != nil {
		return nil, err
	}
	// The sizer samples the pool's own depth/load once it exists, closing
	// the construction cycle: Pool needs a Sizer to Requalify, the Sizer
	// needs the Pool as its Sampler. Strategies built above already hold
	// this same *Sizer pointer, so swapping its sampler here is visible to
	// them too.
	sizer.SetSampler(pool)

	go runSizerLoop(ctx, sizer, pool, log)

	log.Info("bootstrap.service.ready")
	return &Service{
		DB: db, Breakers: breakers, Sizer: sizer, Queue: pool, Orchestrator: orch,
	}, nil
}

// runSizerLoop is the "one dedicated timer task" spec.md §4.9 calls for:
// every sizerAdjustInterval it reruns the sizer's decision cycle against
// the pool's current depth/load, publishes the result, and re-applies
// prefetch so consumers pick up the new batch size on their next delivery.
// It exits when ctx is done, matching serve's own shutdown signal.
func runSizerLoop(ctx context.Context, sizer *batch.Sizer, pool *queue.Pool, log *slog.Logger) {
	ticker := time.NewTicker(sizerAdjustInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			size := sizer.Adjust()
			metrics.SetBatchSize(size)
			if err := pool.Requalify(); err != nil {
				log.Error("bootstrap.sizer.requalify_failed", "error", err)
			}
		}
	}
}

// noopSampler is the Sizer's initial Sampler, used while the strategy
// factory is constructed before the real Pool-backed Sampler exists; Build
// keeps the same Sizer and swaps this sampler out via SetSampler once the
// Pool is dialed.
type noopSampler struct{}

func (noopSampler) QueueDepth() int     { return 0 }
func (noopSampler) SystemLoad() float64 { return 0 }

// Migrate applies every pending migration under dir against cfg's database.
func Migrate(cfg config.Config, dir string) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", dir), "pgx5://"+cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("constructing migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
