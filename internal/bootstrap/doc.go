// Copyright 2026 b2bgate
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package bootstrap assembles the ingestion service from its component
// parts: database connection, circuit breakers, mapping-rule store,
// document strategies, schema validator, orchestrator, and the broker
// worker pool.
//
// # Usage
//
//	cfg, err := config.Load(configPath)
//	svc, err := bootstrap.Build(ctx, cfg, logger)
//	go svc.Queue.Run(ctx)
//	// ... later, on shutdown:
//	svc.Queue.Shutdown(shutdownCtx)
//
// Build wires components in dependency order, breaking the one
// construction cycle (the broker pool's prefetch depends on the batch
// sizer, which in turn samples the pool's own depth and load) with a
// post-construction SetSampler call; see Build's source for the exact
// sequencing.
//
// Migrate applies the schema under a migrations directory using
// golang-migrate, independent of Build, so it can run as its own CLI
// step ahead of Build in a deployment.
package bootstrap
