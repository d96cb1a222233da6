// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rollforward is the outward surface of the roll-forward fsync
// recovery engine (spec.md §6): recover_fsync_data, wrapped with the
// per-run observability a real mount path expects, plus the recovery
// cache's lifecycle.
package rollforward

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rollforward/rollforward/internal/checkpoint"
	"github.com/rollforward/rollforward/internal/inode"
	"github.com/rollforward/rollforward/internal/logger"
	"github.com/rollforward/rollforward/internal/monitor"
)

// Outcome is recover_fsync_data's result (spec.md §6), re-exported so
// callers never import internal/checkpoint directly.
type Outcome = checkpoint.Outcome

// Backend bundles every out-of-scope collaborator recovery needs
// (spec.md §1, §6). Re-exported from internal/checkpoint so a caller
// constructs exactly one struct to drive an Engine.
type Backend = checkpoint.Backend

// Engine drives recover_fsync_data against one Backend, timing each run
// in a Prometheus phase-duration histogram and tracing it as one
// OpenTelemetry span tagged with a per-run correlation ID.
type Engine struct {
	orch    *checkpoint.Orchestrator
	metrics *monitor.Metrics
}

// NewEngine returns an Engine over b, registering its metrics on reg.
// reg may be nil, in which case metrics are registered on a private
// registry and never exposed — useful for tests and one-shot CLI runs
// that don't serve /metrics.
func NewEngine(b Backend, reg prometheus.Registerer) *Engine {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Engine{
		orch:    checkpoint.New(b),
		metrics: monitor.NewMetrics(reg),
	}
}

// RecoverFsyncData runs recover_fsync_data(checkOnly) (spec.md §4.8,
// §6), logging and tracing the run under a fresh correlation ID.
func (e *Engine) RecoverFsyncData(ctx context.Context, checkOnly bool) (Outcome, error) {
	runID := monitor.NewRunID()
	ctx, span := monitor.StartPhase(ctx, runID, "recover_fsync_data")
	defer span.End()

	timer := prometheus.NewTimer(e.metrics.PhaseDuration.WithLabelValues("recover_fsync_data"))
	defer timer.ObserveDuration()

	logger.Infof("recovery run %s starting (check_only=%v)", runID, checkOnly)

	out, err := e.orch.RecoverFsyncData(ctx, checkOnly)
	if err != nil {
		logger.Errorf("recovery run %s failed: %v", runID, err)
		return Outcome{}, err
	}

	logger.Infof("recovery run %s done: recovered=%v needs_recovery=%v", runID, out.Recovered, out.NeedsRecovery)
	return out, nil
}

// CreateRecoveryCache returns a fresh inode cache backed by load, scoped
// to the lifetime of one recovery run (spec.md §4.2, §6). A Backend's
// Inodes field is built from this before the Backend is handed to
// NewEngine.
func CreateRecoveryCache(load inode.Loader) *inode.Cache {
	return inode.NewCache(load)
}

// DestroyRecoveryCache releases a recovery cache at the end of a run. A
// non-empty cache here means some recovery phase leaked a pinned or
// dirty handle past teardown — recovery's own invariant, not a resource
// the cache itself needs to free, but worth surfacing loudly rather than
// leaking silently into the next run.
func DestroyRecoveryCache(c *inode.Cache) error {
	if n := c.Len(); n != 0 {
		return fmt.Errorf("rollforward: recovery cache still holds %d resident inode(s) at teardown", n)
	}
	return nil
}
