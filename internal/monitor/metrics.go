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

// Package monitor instruments a recovery run: Prometheus counters and
// histograms, an optional OpenTelemetry trace of its phases, and a
// per-run correlation ID threaded through both.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors one recovery run reports to.
type Metrics struct {
	NodeBlocksWalked  prometheus.Counter
	FsyncInodesFound  prometheus.Counter
	CollisionsResolved prometheus.Counter
	DataIndicesRepaired prometheus.Counter
	PhaseDuration     *prometheus.HistogramVec
}

// NewMetrics registers a fresh set of collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NodeBlocksWalked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollforward",
			Name:      "node_blocks_walked_total",
			Help:      "Node blocks visited by the discovery pass.",
		}),
		FsyncInodesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollforward",
			Name:      "fsync_inodes_found_total",
			Help:      "Inodes added to the fsync-inode table during discovery.",
		}),
		CollisionsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollforward",
			Name:      "collisions_resolved_total",
			Help:      "Stale indices detached by the collision resolver.",
		}),
		DataIndicesRepaired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollforward",
			Name:      "data_indices_repaired_total",
			Help:      "Data-index slots rewritten by data repair.",
		}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rollforward",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of each recovery phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
	}
	reg.MustRegister(m.NodeBlocksWalked, m.FsyncInodesFound, m.CollisionsResolved, m.DataIndicesRepaired, m.PhaseDuration)
	return m
}
