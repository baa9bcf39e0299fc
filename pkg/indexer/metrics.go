// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package indexer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type indexerMetrics struct {
	once sync.Once

	nodesEmbedded prometheus.Counter
	nodesFailed   prometheus.Counter
	batchesRun    prometheus.Counter
	embedDuration prometheus.Histogram
}

var metrics indexerMetrics

func (m *indexerMetrics) init() {
	m.once.Do(func() {
		m.nodesEmbedded = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ploke_indexer_nodes_embedded_total", Help: "Nodes successfully embedded and persisted",
		})
		m.nodesFailed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ploke_indexer_nodes_failed_total", Help: "Nodes whose batch failed embedding or persistence",
		})
		m.batchesRun = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ploke_indexer_batches_total", Help: "Batches processed across all runs",
		})
		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
		m.embedDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "ploke_indexer_embed_batch_seconds", Help: "Duration of one embed+persist batch", Buckets: buckets,
		})
		prometheus.MustRegister(m.nodesEmbedded, m.nodesFailed, m.batchesRun, m.embedDuration)
	})
}
