// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package xhci

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "xhci"

// Metrics counts bring-up outcomes and observes how long the controller
// took for each bounded wait. A nil *Metrics records nothing.
type Metrics struct {
	bringUps *prometheus.CounterVec
	waits    *prometheus.HistogramVec
}

// NewMetrics registers the bring-up collectors with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		bringUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bringups_total",
			Help:      "Controller bring-ups by the state they ended in.",
		}, []string{"state"}),
		waits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "wait_duration_seconds",
			Help:      "Time spent polling for firmware handoff, halt and reset completion.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"phase", "result"}),
	}
	for _, c := range []prometheus.Collector{m.bringUps, m.waits} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeBringUp(state State) {
	if m == nil {
		return
	}
	m.bringUps.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) observeWait(phase string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "done"
	switch {
	case errors.Is(err, context.Canceled):
		result = "cancelled"
	case err != nil:
		result = "timeout"
	}
	m.waits.WithLabelValues(phase, result).Observe(elapsed.Seconds())
}
