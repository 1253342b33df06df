/*
Copyright © 2024 John Dudmesh <john@dudmesh.co.uk>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytesOut *prometheus.CounterVec
	bytesIn  *prometheus.CounterVec
}

// NewMetrics registers the transport collectors with reg. Registering twice
// against the same registry reuses the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphlink",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Requests sent to the graph server by transport and outcome.",
		}, []string{"transport", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graphlink",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Round trip latency to the graph server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport"}),
		bytesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphlink",
			Subsystem: "client",
			Name:      "request_bytes_total",
			Help:      "Encoded request bytes sent.",
		}, []string{"transport"}),
		bytesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphlink",
			Subsystem: "client",
			Name:      "response_bytes_total",
			Help:      "Encoded response bytes received.",
		}, []string{"transport"}),
	}

	var err error
	m.requests, err = register(reg, m.requests)
	if err != nil {
		return nil, err
	}
	m.duration, err = register(reg, m.duration)
	if err != nil {
		return nil, err
	}
	m.bytesOut, err = register(reg, m.bytesOut)
	if err != nil {
		return nil, err
	}
	m.bytesIn, err = register(reg, m.bytesIn)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}

	return c, fmt.Errorf("registering collector: %w", err)
}

// Wrap returns a transport that records every round trip under name.
func (m *Metrics) Wrap(name string, next Transport) Transport {
	return &meteredTransport{name: name, next: next, metrics: m}
}

type meteredTransport struct {
	name    string
	next    Transport
	metrics *Metrics
}

func (t *meteredTransport) RoundTrip(ctx context.Context, body []byte) ([]byte, error) {
	start := time.Now()
	data, err := t.next.RoundTrip(ctx, body)

	t.metrics.duration.WithLabelValues(t.name).Observe(time.Since(start).Seconds())
	t.metrics.requests.WithLabelValues(t.name, outcome(ctx, err)).Inc()
	t.metrics.bytesOut.WithLabelValues(t.name).Add(float64(len(body)))
	t.metrics.bytesIn.WithLabelValues(t.name).Add(float64(len(data)))

	return data, err
}

func (t *meteredTransport) Close() error {
	return t.next.Close()
}
