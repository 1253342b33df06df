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
	"testing"
	"time"

	"github.com/jdudmesh/graphlink/internal/transport/transporttest"
	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/jdudmesh/graphlink/pkg/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func pingBody(t *testing.T) []byte {
	t.Helper()
	req, err := wire.NewRequest(wire.Ping{})
	require.NoError(t, err)
	body, err := wire.EncodeRequest(req)
	require.NoError(t, err)
	return body
}

// countingTransport fails with err until it has been called failFor times.
type countingTransport struct {
	calls   int
	failFor int
	err     error
	next    Transport
}

func (c *countingTransport) RoundTrip(ctx context.Context, body []byte) ([]byte, error) {
	c.calls++
	if c.calls <= c.failFor {
		return nil, c.err
	}
	return c.next.RoundTrip(ctx, body)
}

func (c *countingTransport) Close() error {
	return c.next.Close()
}

func TestMetrics(t *testing.T) {
	assert := assert.New(t)

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	// a second registration reuses the collectors
	m2, err := NewMetrics(reg)
	require.NoError(t, err)

	inner := transporttest.NewTransport(transporttest.NewServer(nil))
	tr := m.Wrap("http", inner)
	body := pingBody(t)

	_, err = tr.RoundTrip(context.Background(), body)
	assert.NoError(err)
	_, err = m2.Wrap("http", inner).RoundTrip(context.Background(), body)
	assert.NoError(err)

	inner.Err = &model.TransportError{Transport: "http", Op: "posting", Err: errors.New("refused")}
	_, err = tr.RoundTrip(context.Background(), body)
	assert.Error(err)

	assert.Equal(2.0, testutil.ToFloat64(m.requests.WithLabelValues("http", outcomeOK)))
	assert.Equal(1.0, testutil.ToFloat64(m.requests.WithLabelValues("http", outcomeTransport)))
	assert.Equal(float64(3*len(body)), testutil.ToFloat64(m.bytesOut.WithLabelValues("http")))
	assert.Equal(1, testutil.CollectAndCount(m.duration))

	assert.NoError(tr.Close())
	assert.True(inner.Closed())
}

func TestBreakerOpensOnTransportErrors(t *testing.T) {
	assert := assert.New(t)

	fail := &model.TransportError{Transport: "grpc", Op: "invoking", Err: errors.New("unavailable")}
	inner := &countingTransport{
		failFor: 2,
		err:     fail,
		next:    transporttest.NewTransport(transporttest.NewServer(nil)),
	}

	tr := Breaker(BreakerConfig{Name: "grpc", MaxFailures: 2, Timeout: 50 * time.Millisecond}, inner)
	body := pingBody(t)

	for i := 0; i < 2; i++ {
		_, err := tr.RoundTrip(context.Background(), body)
		assert.ErrorIs(err, fail)
	}

	// open: fails fast without calling the transport
	_, err := tr.RoundTrip(context.Background(), body)
	assert.True(model.IsTransportError(err))
	assert.ErrorIs(err, gobreaker.ErrOpenState)
	assert.Equal(2, inner.calls)

	// half open after the timeout, and the probe succeeds
	time.Sleep(80 * time.Millisecond)
	data, err := tr.RoundTrip(context.Background(), body)
	assert.NoError(err)
	assert.NotEmpty(data)
	assert.Equal(3, inner.calls)
}

func TestBreakerIgnoresServerErrors(t *testing.T) {
	assert := assert.New(t)

	inner := &countingTransport{
		failFor: 10,
		err:     model.NewServerError("401", "unauthorized", -1),
		next:    transporttest.NewTransport(transporttest.NewServer(nil)),
	}

	tr := Breaker(BreakerConfig{Name: "http", MaxFailures: 1}, inner)
	body := pingBody(t)

	for i := 0; i < 5; i++ {
		_, err := tr.RoundTrip(context.Background(), body)
		_, ok := model.IsServerError(err)
		assert.True(ok)
	}
	assert.Equal(5, inner.calls)
}

func TestTracing(t *testing.T) {
	assert := assert.New(t)

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	inner := transporttest.NewTransport(transporttest.NewServer(nil))
	tr := Tracing("quic", tp.Tracer("graphlink"), inner)
	body := pingBody(t)

	_, err := tr.RoundTrip(context.Background(), body)
	assert.NoError(err)

	inner.Err = &model.TransportError{Transport: "quic", Op: "opening stream", Err: errors.New("reset")}
	_, err = tr.RoundTrip(context.Background(), body)
	assert.Error(err)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(spanName, spans[0].Name())
	assert.Equal(codes.Ok, spans[0].Status().Code)
	assert.Equal(codes.Error, spans[1].Status().Code)
	assert.Len(spans[1].Events(), 1)
}
