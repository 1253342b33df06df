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
package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jdudmesh/graphlink/internal/transport/transporttest"
	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialHTTP(t *testing.T) {
	assert := assert.New(t)

	fake := transporttest.NewServer(nil)
	ts := httptest.NewServer(fake)
	defer ts.Close()

	reg := prometheus.NewRegistry()
	c, err := Dial(context.Background(), Config{
		Transport:  TransportHTTP,
		Address:    strings.TrimPrefix(ts.URL, "http://"),
		Scheme:     "http",
		Token:      "t0ken",
		Metrics:    true,
		Tracing:    true,
		Registerer: reg,
		Breaker:    BreakerConfig{Enabled: true, MaxFailures: 3},
	})
	require.NoError(t, err)
	defer c.Close()

	assert.NoError(c.Ping(context.Background()))
	assert.Len(fake.Requests(), 1)
	assert.Equal("Bearer t0ken", fake.Headers()[0].Get("Authorization"))

	n, err := testutil.GatherAndCount(reg, "graphlink_client_requests_total")
	assert.NoError(err)
	assert.Equal(1, n)
}

func TestDialErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	_, err := Dial(ctx, Config{Transport: "carrier-pigeon", Address: "loft"})
	var ce *model.ConstructionError
	assert.True(errors.As(err, &ce))
	assert.Equal("transport", ce.Field)

	_, err = Dial(ctx, Config{Transport: TransportHTTP3, Address: "localhost:4433", Scheme: "http"})
	assert.True(errors.As(err, &ce))

	_, err = Dial(ctx, Config{Transport: TransportGRPC})
	assert.True(errors.As(err, &ce))

	// grpc connects lazily, so an unreachable address only fails on use
	c, err := Dial(ctx, Config{Transport: TransportGRPC, Address: "127.0.0.1:1", Scheme: "http"})
	require.NoError(t, err)
	defer c.Close()

	err = c.Ping(ctx)
	assert.True(model.IsTransportError(err))
}
