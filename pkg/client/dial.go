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
	"fmt"

	"github.com/jdudmesh/graphlink/internal/transport/grpcjson"
	"github.com/jdudmesh/graphlink/internal/transport/httpjson"
	"github.com/jdudmesh/graphlink/internal/transport/middleware"
	"github.com/jdudmesh/graphlink/internal/transport/natsrpc"
	"github.com/jdudmesh/graphlink/internal/transport/quicstream"
	"github.com/jdudmesh/graphlink/pkg/model"
	"go.opentelemetry.io/otel"
)

const tracerName = "github.com/jdudmesh/graphlink"

// Dial opens the transport named by cfg.Transport and wraps it with the
// configured middleware. Metrics wrap the breaker so that fast failures are
// counted too.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	t, err := dialTransport(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var tr Transport = t
	if cfg.Breaker.Enabled {
		tr = middleware.Breaker(middleware.BreakerConfig{
			Name:        cfg.Transport,
			MaxFailures: cfg.Breaker.MaxFailures,
			Timeout:     cfg.Breaker.Timeout,
			Logger:      cfg.logger(),
		}, tr)
	}

	if cfg.Tracing {
		tr = middleware.Tracing(cfg.Transport, otel.Tracer(tracerName), tr)
	}

	if cfg.Metrics {
		m, err := middleware.NewMetrics(cfg.Registerer)
		if err != nil {
			tr.Close()
			return nil, fmt.Errorf("creating metrics: %w", err)
		}
		tr = m.Wrap(cfg.Transport, tr)
	}

	return New(tr, cfg), nil
}

func dialTransport(ctx context.Context, cfg Config) (Transport, error) {
	logger := cfg.logger()

	switch cfg.Transport {
	case TransportHTTP, TransportHTTP3:
		return httpjson.New(httpjson.Config{
			Address:            cfg.Address,
			Scheme:             cfg.Scheme,
			Email:              cfg.Email,
			Secret:             cfg.Secret,
			Token:              cfg.Token,
			HTTP3:              cfg.Transport == TransportHTTP3,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Logger:             logger,
		})

	case TransportGRPC:
		return grpcjson.Dial(grpcjson.Config{
			Address:            cfg.Address,
			Token:              cfg.Token,
			TLS:                cfg.Scheme != "http",
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Logger:             logger,
		})

	case TransportQUIC:
		return quicstream.Dial(ctx, quicstream.Config{
			Address:            cfg.Address,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Logger:             logger,
		})

	case TransportNATS:
		return natsrpc.Dial(natsrpc.Config{
			URL:     cfg.Address,
			Subject: cfg.NATSSubject,
			Token:   cfg.Token,
			Logger:  logger,
		})

	default:
		return nil, &model.ConstructionError{
			Field:  "transport",
			Reason: fmt.Sprintf("unknown transport %q", cfg.Transport),
		}
	}
}
