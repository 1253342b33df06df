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

// Package client talks to a graph server. It encodes operations with package
// wire, hands the bytes to a Transport and turns the reply into typed values.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/jdudmesh/graphlink/pkg/wire"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	TransportHTTP  = "http"
	TransportHTTP3 = "http3"
	TransportGRPC  = "grpc"
	TransportQUIC  = "quic"
	TransportNATS  = "nats"
)

const defaultRequestTimeout = 30 * time.Second

// Transport moves one encoded request to the server and returns the encoded
// response. Failures to deliver are *model.TransportError; a server that
// rejects the request outright may be reported as *model.ServerError.
type Transport interface {
	RoundTrip(ctx context.Context, req []byte) ([]byte, error)
	Close() error
}

type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures uint32        `mapstructure:"max_failures" validate:"required_if=Enabled true"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

type SpoolConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
	BatchSize   int    `mapstructure:"batch_size" validate:"gte=0"`
}

type Config struct {
	Transport          string        `mapstructure:"transport" validate:"required,oneof=http http3 grpc quic nats"`
	Address            string        `mapstructure:"address" validate:"required"`
	Scheme             string        `mapstructure:"scheme" validate:"omitempty,oneof=http https"`
	Email              string        `mapstructure:"email" validate:"omitempty,email"`
	Secret             string        `mapstructure:"secret" validate:"required_with=Email"`
	Token              string        `mapstructure:"token" validate:"excluded_with=Email"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	NATSSubject        string        `mapstructure:"nats_subject"`
	ValidateQueries    bool          `mapstructure:"validate_queries"`
	Metrics            bool          `mapstructure:"metrics"`
	Tracing            bool          `mapstructure:"tracing"`
	Breaker            BreakerConfig `mapstructure:"breaker"`
	Spool              SpoolConfig   `mapstructure:"spool"`
	LogLevel           string        `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	Logger     *slog.Logger          `mapstructure:"-" validate:"-"`
	Registerer prometheus.Registerer `mapstructure:"-" validate:"-"`
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeout > 0 {
		return c.RequestTimeout
	}
	return defaultRequestTimeout
}

// Client is safe for concurrent use.
type Client struct {
	transport Transport
	name      string
	logger    *slog.Logger
	timeout   time.Duration
	validate  bool
	closed    atomic.Bool
}

// New wraps an already established transport.
func New(t Transport, cfg Config) *Client {
	name := cfg.Transport
	if name == "" {
		name = "custom"
	}
	return &Client{
		transport: t,
		name:      name,
		logger:    cfg.logger(),
		timeout:   cfg.requestTimeout(),
		validate:  cfg.ValidateQueries,
	}
}

func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.logger.Info("closing client", "transport", c.name)
	return c.transport.Close()
}

// execute sends ops as one request. A whole-request failure is returned as
// an error; per-op failures are left in the results for the caller.
func (c *Client) execute(ctx context.Context, ops []wire.Op) ([]wire.Result, error) {
	if c.closed.Load() {
		return nil, model.ErrClosed
	}

	req, err := wire.NewRequest(ops...)
	if err != nil {
		return nil, err
	}

	body, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	ctx, cancelFn := context.WithTimeout(ctx, c.timeout)
	defer cancelFn()

	c.logger.Debug("sending request", "id", req.ID, "ops", len(ops), "transport", c.name)

	raw, err := c.transport.RoundTrip(ctx, body)
	if err != nil {
		return nil, err
	}

	resp, err := wire.DecodeResponse(raw)
	if err != nil {
		return nil, &model.TransportError{Transport: c.name, Op: "decoding response", Err: err}
	}

	err = resp.Err()
	if err != nil {
		return nil, err
	}

	if resp.ID != req.ID {
		return nil, &model.TransportError{
			Transport: c.name,
			Op:        "decoding response",
			Err:       fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID),
		}
	}

	if len(resp.Results) != len(ops) {
		return nil, &model.TransportError{
			Transport: c.name,
			Op:        "decoding response",
			Err:       fmt.Errorf("%d results for %d ops", len(resp.Results), len(ops)),
		}
	}

	return resp.Results, nil
}

// single runs one op and returns its result, turning a per-op failure into
// a ServerError.
func (c *Client) single(ctx context.Context, op wire.Op) (wire.Result, error) {
	results, err := c.execute(ctx, []wire.Op{op})
	if err != nil {
		return nil, err
	}

	if f, ok := results[0].(wire.Failure); ok {
		return nil, model.NewServerError(f.Code, f.Message, 0)
	}

	return results[0], nil
}

func expect[T wire.Result](op string, res wire.Result) (T, error) {
	v, ok := res.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: got %s result: %w", op, res.ResultType(), model.ErrUnexpectedResult)
	}
	return v, nil
}
