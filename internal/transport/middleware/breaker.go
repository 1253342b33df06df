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
	"log/slog"
	"time"

	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/sony/gobreaker"
)

const (
	defaultMaxFailures    = 5
	defaultBreakerTimeout = 30 * time.Second
)

type BreakerConfig struct {
	Name string
	// MaxFailures is the number of consecutive transport failures that opens
	// the breaker.
	MaxFailures uint32
	// Timeout is how long the breaker stays open before letting a probe
	// request through.
	Timeout time.Duration
	Logger  *slog.Logger
}

type breakerTransport struct {
	name string
	next Transport
	cb   *gobreaker.CircuitBreaker
}

// Breaker fails fast with a TransportError while the server is unreachable.
// Only transport failures count against the breaker; a server that answers
// with an error is healthy.
func Breaker(cfg BreakerConfig, next Transport) Transport {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "transport", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !model.IsTransportError(err) || errors.Is(err, context.Canceled)
		},
	}

	return &breakerTransport{
		name: cfg.Name,
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

func (t *breakerTransport) RoundTrip(ctx context.Context, body []byte) ([]byte, error) {
	res, err := t.cb.Execute(func() (interface{}, error) {
		return t.next.RoundTrip(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &model.TransportError{Transport: t.name, Op: "circuit breaker", Err: err}
		}
		return nil, err
	}

	data, _ := res.([]byte)
	return data, nil
}

func (t *breakerTransport) Close() error {
	return t.next.Close()
}
