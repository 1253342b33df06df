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

// Package middleware wraps a transport with metrics, tracing and a circuit
// breaker. None of the wrappers retry: a request is sent at most once.
package middleware

import (
	"context"

	"github.com/jdudmesh/graphlink/pkg/model"
)

// Transport mirrors client.Transport so that the client package can import
// this one.
type Transport interface {
	RoundTrip(ctx context.Context, body []byte) ([]byte, error)
	Close() error
}

const (
	outcomeOK        = "ok"
	outcomeTransport = "transport_error"
	outcomeCancelled = "cancelled"
)

func outcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case ctx.Err() != nil:
		return outcomeCancelled
	case model.IsTransportError(err):
		return outcomeTransport
	default:
		return "error"
	}
}
