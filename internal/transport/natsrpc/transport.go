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

// Package natsrpc sends encoded requests to a graph server listening on a
// NATS subject and waits for the reply.
package natsrpc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/nats-io/nats.go"
)

const (
	DefaultSubject = "graphlink.transaction"
	transportName  = "nats"
)

type Config struct {
	URL     string
	Subject string
	Token   string
	Logger  *slog.Logger
}

type Transport struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

func Dial(cfg Config) (*Transport, error) {
	if cfg.URL == "" {
		return nil, &model.ConstructionError{Field: "address", Reason: "must not be empty"}
	}

	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{
		nats.Name("graphlink"),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, &model.TransportError{Transport: transportName, Op: "connecting", Err: err}
	}

	logger.Info("nats transport ready", "url", nc.ConnectedUrl(), "subject", subject)

	return &Transport{
		nc:      nc,
		subject: subject,
		logger:  logger,
	}, nil
}

func (t *Transport) RoundTrip(ctx context.Context, body []byte) ([]byte, error) {
	msg, err := t.nc.RequestWithContext(ctx, t.subject, body)
	if err != nil {
		return nil, &model.TransportError{
			Transport: transportName,
			Op:        fmt.Sprintf("requesting on %s", t.subject),
			Err:       err,
		}
	}
	return msg.Data, nil
}

// Close drains the connection. If draining fails the connection is closed
// outright and the drain error returned.
func (t *Transport) Close() error {
	err := t.nc.Drain()
	if err != nil {
		t.nc.Close()
		return &model.TransportError{Transport: transportName, Op: "draining connection", Err: err}
	}
	return nil
}
