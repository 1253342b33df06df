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
package grpcjson

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/jdudmesh/graphlink/pkg/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const transportName = "grpc"

type Config struct {
	Address            string
	Token              string
	TLS                bool
	InsecureSkipVerify bool
	Logger             *slog.Logger
	// DialOptions are appended after the defaults.
	DialOptions []grpc.DialOption
}

type Transport struct {
	conn   *grpc.ClientConn
	token  string
	logger *slog.Logger
}

// Dial prepares a connection; gRPC connects lazily on the first call.
func Dial(cfg Config) (*Transport, error) {
	if cfg.Address == "" {
		return nil, &model.ConstructionError{Field: "address", Reason: "must not be empty"}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	creds := insecure.NewCredentials()
	if cfg.TLS {
		creds = credentials.NewTLS(&tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify})
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
	}
	opts = append(opts, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating grpc client for %s: %w", cfg.Address, err)
	}

	logger.Info("grpc transport ready", "addr", cfg.Address, "tls", cfg.TLS)

	return &Transport{
		conn:   conn,
		token:  cfg.Token,
		logger: logger,
	}, nil
}

func (t *Transport) RoundTrip(ctx context.Context, body []byte) ([]byte, error) {
	if t.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+t.token)
	}

	out := &Frame{}
	err := t.conn.Invoke(ctx, ExecuteMethod, &Frame{Data: body}, out)
	if err != nil {
		return nil, mapError(err)
	}

	return out.Data, nil
}

func (t *Transport) Close() error {
	return t.conn.Close()
}

// mapError separates delivery failures from refusals by the server.
func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return &model.TransportError{Transport: transportName, Op: "invoking", Err: err}
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.Internal:
		return &model.TransportError{Transport: transportName, Op: "invoking", Err: err}
	default:
		return model.NewServerError(st.Code().String(), st.Message(), -1)
	}
}
