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

// Package quicstream sends each request on its own QUIC stream over a shared
// connection. The client writes the request and closes its side of the
// stream; the server replies and closes its side.
package quicstream

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/quic-go/quic-go"
)

const (
	NextProto     = "graphlink"
	transportName = "quic"

	maxMessageSize = 64 << 20
	dialTimeout    = 10 * time.Second
)

const (
	stateNotConnected int32 = 0
	stateConnecting   int32 = 1
	stateConnected    int32 = 2
	stateClosed       int32 = 3
)

var ErrTransportClosed = errors.New("transport closed")

type Config struct {
	Address            string
	InsecureSkipVerify bool
	// TLSConfig replaces the default client TLS settings, for example to
	// present a client certificate.
	TLSConfig *tls.Config
	Logger    *slog.Logger
}

type Transport struct {
	addr     string
	tlsConf  *tls.Config
	quicConf *quic.Config
	logger   *slog.Logger
	state    atomic.Int32
	mu       sync.Mutex
	conn     quic.Connection
}

// Dial connects to the server. The connection is re-established on demand
// if it is later lost.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.Address == "" {
		return nil, &model.ConstructionError{Field: "address", Reason: "must not be empty"}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tlsConf := cfg.TLSConfig
	if tlsConf == nil {
		tlsConf = &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			NextProtos:         []string{NextProto},
		}
	}

	t := &Transport{
		addr:     cfg.Address,
		tlsConf:  tlsConf,
		quicConf: &quic.Config{KeepAlivePeriod: 15 * time.Second},
		logger:   logger,
	}

	_, err := t.connection(ctx)
	if err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Transport) connection(ctx context.Context) (quic.Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Load() == stateClosed {
		return nil, &model.TransportError{Transport: transportName, Op: "connecting", Err: ErrTransportClosed}
	}

	if t.conn != nil && t.conn.Context().Err() == nil {
		return t.conn, nil
	}

	t.state.Store(stateConnecting)

	ctx, cancelFn := context.WithTimeout(ctx, dialTimeout)
	defer cancelFn()

	conn, err := quic.DialAddr(ctx, t.addr, t.tlsConf, t.quicConf)
	if err != nil {
		t.state.Store(stateNotConnected)
		return nil, &model.TransportError{Transport: transportName, Op: "connecting", Err: err}
	}

	t.logger.Info("connected", "addr", t.addr, "transport", transportName)

	t.conn = conn
	t.state.Store(stateConnected)
	return conn, nil
}

func (t *Transport) RoundTrip(ctx context.Context, body []byte) ([]byte, error) {
	conn, err := t.connection(ctx)
	if err != nil {
		return nil, err
	}

	stm, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, t.fail("opening stream", err)
	}

	stop := context.AfterFunc(ctx, func() {
		stm.CancelRead(0)
		stm.CancelWrite(0)
	})
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		stm.SetDeadline(deadline)
	}

	_, err = stm.Write(body)
	if err != nil {
		return nil, t.fail("writing request", err)
	}

	err = stm.Close()
	if err != nil {
		return nil, t.fail("closing request", err)
	}

	data, err := io.ReadAll(io.LimitReader(stm, maxMessageSize))
	if err != nil {
		return nil, t.fail("reading response", err)
	}

	return data, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Swap(stateClosed) == stateClosed {
		return nil
	}

	if t.conn == nil {
		return nil
	}

	t.logger.Info("disconnecting", "addr", t.addr, "transport", transportName)
	return t.conn.CloseWithError(0, "")
}

func (t *Transport) fail(op string, err error) error {
	return &model.TransportError{Transport: transportName, Op: op, Err: err}
}
