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
package natsrpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jdudmesh/graphlink/internal/transport/transporttest"
	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/jdudmesh/graphlink/pkg/wire"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startNATS(t *testing.T, token string) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:          "127.0.0.1",
		Port:          -1,
		NoLog:         true,
		NoSigs:        true,
		Authorization: token,
	}

	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server failed to start")
	}

	t.Cleanup(ns.Shutdown)
	return ns
}

// serve answers requests on subject the way a graph server would.
func serve(t *testing.T, url, token, subject string, fake *transporttest.Server) {
	t.Helper()

	nc, err := nats.Connect(url, nats.Token(token))
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	_, err = nc.Subscribe(subject, func(msg *nats.Msg) {
		resp, err := fake.Serve(msg.Data)
		if err != nil {
			return
		}
		msg.Respond(resp)
	})
	require.NoError(t, err)
	require.NoError(t, nc.Flush())
}

func TestRoundTrip(t *testing.T) {
	assert := assert.New(t)

	ns := startNATS(t, "s3cret")
	fake := transporttest.NewServer(nil)
	serve(t, ns.ClientURL(), "s3cret", DefaultSubject, fake)

	tr, err := Dial(Config{URL: ns.ClientURL(), Token: "s3cret"})
	require.NoError(t, err)
	defer tr.Close()

	req, err := wire.NewRequest(wire.Ping{}, wire.ExecutePlugin{Name: "echo", Arg: model.MustJSON("hi")})
	require.NoError(t, err)
	body, err := wire.EncodeRequest(req)
	require.NoError(t, err)

	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()

	data, err := tr.RoundTrip(ctx, body)
	require.NoError(t, err)

	resp, err := wire.DecodeResponse(data)
	require.NoError(t, err)
	assert.Equal(req.ID, resp.ID)
	require.Len(t, resp.Results, 2)
	assert.JSONEq(`"hi"`, string(resp.Results[1].(wire.JSON).Value))
}

func TestNoResponders(t *testing.T) {
	assert := assert.New(t)

	ns := startNATS(t, "")

	tr, err := Dial(Config{URL: ns.ClientURL(), Subject: "nobody.home"})
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFn()

	_, err = tr.RoundTrip(ctx, []byte(`{"id":"1","ops":[]}`))
	assert.True(model.IsTransportError(err))
	assert.True(errors.Is(err, nats.ErrNoResponders))
}

func TestBadToken(t *testing.T) {
	assert := assert.New(t)

	ns := startNATS(t, "right")

	_, err := Dial(Config{URL: ns.ClientURL(), Token: "wrong"})
	assert.True(model.IsTransportError(err))

	_, err = Dial(Config{})
	assert.Error(err)
}

func TestCloseReportsDrainError(t *testing.T) {
	assert := assert.New(t)

	ns := startNATS(t, "")

	tr, err := Dial(Config{URL: ns.ClientURL()})
	require.NoError(t, err)

	assert.NoError(tr.Close())
	assert.Eventually(tr.nc.IsClosed, 5*time.Second, 10*time.Millisecond)

	err = tr.Close()
	assert.True(model.IsTransportError(err))
	assert.ErrorIs(err, nats.ErrConnectionClosed)
}
