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
	"net"
	"testing"

	"github.com/jdudmesh/graphlink/internal/transport/transporttest"
	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/jdudmesh/graphlink/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func setupServer(t *testing.T, srv Server, opts ...grpc.ServerOption) *bufconn.Listener {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	s := grpc.NewServer(append([]grpc.ServerOption{grpc.ForceServerCodec(Codec{})}, opts...)...)
	RegisterServer(s, srv)

	go func() {
		err := s.Serve(lis)
		if err != nil && err != grpc.ErrServerStopped {
			t.Logf("server error: %v", err)
		}
	}()

	t.Cleanup(func() {
		s.Stop()
		lis.Close()
	})

	return lis
}

func dialBuf(t *testing.T, lis *bufconn.Listener, token string) *Transport {
	t.Helper()

	tr, err := Dial(Config{
		Address: "passthrough:///bufnet",
		Token:   token,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, s string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestRoundTrip(t *testing.T) {
	assert := assert.New(t)

	fake := transporttest.NewServer(nil)
	lis := setupServer(t, ServerFunc(func(ctx context.Context, req []byte) ([]byte, error) {
		return fake.Serve(req)
	}))
	tr := dialBuf(t, lis, "")

	req, err := wire.NewRequest(wire.Ping{}, wire.CreateVertexFromType{Type: "person"})
	require.NoError(t, err)
	body, err := wire.EncodeRequest(req)
	require.NoError(t, err)

	data, err := tr.RoundTrip(context.Background(), body)
	require.NoError(t, err)

	resp, err := wire.DecodeResponse(data)
	require.NoError(t, err)
	assert.Equal(req.ID, resp.ID)
	require.Len(t, resp.Results, 2)
	_, ok := resp.Results[1].(wire.ID)
	assert.True(ok)

	assert.Equal(req.ID, fake.Last().ID)
}

func TestBearerToken(t *testing.T) {
	assert := assert.New(t)

	auth := func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		if v := md.Get("authorization"); len(v) == 0 || v[0] != "Bearer secret" {
			return nil, status.Error(codes.Unauthenticated, "bad token")
		}
		return handler(ctx, req)
	}

	fake := transporttest.NewServer(nil)
	lis := setupServer(t, ServerFunc(func(ctx context.Context, req []byte) ([]byte, error) {
		return fake.Serve(req)
	}), grpc.UnaryInterceptor(auth))

	body, err := wire.EncodeRequest(&wire.Request{ID: "1", Ops: []wire.Op{wire.Ping{}}})
	require.NoError(t, err)

	_, err = dialBuf(t, lis, "secret").RoundTrip(context.Background(), body)
	assert.NoError(err)

	_, err = dialBuf(t, lis, "wrong").RoundTrip(context.Background(), body)
	se, ok := model.IsServerError(err)
	require.True(t, ok)
	assert.Equal("Unauthenticated", se.Code)
	assert.Equal("bad token", se.Message)
}

func TestUnavailable(t *testing.T) {
	assert := assert.New(t)

	lis := bufconn.Listen(bufSize)
	lis.Close()

	tr := dialBuf(t, lis, "")
	ctx, cancelFn := context.WithCancel(context.Background())
	cancelFn()

	_, err := tr.RoundTrip(ctx, []byte(`{"id":"1","ops":[]}`))
	assert.True(model.IsTransportError(err))
}

func TestCodec(t *testing.T) {
	assert := assert.New(t)

	c := Codec{}
	data, err := c.Marshal(&Frame{Data: []byte("abc")})
	assert.NoError(err)
	assert.Equal("abc", string(data))

	f := &Frame{}
	assert.NoError(c.Unmarshal(data, f))
	assert.Equal("abc", string(f.Data))

	_, err = c.Marshal("abc")
	assert.Error(err)
	assert.Error(c.Unmarshal(data, &struct{}{}))
	assert.Equal("json", c.Name())
}
