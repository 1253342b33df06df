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
	"testing"

	"github.com/google/uuid"
	"github.com/jdudmesh/graphlink/internal/transport/transporttest"
	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/jdudmesh/graphlink/pkg/query"
	"github.com/jdudmesh/graphlink/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, fn transporttest.ReplyFunc, cfg Config) (*Client, *transporttest.Server, *transporttest.Transport) {
	t.Helper()

	srv := transporttest.NewServer(fn)
	tr := transporttest.NewTransport(srv)
	c := New(tr, cfg)
	t.Cleanup(func() { c.Close() })
	return c, srv, tr
}

// replyWith answers every request with result for each op.
func replyWith(results ...wire.Result) transporttest.ReplyFunc {
	return func(req *wire.Request) *wire.Response {
		return &wire.Response{ID: req.ID, Results: results}
	}
}

func TestSimpleOperations(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c, srv, _ := newTestClient(t, nil, Config{})

	assert.NoError(c.Ping(ctx))
	assert.NoError(c.Sync(ctx))

	v, err := model.NewVertex("person")
	require.NoError(t, err)

	created, err := c.CreateVertex(ctx, v)
	assert.NoError(err)
	assert.True(created)

	id, err := c.CreateVertexFromType(ctx, "person")
	assert.NoError(err)
	assert.NotEqual(uuid.Nil, id)

	created, err = c.CreateEdge(ctx, model.NewEdgeKey(v.ID, "knows", id))
	assert.NoError(err)
	assert.True(created)

	assert.NoError(c.Delete(ctx, query.SpecificVertices(v.ID)))
	assert.NoError(c.SetProperties(ctx, query.AllVertices(), "age", model.MustJSON(42)))
	assert.NoError(c.IndexProperty(ctx, "age"))

	out, err := c.ExecutePlugin(ctx, "echo", model.MustJSON(map[string]int{"n": 1}))
	assert.NoError(err)
	assert.JSONEq(`{"n":1}`, string(out))

	reqs := srv.Requests()
	require.Len(t, reqs, 9)
	assert.Equal("ping", reqs[0].Ops[0].OpType())
	assert.Equal("create_edge", reqs[4].Ops[0].OpType())
	assert.Equal("execute_plugin", reqs[8].Ops[0].OpType())

	set := reqs[6].Ops[0].(wire.SetProperties)
	assert.Equal(model.Identifier("age"), set.Name)
	assert.Equal(query.TagAllVertex, set.Query.Node.Tag())
}

func TestGetTyped(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	v, err := model.NewVertex("person")
	require.NoError(t, err)

	outs, err := wire.NewOutputs(wire.VertexOutput{Values: []model.Vertex{v}})
	require.NoError(t, err)

	c, _, _ := newTestClient(t, replyWith(outs), Config{})

	vertices, err := c.GetVertices(ctx, query.SpecificVertices(v.ID))
	assert.NoError(err)
	assert.Equal([]model.Vertex{v}, vertices)
}

func TestGetCount(t *testing.T) {
	assert := assert.New(t)

	outs, err := wire.NewOutputs(wire.CountOutput{Value: 7})
	require.NoError(t, err)

	c, srv, _ := newTestClient(t, replyWith(outs), Config{})

	n, err := c.GetCount(context.Background(), query.AllEdges().Count())
	assert.NoError(err)
	assert.Equal(uint64(7), n)

	get := srv.Last().Ops[0].(wire.Get)
	assert.Equal(query.TagCount, get.Query.Node.Tag())
}

func TestGetWithIncludes(t *testing.T) {
	assert := assert.New(t)

	v, err := model.NewVertex("person")
	require.NoError(t, err)
	key := model.NewEdgeKey(v.ID, "knows", uuid.New())

	outs, err := wire.NewOutputs(
		wire.VertexOutput{Values: []model.Vertex{v}},
		wire.EdgeOutput{Values: []model.Edge{{Key: key}}},
	)
	require.NoError(t, err)

	c, _, _ := newTestClient(t, replyWith(outs), Config{})

	got, err := c.Get(context.Background(), query.SpecificVertices(v.ID).Include().Outbound())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(query.KindVertices, got[0].Kind())
	assert.Equal(key, got[1].(wire.EdgeOutput).Values[0].Key)

	edges, err := c.GetEdges(context.Background(), query.SpecificVertices(v.ID).Include().Outbound())
	assert.NoError(err)
	assert.Len(edges, 1)
}

func TestGetShapeMismatch(t *testing.T) {
	assert := assert.New(t)

	outs, err := wire.NewOutputs(wire.EdgeOutput{Values: []model.Edge{}})
	require.NoError(t, err)

	c, _, _ := newTestClient(t, replyWith(outs), Config{})

	_, err = c.GetVertices(context.Background(), query.AllVertices())
	var de *model.DeserializationError
	assert.True(errors.As(err, &de))
	assert.Equal(0, de.Slot)
}

func TestServerErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c, srv, _ := newTestClient(t, replyWith(wire.Failure{Code: "not_found", Message: "no such plugin"}), Config{})

	_, err := c.ExecutePlugin(ctx, "missing", nil)
	se, ok := model.IsServerError(err)
	require.True(t, ok)
	assert.Equal("not_found", se.Code)
	assert.Equal(0, se.Index)

	srv.SetReply(func(req *wire.Request) *wire.Response {
		return wire.ErrorResponse(req.ID, "unauthorized", "bad credentials")
	})

	err = c.Ping(ctx)
	se, ok = model.IsServerError(err)
	require.True(t, ok)
	assert.Equal("unauthorized", se.Code)
	assert.Equal(-1, se.Index)
}

func TestMalformedResponses(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c, srv, _ := newTestClient(t, func(req *wire.Request) *wire.Response {
		return &wire.Response{ID: "someone-else", Results: []wire.Result{wire.OK{}}}
	}, Config{})

	err := c.Ping(ctx)
	assert.True(model.IsTransportError(err))

	srv.SetReply(func(req *wire.Request) *wire.Response {
		return &wire.Response{ID: req.ID, Results: []wire.Result{wire.OK{}, wire.OK{}}}
	})
	err = c.Ping(ctx)
	assert.True(model.IsTransportError(err))

	srv.SetReply(replyWith(wire.Bool{Value: true}))
	err = c.Ping(ctx)
	assert.ErrorIs(err, model.ErrUnexpectedResult)
}

func TestTransportErrorPassesThrough(t *testing.T) {
	assert := assert.New(t)

	c, _, tr := newTestClient(t, nil, Config{})
	tr.Err = &model.TransportError{Transport: "test", Op: "dialing", Err: errors.New("refused")}

	err := c.Ping(context.Background())
	assert.True(model.IsTransportError(err))
}

func TestValidateQueries(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c, srv, _ := newTestClient(t, nil, Config{ValidateQueries: true})

	_, err := c.GetVertices(ctx, query.AllVertices().Outbound(query.Type("")).InboundVertices())
	var ce *model.ConstructionError
	assert.True(errors.As(err, &ce))

	err = c.IndexProperty(ctx, "")
	assert.True(errors.As(err, &ce))

	_, err = c.Get(ctx, nil)
	assert.True(errors.As(err, &ce))

	assert.Empty(srv.Requests())

	// without validation the server is the judge
	lax, srv2, _ := newTestClient(t, nil, Config{})
	assert.NoError(lax.IndexProperty(ctx, ""))
	assert.Len(srv2.Requests(), 1)
}

func TestClosed(t *testing.T) {
	assert := assert.New(t)

	c, srv, tr := newTestClient(t, nil, Config{})

	assert.NoError(c.Close())
	assert.NoError(c.Close())
	assert.True(tr.Closed())

	err := c.Ping(context.Background())
	assert.ErrorIs(err, model.ErrClosed)
	assert.Empty(srv.Requests())
}

func TestTransaction(t *testing.T) {
	assert := assert.New(t)

	v, err := model.NewVertex("person")
	require.NoError(t, err)

	c, srv, _ := newTestClient(t, func(req *wire.Request) *wire.Response {
		resp := transporttest.Default(req)
		resp.Results[1] = wire.Failure{Code: "conflict", Message: "edge type clash"}
		return resp
	}, Config{})

	results, err := c.NewTransaction().
		CreateVertex(v).
		CreateEdge(model.NewEdgeKey(v.ID, "knows", v.ID)).
		Get(query.AllVertices().Count()).
		ExecutePlugin("echo", model.MustJSON("x")).
		Execute(context.Background())

	require.Len(t, results, 4)
	assert.Len(srv.Requests(), 1)

	se, ok := model.IsServerError(err)
	require.True(t, ok)
	assert.Equal(1, se.Index)
	assert.Equal("conflict", se.Code)

	assert.True(results[0].Bool)
	assert.NoError(results[0].Err)
	assert.Error(results[1].Err)
	require.Len(t, results[2].Outputs, 1)
	assert.Equal(query.KindCount, results[2].Outputs[0].Kind())
	assert.JSONEq(`"x"`, string(results[3].JSON))
}

func TestTransactionEmptyAndInvalid(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c, srv, _ := newTestClient(t, nil, Config{ValidateQueries: true})

	results, err := c.NewTransaction().Execute(ctx)
	assert.NoError(err)
	assert.Empty(results)

	tx := c.NewTransaction().Ping().CreateVertexFromType("")
	assert.Equal(2, tx.Len())
	_, err = tx.Execute(ctx)
	var ce *model.ConstructionError
	assert.True(errors.As(err, &ce))

	assert.Empty(srv.Requests())
}

func TestBulkInserterMemory(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c, srv, _ := newTestClient(t, nil, Config{})
	b := c.NewBulkInserter(2, nil)

	a, err := model.NewVertex("person")
	require.NoError(t, err)
	z, err := model.NewVertex("person")
	require.NoError(t, err)

	assert.NoError(b.AddVertex(ctx, a))
	assert.Equal(1, b.Pending())
	assert.Empty(srv.Requests())

	assert.NoError(b.AddVertex(ctx, z))
	assert.Equal(0, b.Pending())
	require.Len(t, srv.Requests(), 1)

	assert.NoError(b.AddEdge(ctx, model.NewEdgeKey(a.ID, "knows", z.ID)))
	assert.NoError(b.AddVertexProperty(ctx, a.ID, "name", model.MustJSON("ann")))
	assert.NoError(b.AddEdgeProperty(ctx, model.NewEdgeKey(a.ID, "knows", z.ID), "since", model.MustJSON(2020)))
	assert.Equal(1, b.Pending())

	assert.NoError(b.Flush(ctx))
	assert.Equal(0, b.Pending())

	reqs := srv.Requests()
	require.Len(t, reqs, 3)
	bulk := reqs[1].Ops[0].(wire.BulkInsert)
	require.Len(t, bulk.Items, 2)
	assert.Equal("edge", bulk.Items[0].ItemType())
	assert.Equal("vertex_property", bulk.Items[1].ItemType())

	// nothing left to send
	assert.NoError(b.Flush(ctx))
	assert.Len(srv.Requests(), 3)
}
