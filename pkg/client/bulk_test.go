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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/jdudmesh/graphlink/pkg/spool"
	"github.com/jdudmesh/graphlink/internal/transport/transporttest"
	"github.com/jdudmesh/graphlink/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSpool(t *testing.T, name string) *spool.Store {
	t.Helper()

	sp, err := spool.Open(context.Background(), "sqlite3://file:"+name+"?mode=memory&cache=shared", nil)
	require.NoError(t, err)
	t.Cleanup(func() { sp.Close() })
	return sp
}

func TestBulkInserterSpool(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sp := openSpool(t, "bulk_spool")
	c, srv, tr := newTestClient(t, nil, Config{})
	b := c.NewBulkInserter(10, sp)

	ids := []string{}
	for i := 0; i < 3; i++ {
		v, err := model.NewVertex("item")
		require.NoError(t, err)
		require.NoError(t, b.AddVertex(ctx, v))
		ids = append(ids, v.ID.String())
	}

	// the server is down: nothing is lost
	tr.Err = &model.TransportError{Transport: "test", Op: "posting", Err: errors.New("refused")}
	err := b.Flush(ctx)
	assert.True(model.IsTransportError(err))
	assert.Equal(3, b.Pending())

	n, err := sp.Count(ctx)
	require.NoError(t, err)
	assert.Equal(3, n)

	tr.Err = nil
	assert.NoError(b.Flush(ctx))
	assert.Equal(0, b.Pending())

	n, err = sp.Count(ctx)
	require.NoError(t, err)
	assert.Equal(0, n)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	bulk := reqs[0].Ops[0].(wire.BulkInsert)
	require.Len(t, bulk.Items, 3)
	for i, item := range bulk.Items {
		assert.Equal(ids[i], item.(wire.VertexItem).Vertex.ID.String())
	}
}

func TestBulkInserterResumesFromSpool(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sp := openSpool(t, "bulk_resume")

	// items left behind by an earlier run
	for i := 0; i < 5; i++ {
		v, err := model.NewVertex("item")
		require.NoError(t, err)
		payload, err := wire.EncodeBulkItem(wire.VertexItem{Vertex: v})
		require.NoError(t, err)
		_, err = sp.Push(ctx, "vertex", payload)
		require.NoError(t, err)
	}

	c, srv, _ := newTestClient(t, nil, Config{})
	b := c.NewBulkInserter(2, sp)

	assert.NoError(b.Flush(ctx))

	// batches of two: 2 + 2 + 1
	reqs := srv.Requests()
	require.Len(t, reqs, 3)
	assert.Len(reqs[2].Ops[0].(wire.BulkInsert).Items, 1)

	n, err := sp.Count(ctx)
	assert.NoError(err)
	assert.Equal(0, n)
}

// memorySpool keeps items in a slice, the way a caller with its own storage
// would implement Spool.
type memorySpool struct {
	mu      sync.Mutex
	items   []spool.Item
	flushed map[string]bool
}

func (m *memorySpool) Push(ctx context.Context, kind string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq := int64(len(m.items) + 1)
	id := fmt.Sprintf("item-%d", seq)
	m.items = append(m.items, spool.Item{Seq: seq, ID: id, Kind: kind, Payload: payload, CreatedAt: time.Now()})
	return id, nil
}

func (m *memorySpool) Pending(ctx context.Context, limit int) ([]spool.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []spool.Item{}
	for _, item := range m.items {
		if len(out) == limit {
			break
		}
		if !m.flushed[item.ID] {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memorySpool) MarkFlushed(ctx context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.flushed == nil {
		m.flushed = map[string]bool{}
	}
	for _, id := range ids {
		m.flushed[id] = true
	}
	return nil
}

func TestBulkInserterCustomSpool(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sp := &memorySpool{}
	c, srv, _ := newTestClient(t, nil, Config{})
	b := c.NewBulkInserter(2, sp)

	for i := 0; i < 3; i++ {
		v, err := model.NewVertex("item")
		require.NoError(t, err)
		require.NoError(t, b.AddVertex(ctx, v))
	}
	assert.Equal(1, b.Pending())
	require.Len(t, srv.Requests(), 1)

	assert.NoError(b.Flush(ctx))
	assert.Equal(0, b.Pending())

	reqs := srv.Requests()
	require.Len(t, reqs, 2)
	assert.Len(reqs[0].Ops[0].(wire.BulkInsert).Items, 2)
	assert.Len(reqs[1].Ops[0].(wire.BulkInsert).Items, 1)

	pending, err := sp.Pending(ctx, 10)
	assert.NoError(err)
	assert.Empty(pending)
	assert.Len(sp.flushed, 3)
}

func TestBulkInserterPartialFlush(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	// the first and third batches are rejected
	var mu sync.Mutex
	calls := 0
	reply := func(req *wire.Request) *wire.Response {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 || calls == 3 {
			return &wire.Response{ID: req.ID, Results: []wire.Result{wire.Failure{Code: "unavailable", Message: "busy"}}}
		}
		return transporttest.Default(req)
	}

	c, srv, _ := newTestClient(t, reply, Config{})
	b := c.NewBulkInserter(2, nil)

	ids := []string{}
	add := func() error {
		v, err := model.NewVertex("item")
		require.NoError(t, err)
		ids = append(ids, v.ID.String())
		return b.AddVertex(ctx, v)
	}

	assert.NoError(add())
	err := add()
	assert.ErrorIs(err, ErrNotFlushed)
	assert.Equal(2, b.Pending())

	// the first two go through, the third is still queued
	err = add()
	assert.ErrorIs(err, ErrNotFlushed)
	assert.Equal(1, b.Pending())

	assert.NoError(b.Flush(ctx))
	assert.Equal(0, b.Pending())

	reqs := srv.Requests()
	require.Len(t, reqs, 4)
	sent := reqs[1].Ops[0].(wire.BulkInsert).Items
	require.Len(t, sent, 2)
	assert.Equal(ids[0], sent[0].(wire.VertexItem).Vertex.ID.String())
	assert.Equal(ids[1], sent[1].(wire.VertexItem).Vertex.ID.String())
	last := reqs[3].Ops[0].(wire.BulkInsert).Items
	require.Len(t, last, 1)
	assert.Equal(ids[2], last[0].(wire.VertexItem).Vertex.ID.String())
}

func TestBulkInserterAutoFlushFailureKeepsItem(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sp := openSpool(t, "bulk_not_flushed")
	c, srv, tr := newTestClient(t, nil, Config{})
	b := c.NewBulkInserter(1, sp)

	v, err := model.NewVertex("item")
	require.NoError(t, err)

	tr.Err = &model.TransportError{Transport: "test", Op: "posting", Err: errors.New("refused")}
	err = b.AddVertex(ctx, v)
	assert.ErrorIs(err, ErrNotFlushed)
	assert.True(model.IsTransportError(err))

	n, err := sp.Count(ctx)
	require.NoError(t, err)
	assert.Equal(1, n)

	tr.Err = nil
	assert.NoError(b.Flush(ctx))

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	items := reqs[0].Ops[0].(wire.BulkInsert).Items
	require.Len(t, items, 1)
	assert.Equal(v.ID.String(), items[0].(wire.VertexItem).Vertex.ID.String())
}
