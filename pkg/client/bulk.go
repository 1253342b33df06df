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
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/jdudmesh/graphlink/pkg/spool"
	"github.com/jdudmesh/graphlink/pkg/wire"
)

const DefaultBatchSize = 1000

// ErrNotFlushed is returned by the Add methods when the item was queued but
// the flush it triggered failed. The item stays queued and must not be added
// again; a later Flush retries it.
var ErrNotFlushed = errors.New("queued but not sent")

// Spool persists bulk items until the server has accepted them. *spool.Store
// implements it.
type Spool interface {
	Push(ctx context.Context, kind string, payload []byte) (string, error)
	Pending(ctx context.Context, limit int) ([]spool.Item, error)
	MarkFlushed(ctx context.Context, ids ...string) error
}

// BulkInserter buffers items and sends them in batches. With a spool, items
// are written through to it and survive a crash; Flush then also sends
// anything left over from an earlier run.
type BulkInserter struct {
	client    *Client
	batchSize int
	spool     Spool
	mu        sync.Mutex
	items     []wire.BulkItem
	queued    int
}

// NewBulkInserter returns an inserter flushing every batchSize items. sp may
// be nil.
func (c *Client) NewBulkInserter(batchSize int, sp Spool) *BulkInserter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BulkInserter{
		client:    c,
		batchSize: batchSize,
		spool:     sp,
	}
}

// AddVertex queues v and sends the batch once it is full. A failed send is
// reported as ErrNotFlushed with v still queued.
func (b *BulkInserter) AddVertex(ctx context.Context, v model.Vertex) error {
	return b.add(ctx, wire.VertexItem{Vertex: v})
}

func (b *BulkInserter) AddEdge(ctx context.Context, key model.EdgeKey) error {
	return b.add(ctx, wire.EdgeItem{Key: key})
}

func (b *BulkInserter) AddVertexProperty(ctx context.Context, id uuid.UUID, name model.Identifier, value json.RawMessage) error {
	return b.add(ctx, wire.VertexPropertyItem{ID: id, Name: name, Value: value})
}

func (b *BulkInserter) AddEdgeProperty(ctx context.Context, key model.EdgeKey, name model.Identifier, value json.RawMessage) error {
	return b.add(ctx, wire.EdgePropertyItem{Key: key, Name: name, Value: value})
}

func (b *BulkInserter) add(ctx context.Context, item wire.BulkItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.spool != nil {
		payload, err := wire.EncodeBulkItem(item)
		if err != nil {
			return fmt.Errorf("encoding bulk item: %w", err)
		}
		_, err = b.spool.Push(ctx, item.ItemType(), payload)
		if err != nil {
			return fmt.Errorf("spooling bulk item: %w", err)
		}
	} else {
		b.items = append(b.items, item)
	}

	b.queued++
	if b.queued >= b.batchSize {
		err := b.flush(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNotFlushed, err)
		}
	}
	return nil
}

func (b *BulkInserter) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flush(ctx)
}

func (b *BulkInserter) flush(ctx context.Context) error {
	if b.spool != nil {
		return b.flushSpool(ctx)
	}

	for len(b.items) > 0 {
		n := min(len(b.items), b.batchSize)
		err := b.client.BulkInsert(ctx, b.items[:n]...)
		if err != nil {
			return err
		}
		b.items = b.items[n:]
		b.queued = len(b.items)
	}
	b.items = nil
	b.queued = 0
	return nil
}

func (b *BulkInserter) flushSpool(ctx context.Context) error {
	for {
		pending, err := b.spool.Pending(ctx, b.batchSize)
		if err != nil {
			return fmt.Errorf("reading spool: %w", err)
		}
		if len(pending) == 0 {
			b.queued = 0
			return nil
		}

		items := make([]wire.BulkItem, 0, len(pending))
		ids := make([]string, 0, len(pending))
		for _, p := range pending {
			item, err := wire.DecodeBulkItem(p.Payload)
			if err != nil {
				return fmt.Errorf("decoding spooled item %s: %w", p.ID, err)
			}
			items = append(items, item)
			ids = append(ids, p.ID)
		}

		err = b.client.BulkInsert(ctx, items...)
		if err != nil {
			return err
		}

		err = b.spool.MarkFlushed(ctx, ids...)
		if err != nil {
			return fmt.Errorf("marking spool flushed: %w", err)
		}
		b.queued = max(b.queued-len(ids), 0)

		b.client.logger.Debug("flushed spooled items", "count", len(ids))
	}
}

// Pending is the number of items added since the last successful flush.
func (b *BulkInserter) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queued
}
