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
	"fmt"

	"github.com/google/uuid"
	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/jdudmesh/graphlink/pkg/query"
	"github.com/jdudmesh/graphlink/pkg/wire"
)

func (c *Client) Ping(ctx context.Context) error {
	res, err := c.single(ctx, wire.Ping{})
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	_, err = expect[wire.OK]("ping", res)
	return err
}

// Sync asks the server to flush persisted content to disk.
func (c *Client) Sync(ctx context.Context) error {
	res, err := c.single(ctx, wire.Sync{})
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	_, err = expect[wire.OK]("sync", res)
	return err
}

// CreateVertex reports false if a vertex with the same id already exists.
func (c *Client) CreateVertex(ctx context.Context, v model.Vertex) (bool, error) {
	err := c.checkIdentifier(v.Type)
	if err != nil {
		return false, err
	}

	res, err := c.single(ctx, wire.CreateVertex{Vertex: v})
	if err != nil {
		return false, fmt.Errorf("creating vertex: %w", err)
	}

	b, err := expect[wire.Bool]("creating vertex", res)
	return b.Value, err
}

// CreateVertexFromType creates a vertex and returns the id the server
// assigned to it.
func (c *Client) CreateVertexFromType(ctx context.Context, t model.Identifier) (uuid.UUID, error) {
	err := c.checkIdentifier(t)
	if err != nil {
		return uuid.Nil, err
	}

	res, err := c.single(ctx, wire.CreateVertexFromType{Type: t})
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating vertex: %w", err)
	}

	id, err := expect[wire.ID]("creating vertex", res)
	return id.ID, err
}

// CreateEdge reports false if either endpoint does not exist.
func (c *Client) CreateEdge(ctx context.Context, key model.EdgeKey) (bool, error) {
	err := c.checkIdentifier(key.Type)
	if err != nil {
		return false, err
	}

	res, err := c.single(ctx, wire.CreateEdge{Key: key})
	if err != nil {
		return false, fmt.Errorf("creating edge: %w", err)
	}

	b, err := expect[wire.Bool]("creating edge", res)
	return b.Value, err
}

// Get runs q and returns one output per include followed by the output of q
// itself.
func (c *Client) Get(ctx context.Context, q query.Query) ([]wire.Output, error) {
	err := c.checkQuery(q)
	if err != nil {
		return nil, err
	}

	res, err := c.single(ctx, wire.Get{Query: wire.Tree{Node: q.Node()}})
	if err != nil {
		return nil, fmt.Errorf("getting: %w", err)
	}

	return decodeGet(res, q.Node())
}

func decodeGet(res wire.Result, n query.Node) ([]wire.Output, error) {
	outs, err := expect[wire.Outputs]("getting", res)
	if err != nil {
		return nil, err
	}
	return wire.DecodeOutputs(outs.Values, query.Shape(n))
}

// last returns the output of the outermost node, typed.
func last[T wire.Output](outs []wire.Output) (T, error) {
	var zero T
	if len(outs) == 0 {
		return zero, fmt.Errorf("no outputs: %w", model.ErrUnexpectedResult)
	}
	v, ok := outs[len(outs)-1].(T)
	if !ok {
		return zero, fmt.Errorf("got %s output: %w", outs[len(outs)-1].Kind(), model.ErrUnexpectedResult)
	}
	return v, nil
}

func (c *Client) GetVertices(ctx context.Context, q query.Query) ([]model.Vertex, error) {
	outs, err := c.Get(ctx, q)
	if err != nil {
		return nil, err
	}
	v, err := last[wire.VertexOutput](outs)
	return v.Values, err
}

func (c *Client) GetEdges(ctx context.Context, q query.Query) ([]model.Edge, error) {
	outs, err := c.Get(ctx, q)
	if err != nil {
		return nil, err
	}
	v, err := last[wire.EdgeOutput](outs)
	return v.Values, err
}

func (c *Client) GetCount(ctx context.Context, q query.CountQuery) (uint64, error) {
	outs, err := c.Get(ctx, q)
	if err != nil {
		return 0, err
	}
	v, err := last[wire.CountOutput](outs)
	return v.Value, err
}

func (c *Client) GetVertexProperties(ctx context.Context, q query.PropertyQuery) ([]model.VertexProperties, error) {
	outs, err := c.Get(ctx, q)
	if err != nil {
		return nil, err
	}
	v, err := last[wire.VertexPropertiesOutput](outs)
	return v.Values, err
}

func (c *Client) GetEdgeProperties(ctx context.Context, q query.PropertyQuery) ([]model.EdgeProperties, error) {
	outs, err := c.Get(ctx, q)
	if err != nil {
		return nil, err
	}
	v, err := last[wire.EdgePropertiesOutput](outs)
	return v.Values, err
}

// Delete removes whatever q matches: vertices (with their edges), edges or
// properties.
func (c *Client) Delete(ctx context.Context, q query.Query) error {
	err := c.checkQuery(q)
	if err != nil {
		return err
	}

	res, err := c.single(ctx, wire.Delete{Query: wire.Tree{Node: q.Node()}})
	if err != nil {
		return fmt.Errorf("deleting: %w", err)
	}
	_, err = expect[wire.OK]("deleting", res)
	return err
}

// SetProperties sets the named property on every vertex or edge q matches.
func (c *Client) SetProperties(ctx context.Context, q query.Query, name model.Identifier, value json.RawMessage) error {
	err := c.checkQuery(q)
	if err != nil {
		return err
	}
	err = c.checkIdentifier(name)
	if err != nil {
		return err
	}

	res, err := c.single(ctx, wire.SetProperties{Query: wire.Tree{Node: q.Node()}, Name: name, Value: value})
	if err != nil {
		return fmt.Errorf("setting properties: %w", err)
	}
	_, err = expect[wire.OK]("setting properties", res)
	return err
}

// IndexProperty asks the server to index a property so that the
// with-property seeds and filters can use it.
func (c *Client) IndexProperty(ctx context.Context, name model.Identifier) error {
	err := c.checkIdentifier(name)
	if err != nil {
		return err
	}

	res, err := c.single(ctx, wire.IndexProperty{Name: name})
	if err != nil {
		return fmt.Errorf("indexing property: %w", err)
	}
	_, err = expect[wire.OK]("indexing property", res)
	return err
}

// BulkInsert inserts items without the usual existence checks.
func (c *Client) BulkInsert(ctx context.Context, items ...wire.BulkItem) error {
	if len(items) == 0 {
		return nil
	}

	res, err := c.single(ctx, wire.BulkInsert{Items: items})
	if err != nil {
		return fmt.Errorf("bulk inserting: %w", err)
	}
	_, err = expect[wire.OK]("bulk inserting", res)
	return err
}

// ExecutePlugin runs a server-side plugin with an arbitrary JSON argument.
func (c *Client) ExecutePlugin(ctx context.Context, name string, arg json.RawMessage) (json.RawMessage, error) {
	if name == "" {
		return nil, &model.ConstructionError{Field: "plugin name", Reason: "must not be empty"}
	}

	res, err := c.single(ctx, wire.ExecutePlugin{Name: name, Arg: arg})
	if err != nil {
		return nil, fmt.Errorf("executing plugin %s: %w", name, err)
	}

	v, err := expect[wire.JSON]("executing plugin", res)
	return v.Value, err
}

func (c *Client) checkQuery(q query.Query) error {
	if q == nil || q.Node() == nil {
		return &model.ConstructionError{Field: "query", Reason: "missing"}
	}
	if !c.validate {
		return nil
	}
	return query.Validate(q.Node())
}

func (c *Client) checkIdentifier(id model.Identifier) error {
	if !c.validate {
		return nil
	}
	return id.Validate()
}
