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
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jdudmesh/graphlink/pkg/model"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Request is one round trip: a batch of operations executed in order.
type Request struct {
	ID  string `json:"id"`
	Ops []Op   `json:"ops"`
}

func NewRequest(ops ...Op) (*Request, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generating request id: %w", err)
	}
	return &Request{ID: id, Ops: ops}, nil
}

type Op interface {
	OpType() string
}

type Ping struct{}

// Sync asks the server to flush persisted content.
type Sync struct{}

type CreateVertex struct {
	Vertex model.Vertex `json:"vertex"`
}

// CreateVertexFromType lets the server choose the vertex id.
type CreateVertexFromType struct {
	Type model.Identifier `json:"t"`
}

type CreateEdge struct {
	Key model.EdgeKey `json:"key"`
}

type Get struct {
	Query Tree `json:"query"`
}

type Delete struct {
	Query Tree `json:"query"`
}

// SetProperties sets a property on every entity matched by Query.
type SetProperties struct {
	Query Tree             `json:"query"`
	Name  model.Identifier `json:"name"`
	Value json.RawMessage  `json:"value"`
}

type IndexProperty struct {
	Name model.Identifier `json:"name"`
}

type BulkInsert struct {
	Items []BulkItem `json:"items"`
}

type ExecutePlugin struct {
	Name string          `json:"name"`
	Arg  json.RawMessage `json:"arg"`
}

func (Ping) OpType() string                 { return "ping" }
func (Sync) OpType() string                 { return "sync" }
func (CreateVertex) OpType() string         { return "create_vertex" }
func (CreateVertexFromType) OpType() string { return "create_vertex_from_type" }
func (CreateEdge) OpType() string           { return "create_edge" }
func (Get) OpType() string                  { return "get" }
func (Delete) OpType() string               { return "delete" }
func (SetProperties) OpType() string        { return "set_properties" }
func (IndexProperty) OpType() string        { return "index_property" }
func (BulkInsert) OpType() string           { return "bulk_insert" }
func (ExecutePlugin) OpType() string        { return "execute_plugin" }

// BulkItem is one entry of a bulk insert.
type BulkItem interface {
	ItemType() string
}

type VertexItem struct {
	Vertex model.Vertex `json:"vertex"`
}

type EdgeItem struct {
	Key model.EdgeKey `json:"key"`
}

type VertexPropertyItem struct {
	ID    uuid.UUID        `json:"id"`
	Name  model.Identifier `json:"name"`
	Value json.RawMessage  `json:"value"`
}

type EdgePropertyItem struct {
	Key   model.EdgeKey    `json:"key"`
	Name  model.Identifier `json:"name"`
	Value json.RawMessage  `json:"value"`
}

func (VertexItem) ItemType() string         { return "vertex" }
func (EdgeItem) ItemType() string           { return "edge" }
func (VertexPropertyItem) ItemType() string { return "vertex_property" }
func (EdgePropertyItem) ItemType() string   { return "edge_property" }

func (b BulkInsert) MarshalJSON() ([]byte, error) {
	items := make([]json.RawMessage, 0, len(b.Items))
	for _, item := range b.Items {
		data, err := EncodeBulkItem(item)
		if err != nil {
			return nil, err
		}
		items = append(items, data)
	}
	return json.Marshal(struct {
		Items []json.RawMessage `json:"items"`
	}{items})
}

func (b *BulkInsert) UnmarshalJSON(data []byte) error {
	r := struct {
		Items json.RawMessage `json:"items"`
	}{}
	err := json.Unmarshal(data, &r)
	if err != nil {
		return err
	}
	if len(r.Items) == 0 {
		b.Items = nil
		return nil
	}
	b.Items, err = decodeList(r.Items, DecodeBulkItem)
	return err
}

func EncodeBulkItem(item BulkItem) ([]byte, error) {
	return marshalTagged(item.ItemType(), item)
}

func DecodeBulkItem(b []byte) (BulkItem, error) {
	tag, err := peekTag(b)
	if err != nil {
		return nil, err
	}

	var item BulkItem
	switch tag {
	case "vertex":
		v := VertexItem{}
		err = json.Unmarshal(b, &v)
		item = v
	case "edge":
		v := EdgeItem{}
		err = json.Unmarshal(b, &v)
		item = v
	case "vertex_property":
		v := VertexPropertyItem{}
		err = json.Unmarshal(b, &v)
		item = v
	case "edge_property":
		v := EdgePropertyItem{}
		err = json.Unmarshal(b, &v)
		item = v
	default:
		return nil, fmt.Errorf("unknown bulk item type %q", tag)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s item: %w", tag, err)
	}
	return item, nil
}

func EncodeOp(op Op) ([]byte, error) {
	return marshalTagged(op.OpType(), op)
}

func DecodeOp(b []byte) (Op, error) {
	tag, err := peekTag(b)
	if err != nil {
		return nil, err
	}

	var op Op
	switch tag {
	case "ping":
		op = Ping{}
	case "sync":
		op = Sync{}
	case "create_vertex":
		v := CreateVertex{}
		err = json.Unmarshal(b, &v)
		op = v
	case "create_vertex_from_type":
		v := CreateVertexFromType{}
		err = json.Unmarshal(b, &v)
		op = v
	case "create_edge":
		v := CreateEdge{}
		err = json.Unmarshal(b, &v)
		op = v
	case "get":
		v := Get{}
		err = json.Unmarshal(b, &v)
		op = v
	case "delete":
		v := Delete{}
		err = json.Unmarshal(b, &v)
		op = v
	case "set_properties":
		v := SetProperties{}
		err = json.Unmarshal(b, &v)
		op = v
	case "index_property":
		v := IndexProperty{}
		err = json.Unmarshal(b, &v)
		op = v
	case "bulk_insert":
		v := BulkInsert{}
		err = json.Unmarshal(b, &v)
		op = v
	case "execute_plugin":
		v := ExecutePlugin{}
		err = json.Unmarshal(b, &v)
		op = v
	default:
		return nil, fmt.Errorf("unknown op type %q", tag)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s op: %w", tag, err)
	}
	return op, nil
}

func (r *Request) MarshalJSON() ([]byte, error) {
	ops := make([]json.RawMessage, 0, len(r.Ops))
	for i, op := range r.Ops {
		data, err := EncodeOp(op)
		if err != nil {
			return nil, fmt.Errorf("encoding op %d: %w", i, err)
		}
		ops = append(ops, data)
	}
	return json.Marshal(struct {
		ID  string            `json:"id"`
		Ops []json.RawMessage `json:"ops"`
	}{r.ID, ops})
}

func (r *Request) UnmarshalJSON(b []byte) error {
	env := struct {
		ID  string          `json:"id"`
		Ops json.RawMessage `json:"ops"`
	}{}
	err := json.Unmarshal(b, &env)
	if err != nil {
		return err
	}
	r.ID = env.ID
	r.Ops = nil
	if len(env.Ops) == 0 {
		return nil
	}
	r.Ops, err = decodeList(env.Ops, DecodeOp)
	return err
}

func EncodeRequest(r *Request) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRequest(b []byte) (*Request, error) {
	r := &Request{}
	err := json.Unmarshal(b, r)
	if err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	return r, nil
}
