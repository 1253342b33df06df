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

	"github.com/google/uuid"
	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/jdudmesh/graphlink/pkg/query"
	"github.com/jdudmesh/graphlink/pkg/wire"
)

// Transaction batches operations into a single request. Results come back
// in the order the operations were added.
type Transaction struct {
	client *Client
	ops    []wire.Op
	nodes  []query.Node
	err    error
}

// Result is the outcome of one operation in a transaction. Exactly one of
// Err and the value fields is meaningful.
type Result struct {
	Op      string
	Bool    bool
	ID      uuid.UUID
	Outputs []wire.Output
	JSON    json.RawMessage
	Err     error
}

func (c *Client) NewTransaction() *Transaction {
	return &Transaction{client: c}
}

func (tx *Transaction) Len() int {
	return len(tx.ops)
}

func (tx *Transaction) add(op wire.Op, n query.Node) *Transaction {
	tx.ops = append(tx.ops, op)
	tx.nodes = append(tx.nodes, n)
	return tx
}

func (tx *Transaction) checkIdentifier(id model.Identifier) {
	if tx.err == nil {
		tx.err = tx.client.checkIdentifier(id)
	}
}

func (tx *Transaction) checkQuery(q query.Query) {
	if tx.err == nil {
		tx.err = tx.client.checkQuery(q)
	}
}

func (tx *Transaction) Ping() *Transaction {
	return tx.add(wire.Ping{}, nil)
}

func (tx *Transaction) Sync() *Transaction {
	return tx.add(wire.Sync{}, nil)
}

func (tx *Transaction) CreateVertex(v model.Vertex) *Transaction {
	tx.checkIdentifier(v.Type)
	return tx.add(wire.CreateVertex{Vertex: v}, nil)
}

func (tx *Transaction) CreateVertexFromType(t model.Identifier) *Transaction {
	tx.checkIdentifier(t)
	return tx.add(wire.CreateVertexFromType{Type: t}, nil)
}

func (tx *Transaction) CreateEdge(key model.EdgeKey) *Transaction {
	tx.checkIdentifier(key.Type)
	return tx.add(wire.CreateEdge{Key: key}, nil)
}

func (tx *Transaction) Get(q query.Query) *Transaction {
	tx.checkQuery(q)
	if q == nil {
		return tx.add(wire.Get{}, nil)
	}
	return tx.add(wire.Get{Query: wire.Tree{Node: q.Node()}}, q.Node())
}

func (tx *Transaction) Delete(q query.Query) *Transaction {
	tx.checkQuery(q)
	if q == nil {
		return tx.add(wire.Delete{}, nil)
	}
	return tx.add(wire.Delete{Query: wire.Tree{Node: q.Node()}}, nil)
}

func (tx *Transaction) SetProperties(q query.Query, name model.Identifier, value json.RawMessage) *Transaction {
	tx.checkQuery(q)
	tx.checkIdentifier(name)
	if q == nil {
		return tx.add(wire.SetProperties{Name: name, Value: value}, nil)
	}
	return tx.add(wire.SetProperties{Query: wire.Tree{Node: q.Node()}, Name: name, Value: value}, nil)
}

func (tx *Transaction) IndexProperty(name model.Identifier) *Transaction {
	tx.checkIdentifier(name)
	return tx.add(wire.IndexProperty{Name: name}, nil)
}

func (tx *Transaction) BulkInsert(items ...wire.BulkItem) *Transaction {
	return tx.add(wire.BulkInsert{Items: items}, nil)
}

func (tx *Transaction) ExecutePlugin(name string, arg json.RawMessage) *Transaction {
	if name == "" && tx.err == nil {
		tx.err = &model.ConstructionError{Field: "plugin name", Reason: "must not be empty"}
	}
	return tx.add(wire.ExecutePlugin{Name: name, Arg: arg}, nil)
}

// Execute sends the batch. If the request as a whole fails the error is
// returned with no results. Otherwise every result is returned, and the
// error joins the per-op ServerErrors, each carrying its index.
func (tx *Transaction) Execute(ctx context.Context) ([]Result, error) {
	if tx.err != nil {
		return nil, tx.err
	}
	if len(tx.ops) == 0 {
		return []Result{}, nil
	}

	raw, err := tx.client.execute(ctx, tx.ops)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(raw))
	errs := []error{}
	for i, res := range raw {
		results[i] = tx.result(i, res)
		if results[i].Err != nil {
			errs = append(errs, results[i].Err)
		}
	}

	return results, errors.Join(errs...)
}

func (tx *Transaction) result(i int, res wire.Result) Result {
	r := Result{Op: tx.ops[i].OpType()}

	switch v := res.(type) {
	case wire.Failure:
		r.Err = model.NewServerError(v.Code, v.Message, i)
	case wire.OK:
	case wire.Bool:
		r.Bool = v.Value
	case wire.ID:
		r.ID = v.ID
	case wire.JSON:
		r.JSON = v.Value
	case wire.Outputs:
		if tx.nodes[i] == nil {
			r.Err = model.ErrUnexpectedResult
			break
		}
		outs, err := decodeGet(v, tx.nodes[i])
		if err != nil {
			r.Err = err
			break
		}
		r.Outputs = outs
	default:
		r.Err = model.ErrUnexpectedResult
	}

	return r
}
