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
package query

import (
	"encoding/json"
	"slices"

	"github.com/google/uuid"
	"github.com/jdudmesh/graphlink/pkg/model"
)

// Query is anything that can be sent to the server as a query tree.
type Query interface {
	Node() Node
}

// RangeOption configures RangeVertices.
type RangeOption interface {
	applyRange(*RangeVertex)
}

// PipeOption configures a pipe.
type PipeOption interface {
	applyPipe(*Pipe)
}

// FilterOption is accepted both by RangeVertices and by pipes.
type FilterOption struct {
	limit Optional[uint32]
	t     Optional[model.Identifier]
}

func (o FilterOption) applyRange(r *RangeVertex) {
	if o.limit.IsSet() {
		r.Limit = o.limit
	}
	if o.t.IsSet() {
		r.Type = o.t
	}
}

func (o FilterOption) applyPipe(p *Pipe) {
	if o.limit.IsSet() {
		p.Limit = o.limit
	}
	if o.t.IsSet() {
		p.Type = o.t
	}
}

// Limit caps the number of results. Limit(0) is a real limit of zero, not
// the absence of one.
func Limit(n uint32) FilterOption {
	return FilterOption{limit: Some(n)}
}

// Type restricts results to entities of the given type.
func Type(t model.Identifier) FilterOption {
	return FilterOption{t: Some(t)}
}

type startID uuid.UUID

func (s startID) applyRange(r *RangeVertex) {
	r.StartID = Some(uuid.UUID(s))
}

// StartID makes a range start strictly after id.
func StartID(id uuid.UUID) RangeOption {
	return startID(id)
}

// VertexQuery is a query whose results are vertices.
type VertexQuery struct {
	node Node
}

// EdgeQuery is a query whose results are edges.
type EdgeQuery struct {
	node Node
}

// VertexSeed is a vertex query that starts a tree and so can be counted.
type VertexSeed struct {
	VertexQuery
}

// EdgeSeed is an edge query that starts a tree and so can be counted.
type EdgeSeed struct {
	EdgeQuery
}

// PropertyQuery selects properties of vertices or edges.
type PropertyQuery struct {
	node Node
}

type CountQuery struct {
	node Node
}

func AllVertices() VertexSeed {
	return vertexSeed(AllVertex{})
}

func RangeVertices(opts ...RangeOption) VertexSeed {
	r := RangeVertex{}
	for _, opt := range opts {
		opt.applyRange(&r)
	}
	return vertexSeed(r)
}

func SpecificVertices(ids ...uuid.UUID) VertexSeed {
	return vertexSeed(SpecificVertex{IDs: slices.Clone(ids)})
}

func VerticesWithPropertyPresence(name model.Identifier) VertexSeed {
	return vertexSeed(VertexWithPropertyPresence{Name: name})
}

func VerticesWithPropertyValue(name model.Identifier, value json.RawMessage) VertexSeed {
	return vertexSeed(VertexWithPropertyValue{Name: name, Value: slices.Clone(value)})
}

func AllEdges() EdgeSeed {
	return edgeSeed(AllEdge{})
}

func SpecificEdges(keys ...model.EdgeKey) EdgeSeed {
	return edgeSeed(SpecificEdge{Keys: slices.Clone(keys)})
}

func EdgesWithPropertyPresence(name model.Identifier) EdgeSeed {
	return edgeSeed(EdgeWithPropertyPresence{Name: name})
}

func EdgesWithPropertyValue(name model.Identifier, value json.RawMessage) EdgeSeed {
	return edgeSeed(EdgeWithPropertyValue{Name: name, Value: slices.Clone(value)})
}

func vertexSeed(n Node) VertexSeed {
	return VertexSeed{VertexQuery{node: n}}
}

func edgeSeed(n Node) EdgeSeed {
	return EdgeSeed{EdgeQuery{node: n}}
}

func pipe(inner Node, dir model.EdgeDirection, opts []PipeOption) Pipe {
	p := Pipe{Inner: inner, Direction: dir}
	for _, opt := range opts {
		opt.applyPipe(&p)
	}
	return p
}

func (q VertexQuery) Node() Node {
	return q.node
}

// Outbound pipes each vertex to the edges leaving it.
func (q VertexQuery) Outbound(opts ...PipeOption) EdgeQuery {
	return EdgeQuery{node: pipe(q.node, model.Outbound, opts)}
}

// Inbound pipes each vertex to the edges arriving at it.
func (q VertexQuery) Inbound(opts ...PipeOption) EdgeQuery {
	return EdgeQuery{node: pipe(q.node, model.Inbound, opts)}
}

func (q VertexQuery) WithProperty(name model.Identifier) VertexQuery {
	return VertexQuery{node: PipeWithPropertyPresence{Inner: q.node, Name: name, Exists: true}}
}

func (q VertexQuery) WithoutProperty(name model.Identifier) VertexQuery {
	return VertexQuery{node: PipeWithPropertyPresence{Inner: q.node, Name: name, Exists: false}}
}

func (q VertexQuery) WithPropertyEqualTo(name model.Identifier, value json.RawMessage) VertexQuery {
	return VertexQuery{node: PipeWithPropertyValue{Inner: q.node, Name: name, Value: slices.Clone(value), Equal: true}}
}

func (q VertexQuery) WithPropertyNotEqualTo(name model.Identifier, value json.RawMessage) VertexQuery {
	return VertexQuery{node: PipeWithPropertyValue{Inner: q.node, Name: name, Value: slices.Clone(value), Equal: false}}
}

func (q VertexQuery) Properties() PropertyQuery {
	return PropertyQuery{node: PipeProperty{Inner: q.node}}
}

func (q VertexQuery) Property(name model.Identifier) PropertyQuery {
	return q.Properties().Name(name)
}

func (q VertexQuery) Include() VertexQuery {
	return VertexQuery{node: Include{Inner: q.node}}
}

func (q EdgeQuery) Node() Node {
	return q.node
}

// OutboundVertices pipes each edge to the vertex it leaves from.
func (q EdgeQuery) OutboundVertices(opts ...PipeOption) VertexQuery {
	return VertexQuery{node: pipe(q.node, model.Outbound, opts)}
}

// InboundVertices pipes each edge to the vertex it points at.
func (q EdgeQuery) InboundVertices(opts ...PipeOption) VertexQuery {
	return VertexQuery{node: pipe(q.node, model.Inbound, opts)}
}

func (q EdgeQuery) WithProperty(name model.Identifier) EdgeQuery {
	return EdgeQuery{node: PipeWithPropertyPresence{Inner: q.node, Name: name, Exists: true}}
}

func (q EdgeQuery) WithoutProperty(name model.Identifier) EdgeQuery {
	return EdgeQuery{node: PipeWithPropertyPresence{Inner: q.node, Name: name, Exists: false}}
}

func (q EdgeQuery) WithPropertyEqualTo(name model.Identifier, value json.RawMessage) EdgeQuery {
	return EdgeQuery{node: PipeWithPropertyValue{Inner: q.node, Name: name, Value: slices.Clone(value), Equal: true}}
}

func (q EdgeQuery) WithPropertyNotEqualTo(name model.Identifier, value json.RawMessage) EdgeQuery {
	return EdgeQuery{node: PipeWithPropertyValue{Inner: q.node, Name: name, Value: slices.Clone(value), Equal: false}}
}

func (q EdgeQuery) Properties() PropertyQuery {
	return PropertyQuery{node: PipeProperty{Inner: q.node}}
}

func (q EdgeQuery) Property(name model.Identifier) PropertyQuery {
	return q.Properties().Name(name)
}

func (q EdgeQuery) Include() EdgeQuery {
	return EdgeQuery{node: Include{Inner: q.node}}
}

func (s VertexSeed) Count() CountQuery {
	return CountQuery{node: Count{Inner: s.node}}
}

func (s EdgeSeed) Count() CountQuery {
	return CountQuery{node: Count{Inner: s.node}}
}

func (q PropertyQuery) Node() Node {
	return q.node
}

// Name narrows the query to a single property.
func (q PropertyQuery) Name(name model.Identifier) PropertyQuery {
	return PropertyQuery{node: renameProperty(q.node, name)}
}

func (q PropertyQuery) Count() CountQuery {
	return CountQuery{node: Count{Inner: q.node}}
}

func (q PropertyQuery) Include() PropertyQuery {
	return PropertyQuery{node: Include{Inner: q.node}}
}

func (q CountQuery) Node() Node {
	return q.node
}

func renameProperty(n Node, name model.Identifier) Node {
	switch t := n.(type) {
	case PipeProperty:
		return PipeProperty{Inner: t.Inner, Name: Some(name)}
	case Include:
		return Include{Inner: renameProperty(t.Inner, name)}
	default:
		return n
	}
}

// Wrap returns the typed view of an arbitrary node, such as one decoded from
// the wire. The node is not validated.
func Wrap(n Node) Query {
	switch KindOf(n) {
	case KindVertices:
		if IsSeed(n) {
			return vertexSeed(n)
		}
		return VertexQuery{node: n}
	case KindEdges:
		if IsSeed(n) {
			return edgeSeed(n)
		}
		return EdgeQuery{node: n}
	case KindVertexProperties, KindEdgeProperties:
		return PropertyQuery{node: n}
	case KindCount:
		return CountQuery{node: n}
	default:
		return rawQuery{node: n}
	}
}

type rawQuery struct {
	node Node
}

func (q rawQuery) Node() Node {
	return q.node
}
