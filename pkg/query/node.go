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

// Package query is the graph query algebra. A query is an immutable tree of
// nodes built bottom-up with combinators; building a query never performs
// I/O and never fails. The tree is serialized by package wire and evaluated
// by the server.
package query

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jdudmesh/graphlink/pkg/model"
)

type Tag string

const (
	TagAllVertex                  Tag = "all_vertex"
	TagRangeVertex                Tag = "range_vertex"
	TagSpecificVertex             Tag = "specific_vertex"
	TagVertexWithPropertyPresence Tag = "vertex_with_property_presence"
	TagVertexWithPropertyValue    Tag = "vertex_with_property_value"
	TagAllEdge                    Tag = "all_edge"
	TagSpecificEdge               Tag = "specific_edge"
	TagEdgeWithPropertyPresence   Tag = "edge_with_property_presence"
	TagEdgeWithPropertyValue      Tag = "edge_with_property_value"
	TagPipe                       Tag = "pipe"
	TagPipeProperty               Tag = "pipe_property"
	TagPipeWithPropertyPresence   Tag = "pipe_with_property_presence"
	TagPipeWithPropertyValue      Tag = "pipe_with_property_value"
	TagInclude                    Tag = "include"
	TagCount                      Tag = "count"
)

// Node is one node of a query tree. The set of implementations is closed:
// every node type is declared in this file.
type Node interface {
	Tag() Tag
	node()
}

type AllVertex struct{}

// RangeVertex matches vertices with ids strictly greater than StartID, in id
// order. An unset Limit asks for the server's maximum; a Limit of zero asks
// for nothing.
type RangeVertex struct {
	StartID Optional[uuid.UUID]
	Type    Optional[model.Identifier]
	Limit   Optional[uint32]
}

type SpecificVertex struct {
	IDs []uuid.UUID
}

type VertexWithPropertyPresence struct {
	Name model.Identifier
}

type VertexWithPropertyValue struct {
	Name  model.Identifier
	Value json.RawMessage
}

type AllEdge struct{}

type SpecificEdge struct {
	Keys []model.EdgeKey
}

type EdgeWithPropertyPresence struct {
	Name model.Identifier
}

type EdgeWithPropertyValue struct {
	Name  model.Identifier
	Value json.RawMessage
}

// Pipe maps vertices to their adjacent edges, or edges to their endpoint
// vertices. Type filters the produced entities and is applied before Limit.
type Pipe struct {
	Inner     Node
	Direction model.EdgeDirection
	Type      Optional[model.Identifier]
	Limit     Optional[uint32]
}

// PipeProperty selects the properties of the matched entities, all of them
// when Name is unset.
type PipeProperty struct {
	Inner Node
	Name  Optional[model.Identifier]
}

type PipeWithPropertyPresence struct {
	Inner  Node
	Name   model.Identifier
	Exists bool
}

type PipeWithPropertyValue struct {
	Inner Node
	Name  model.Identifier
	Value json.RawMessage
	Equal bool
}

// Include adds the matches of Inner to the result set.
type Include struct {
	Inner Node
}

type Count struct {
	Inner Node
}

func (AllVertex) Tag() Tag                  { return TagAllVertex }
func (RangeVertex) Tag() Tag                { return TagRangeVertex }
func (SpecificVertex) Tag() Tag             { return TagSpecificVertex }
func (VertexWithPropertyPresence) Tag() Tag { return TagVertexWithPropertyPresence }
func (VertexWithPropertyValue) Tag() Tag    { return TagVertexWithPropertyValue }
func (AllEdge) Tag() Tag                    { return TagAllEdge }
func (SpecificEdge) Tag() Tag               { return TagSpecificEdge }
func (EdgeWithPropertyPresence) Tag() Tag   { return TagEdgeWithPropertyPresence }
func (EdgeWithPropertyValue) Tag() Tag      { return TagEdgeWithPropertyValue }
func (Pipe) Tag() Tag                       { return TagPipe }
func (PipeProperty) Tag() Tag               { return TagPipeProperty }
func (PipeWithPropertyPresence) Tag() Tag   { return TagPipeWithPropertyPresence }
func (PipeWithPropertyValue) Tag() Tag      { return TagPipeWithPropertyValue }
func (Include) Tag() Tag                    { return TagInclude }
func (Count) Tag() Tag                      { return TagCount }

func (AllVertex) node()                  {}
func (RangeVertex) node()                {}
func (SpecificVertex) node()             {}
func (VertexWithPropertyPresence) node() {}
func (VertexWithPropertyValue) node()    {}
func (AllEdge) node()                    {}
func (SpecificEdge) node()               {}
func (EdgeWithPropertyPresence) node()   {}
func (EdgeWithPropertyValue) node()      {}
func (Pipe) node()                       {}
func (PipeProperty) node()               {}
func (PipeWithPropertyPresence) node()   {}
func (PipeWithPropertyValue) node()      {}
func (Include) node()                    {}
func (Count) node()                      {}

// InnerOf returns the wrapped node, or nil for seeds.
func InnerOf(n Node) Node {
	switch t := n.(type) {
	case Pipe:
		return t.Inner
	case PipeProperty:
		return t.Inner
	case PipeWithPropertyPresence:
		return t.Inner
	case PipeWithPropertyValue:
		return t.Inner
	case Include:
		return t.Inner
	case Count:
		return t.Inner
	default:
		return nil
	}
}

func IsSeed(n Node) bool {
	switch n.(type) {
	case AllVertex, RangeVertex, SpecificVertex, VertexWithPropertyPresence, VertexWithPropertyValue,
		AllEdge, SpecificEdge, EdgeWithPropertyPresence, EdgeWithPropertyValue:
		return true
	default:
		return false
	}
}
