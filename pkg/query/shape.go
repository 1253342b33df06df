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
	"errors"
	"fmt"

	"github.com/jdudmesh/graphlink/pkg/model"
)

// Kind is the sort of value a query produces.
type Kind int

const (
	KindInvalid Kind = iota
	KindVertices
	KindEdges
	KindCount
	KindVertexProperties
	KindEdgeProperties
)

func (k Kind) String() string {
	switch k {
	case KindVertices:
		return "vertices"
	case KindEdges:
		return "edges"
	case KindCount:
		return "count"
	case KindVertexProperties:
		return "vertex_properties"
	case KindEdgeProperties:
		return "edge_properties"
	default:
		return "invalid"
	}
}

// KindOf infers the output kind of a node. Malformed trees, which the typed
// builders cannot produce, yield KindInvalid.
func KindOf(n Node) Kind {
	switch t := n.(type) {
	case AllVertex, RangeVertex, SpecificVertex, VertexWithPropertyPresence, VertexWithPropertyValue:
		return KindVertices
	case AllEdge, SpecificEdge, EdgeWithPropertyPresence, EdgeWithPropertyValue:
		return KindEdges
	case Pipe:
		switch KindOf(t.Inner) {
		case KindVertices:
			return KindEdges
		case KindEdges:
			return KindVertices
		}
	case PipeProperty:
		switch KindOf(t.Inner) {
		case KindVertices:
			return KindVertexProperties
		case KindEdges:
			return KindEdgeProperties
		}
	case PipeWithPropertyPresence:
		return entityKind(t.Inner)
	case PipeWithPropertyValue:
		return entityKind(t.Inner)
	case Include:
		return KindOf(t.Inner)
	case Count:
		if countable(t.Inner) {
			return KindCount
		}
	}
	return KindInvalid
}

func entityKind(n Node) Kind {
	k := KindOf(n)
	if k == KindVertices || k == KindEdges {
		return k
	}
	return KindInvalid
}

// countable reports whether a count may wrap n: seeds and property queries.
func countable(n Node) bool {
	if IsSeed(n) {
		return true
	}
	switch t := n.(type) {
	case PipeProperty:
		return KindOf(t) != KindInvalid
	case Include:
		_, ok := t.Inner.(PipeProperty)
		return ok && KindOf(t) != KindInvalid
	}
	return false
}

// Slot is one entry of the result of a query.
type Slot struct {
	Kind Kind
	Node Tag
}

// Shape predicts the results of executing n: one slot per include, in
// execution order, then one for n itself.
func Shape(n Node) []Slot {
	slots := []Slot{}
	collectIncludes(n, &slots)
	return append(slots, Slot{Kind: KindOf(n), Node: n.Tag()})
}

func collectIncludes(n Node, slots *[]Slot) {
	inner := InnerOf(n)
	if inner != nil {
		collectIncludes(inner, slots)
	}
	if inc, ok := n.(Include); ok {
		*slots = append(*slots, Slot{Kind: KindOf(inc.Inner), Node: inc.Inner.Tag()})
	}
}

// Validate checks a tree before it is sent: identifiers must be acceptable
// and every node must wrap something of the sort it operates on.
func Validate(n Node) error {
	return validate(n, "query")
}

func validate(n Node, path string) error {
	if n == nil {
		return &model.ConstructionError{Field: path, Reason: "missing node"}
	}
	path = path + "." + string(n.Tag())

	switch t := n.(type) {
	case RangeVertex:
		if ty, ok := t.Type.Get(); ok {
			return validateIdentifier(ty, path+".t")
		}
	case VertexWithPropertyPresence:
		return validateIdentifier(t.Name, path+".name")
	case VertexWithPropertyValue:
		return validateIdentifier(t.Name, path+".name")
	case EdgeWithPropertyPresence:
		return validateIdentifier(t.Name, path+".name")
	case EdgeWithPropertyValue:
		return validateIdentifier(t.Name, path+".name")
	case SpecificEdge:
		for i, k := range t.Keys {
			err := validateIdentifier(k.Type, fmt.Sprintf("%s.keys[%d].t", path, i))
			if err != nil {
				return err
			}
		}
	case Pipe:
		if t.Direction != model.Outbound && t.Direction != model.Inbound {
			return &model.ConstructionError{Field: path + ".direction", Reason: "unknown direction"}
		}
		if ty, ok := t.Type.Get(); ok {
			err := validateIdentifier(ty, path+".t")
			if err != nil {
				return err
			}
		}
		return validateInner(t.Inner, path, KindVertices, KindEdges)
	case PipeProperty:
		if name, ok := t.Name.Get(); ok {
			err := validateIdentifier(name, path+".name")
			if err != nil {
				return err
			}
		}
		return validateInner(t.Inner, path, KindVertices, KindEdges)
	case PipeWithPropertyPresence:
		err := validateIdentifier(t.Name, path+".name")
		if err != nil {
			return err
		}
		return validateInner(t.Inner, path, KindVertices, KindEdges)
	case PipeWithPropertyValue:
		err := validateIdentifier(t.Name, path+".name")
		if err != nil {
			return err
		}
		return validateInner(t.Inner, path, KindVertices, KindEdges)
	case Include:
		return validateInner(t.Inner, path, KindVertices, KindEdges, KindVertexProperties, KindEdgeProperties)
	case Count:
		err := validate(t.Inner, path)
		if err != nil {
			return err
		}
		if !countable(t.Inner) {
			return &model.ConstructionError{Field: path, Reason: "only seeds and property queries can be counted"}
		}
	}
	return nil
}

func validateInner(inner Node, path string, accept ...Kind) error {
	err := validate(inner, path)
	if err != nil {
		return err
	}
	k := KindOf(inner)
	for _, a := range accept {
		if k == a {
			return nil
		}
	}
	return &model.ConstructionError{Field: path, Reason: fmt.Sprintf("cannot wrap %s", k)}
}

func validateIdentifier(id model.Identifier, path string) error {
	err := id.Validate()
	var ce *model.ConstructionError
	if errors.As(err, &ce) {
		return &model.ConstructionError{Field: path, Reason: ce.Reason}
	}
	return err
}
