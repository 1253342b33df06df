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
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/jdudmesh/graphlink/pkg/query"
)

// MaxQueryDepth bounds the nesting accepted by DecodeQuery.
const MaxQueryDepth = 256

var ErrNilQuery = errors.New("nil query node")

type rangeVertexJSON struct {
	StartID query.Optional[uuid.UUID]        `json:"start_id"`
	Type    query.Optional[model.Identifier] `json:"t"`
	Limit   query.Optional[uint32]           `json:"limit"`
}

type specificVertexJSON struct {
	IDs []uuid.UUID `json:"ids"`
}

type specificEdgeJSON struct {
	Keys []model.EdgeKey `json:"keys"`
}

type presenceJSON struct {
	Name model.Identifier `json:"name"`
}

type valueJSON struct {
	Name  model.Identifier `json:"name"`
	Value json.RawMessage  `json:"value"`
}

type pipeJSON struct {
	Inner     json.RawMessage                  `json:"inner"`
	Direction model.EdgeDirection              `json:"direction"`
	Type      query.Optional[model.Identifier] `json:"t"`
	Limit     query.Optional[uint32]           `json:"limit"`
}

type pipePropertyJSON struct {
	Inner json.RawMessage                  `json:"inner"`
	Name  query.Optional[model.Identifier] `json:"name"`
}

type pipePresenceJSON struct {
	Inner  json.RawMessage  `json:"inner"`
	Name   model.Identifier `json:"name"`
	Exists bool             `json:"exists"`
}

type pipeValueJSON struct {
	Inner json.RawMessage  `json:"inner"`
	Name  model.Identifier `json:"name"`
	Value json.RawMessage  `json:"value"`
	Equal bool             `json:"equal"`
}

type wrapperJSON struct {
	Inner json.RawMessage `json:"inner"`
}

// EncodeQuery returns the canonical encoding of a query tree. A wrapping
// node embeds the encoding of its inner node unchanged.
func EncodeQuery(n query.Node) ([]byte, error) {
	if n == nil {
		return nil, ErrNilQuery
	}

	tag := string(n.Tag())
	switch t := n.(type) {
	case query.AllVertex, query.AllEdge:
		return marshalTagged(tag, struct{}{})
	case query.RangeVertex:
		return marshalTagged(tag, rangeVertexJSON{StartID: t.StartID, Type: t.Type, Limit: t.Limit})
	case query.SpecificVertex:
		ids := t.IDs
		if ids == nil {
			ids = []uuid.UUID{}
		}
		return marshalTagged(tag, specificVertexJSON{IDs: ids})
	case query.SpecificEdge:
		keys := t.Keys
		if keys == nil {
			keys = []model.EdgeKey{}
		}
		return marshalTagged(tag, specificEdgeJSON{Keys: keys})
	case query.VertexWithPropertyPresence:
		return marshalTagged(tag, presenceJSON{Name: t.Name})
	case query.EdgeWithPropertyPresence:
		return marshalTagged(tag, presenceJSON{Name: t.Name})
	case query.VertexWithPropertyValue:
		return marshalTagged(tag, valueJSON{Name: t.Name, Value: t.Value})
	case query.EdgeWithPropertyValue:
		return marshalTagged(tag, valueJSON{Name: t.Name, Value: t.Value})
	}

	inner, err := EncodeQuery(query.InnerOf(n))
	if err != nil {
		return nil, err
	}

	switch t := n.(type) {
	case query.Pipe:
		return marshalTagged(tag, pipeJSON{Inner: inner, Direction: t.Direction, Type: t.Type, Limit: t.Limit})
	case query.PipeProperty:
		return marshalTagged(tag, pipePropertyJSON{Inner: inner, Name: t.Name})
	case query.PipeWithPropertyPresence:
		return marshalTagged(tag, pipePresenceJSON{Inner: inner, Name: t.Name, Exists: t.Exists})
	case query.PipeWithPropertyValue:
		return marshalTagged(tag, pipeValueJSON{Inner: inner, Name: t.Name, Value: t.Value, Equal: t.Equal})
	case query.Include, query.Count:
		return marshalTagged(tag, wrapperJSON{Inner: inner})
	default:
		return nil, fmt.Errorf("encoding query: unknown node %T", n)
	}
}

// DecodeQuery parses the canonical encoding back into a tree. The result is
// structurally sound JSON but is not validated; see query.Validate.
func DecodeQuery(b []byte) (query.Node, error) {
	return decodeNode(b, 0)
}

func decodeNode(b []byte, depth int) (query.Node, error) {
	if depth > MaxQueryDepth {
		return nil, fmt.Errorf("decoding query: nested deeper than %d", MaxQueryDepth)
	}
	if len(b) == 0 {
		return nil, ErrNilQuery
	}

	tag, err := peekTag(b)
	if err != nil {
		return nil, fmt.Errorf("decoding query: %w", err)
	}

	switch query.Tag(tag) {
	case query.TagAllVertex:
		return query.AllVertex{}, nil
	case query.TagAllEdge:
		return query.AllEdge{}, nil
	case query.TagRangeVertex:
		r := rangeVertexJSON{}
		err = json.Unmarshal(b, &r)
		return query.RangeVertex{StartID: r.StartID, Type: r.Type, Limit: r.Limit}, wrapDecode(tag, err)
	case query.TagSpecificVertex:
		r := specificVertexJSON{}
		err = json.Unmarshal(b, &r)
		return query.SpecificVertex{IDs: r.IDs}, wrapDecode(tag, err)
	case query.TagSpecificEdge:
		r := specificEdgeJSON{}
		err = json.Unmarshal(b, &r)
		return query.SpecificEdge{Keys: r.Keys}, wrapDecode(tag, err)
	case query.TagVertexWithPropertyPresence:
		r := presenceJSON{}
		err = json.Unmarshal(b, &r)
		return query.VertexWithPropertyPresence{Name: r.Name}, wrapDecode(tag, err)
	case query.TagEdgeWithPropertyPresence:
		r := presenceJSON{}
		err = json.Unmarshal(b, &r)
		return query.EdgeWithPropertyPresence{Name: r.Name}, wrapDecode(tag, err)
	case query.TagVertexWithPropertyValue:
		r := valueJSON{}
		err = json.Unmarshal(b, &r)
		return query.VertexWithPropertyValue{Name: r.Name, Value: r.Value}, wrapDecode(tag, err)
	case query.TagEdgeWithPropertyValue:
		r := valueJSON{}
		err = json.Unmarshal(b, &r)
		return query.EdgeWithPropertyValue{Name: r.Name, Value: r.Value}, wrapDecode(tag, err)
	case query.TagPipe:
		r := pipeJSON{}
		err = json.Unmarshal(b, &r)
		if err != nil {
			return nil, wrapDecode(tag, err)
		}
		inner, err := decodeNode(r.Inner, depth+1)
		if err != nil {
			return nil, err
		}
		return query.Pipe{Inner: inner, Direction: r.Direction, Type: r.Type, Limit: r.Limit}, nil
	case query.TagPipeProperty:
		r := pipePropertyJSON{}
		err = json.Unmarshal(b, &r)
		if err != nil {
			return nil, wrapDecode(tag, err)
		}
		inner, err := decodeNode(r.Inner, depth+1)
		if err != nil {
			return nil, err
		}
		return query.PipeProperty{Inner: inner, Name: r.Name}, nil
	case query.TagPipeWithPropertyPresence:
		r := pipePresenceJSON{}
		err = json.Unmarshal(b, &r)
		if err != nil {
			return nil, wrapDecode(tag, err)
		}
		inner, err := decodeNode(r.Inner, depth+1)
		if err != nil {
			return nil, err
		}
		return query.PipeWithPropertyPresence{Inner: inner, Name: r.Name, Exists: r.Exists}, nil
	case query.TagPipeWithPropertyValue:
		r := pipeValueJSON{}
		err = json.Unmarshal(b, &r)
		if err != nil {
			return nil, wrapDecode(tag, err)
		}
		inner, err := decodeNode(r.Inner, depth+1)
		if err != nil {
			return nil, err
		}
		return query.PipeWithPropertyValue{Inner: inner, Name: r.Name, Value: r.Value, Equal: r.Equal}, nil
	case query.TagInclude, query.TagCount:
		r := wrapperJSON{}
		err = json.Unmarshal(b, &r)
		if err != nil {
			return nil, wrapDecode(tag, err)
		}
		inner, err := decodeNode(r.Inner, depth+1)
		if err != nil {
			return nil, err
		}
		if query.Tag(tag) == query.TagInclude {
			return query.Include{Inner: inner}, nil
		}
		return query.Count{Inner: inner}, nil
	default:
		return nil, fmt.Errorf("decoding query: unknown node type %q", tag)
	}
}

func wrapDecode(tag string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("decoding %s: %w", tag, err)
}

// Tree carries a query tree through encoding/json.
type Tree struct {
	Node query.Node
}

func (t Tree) MarshalJSON() ([]byte, error) {
	return EncodeQuery(t.Node)
}

func (t *Tree) UnmarshalJSON(b []byte) error {
	n, err := DecodeQuery(b)
	if err != nil {
		return err
	}
	t.Node = n
	return nil
}
