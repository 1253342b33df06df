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

	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/jdudmesh/graphlink/pkg/query"
)

// Output is one value produced by a query.
type Output interface {
	Kind() query.Kind
}

type VertexOutput struct {
	Values []model.Vertex `json:"values"`
}

type EdgeOutput struct {
	Values []model.Edge `json:"values"`
}

type CountOutput struct {
	Value uint64 `json:"value"`
}

type VertexPropertiesOutput struct {
	Values []model.VertexProperties `json:"values"`
}

type EdgePropertiesOutput struct {
	Values []model.EdgeProperties `json:"values"`
}

func (VertexOutput) Kind() query.Kind           { return query.KindVertices }
func (EdgeOutput) Kind() query.Kind             { return query.KindEdges }
func (CountOutput) Kind() query.Kind            { return query.KindCount }
func (VertexPropertiesOutput) Kind() query.Kind { return query.KindVertexProperties }
func (EdgePropertiesOutput) Kind() query.Kind   { return query.KindEdgeProperties }

func EncodeOutput(o Output) ([]byte, error) {
	return marshalTagged(o.Kind().String(), o)
}

// NewOutputs encodes output values into an outputs result.
func NewOutputs(outs ...Output) (Outputs, error) {
	res := Outputs{Values: make([]json.RawMessage, 0, len(outs))}
	for i, o := range outs {
		data, err := EncodeOutput(o)
		if err != nil {
			return Outputs{}, fmt.Errorf("encoding output %d: %w", i, err)
		}
		res.Values = append(res.Values, data)
	}
	return res, nil
}

// DecodeOutputs decodes raw output values, checking each against the slot
// the query predicted for it. Any mismatch is a DeserializationError.
func DecodeOutputs(raw []json.RawMessage, shape []query.Slot) ([]Output, error) {
	if len(raw) != len(shape) {
		slot := min(len(raw), len(shape))
		derr := &model.DeserializationError{
			Slot: slot,
			Err:  fmt.Errorf("%d values for %d slots", len(raw), len(shape)),
		}
		if slot < len(shape) {
			derr.Node = string(shape[slot].Node)
			derr.Expected = shape[slot].Kind.String()
			derr.Got = "nothing"
		} else {
			derr.Node = "none"
			derr.Expected = "end of results"
			derr.Got = "extra value"
		}
		return nil, derr
	}

	out := make([]Output, 0, len(raw))
	for i, r := range raw {
		o, err := decodeOutput(r, i, shape[i])
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func decodeOutput(b []byte, slot int, want query.Slot) (Output, error) {
	derr := func(got string, err error) error {
		return &model.DeserializationError{
			Slot:     slot,
			Node:     string(want.Node),
			Expected: want.Kind.String(),
			Got:      got,
			Err:      err,
		}
	}

	tag, err := peekTag(b)
	if err != nil {
		return nil, derr("", err)
	}
	if tag != want.Kind.String() {
		return nil, derr(tag, nil)
	}

	var o Output
	switch want.Kind {
	case query.KindVertices:
		v := VertexOutput{}
		err = json.Unmarshal(b, &v)
		o = v
	case query.KindEdges:
		v := EdgeOutput{}
		err = json.Unmarshal(b, &v)
		o = v
	case query.KindCount:
		v := CountOutput{}
		err = json.Unmarshal(b, &v)
		o = v
	case query.KindVertexProperties:
		v := VertexPropertiesOutput{}
		err = json.Unmarshal(b, &v)
		o = v
	case query.KindEdgeProperties:
		v := EdgePropertiesOutput{}
		err = json.Unmarshal(b, &v)
		o = v
	default:
		return nil, derr(tag, fmt.Errorf("query has no valid output kind"))
	}
	if err != nil {
		return nil, derr(tag, err)
	}
	return o, nil
}
