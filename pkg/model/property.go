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
package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// JSON converts v to a property value.
func JSON(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshalling property value: %w", err)
	}
	return b, nil
}

// MustJSON is JSON for values known to be serializable, such as literals.
func MustJSON(v any) json.RawMessage {
	b, err := JSON(v)
	if err != nil {
		panic(err)
	}
	return b
}

type NamedProperty struct {
	Name  Identifier      `json:"name"`
	Value json.RawMessage `json:"value"`
}

type VertexProperty struct {
	ID    uuid.UUID       `json:"id"`
	Value json.RawMessage `json:"value"`
}

type EdgeProperty struct {
	Key   EdgeKey         `json:"key"`
	Value json.RawMessage `json:"value"`
}

// VertexProperties is a vertex together with the properties selected by a
// property query.
type VertexProperties struct {
	Vertex Vertex          `json:"vertex"`
	Props  []NamedProperty `json:"props"`
}

type EdgeProperties struct {
	Edge  Edge            `json:"edge"`
	Props []NamedProperty `json:"props"`
}

// Property returns the value of the named property, if present.
func (p VertexProperties) Property(name Identifier) (json.RawMessage, bool) {
	return findProperty(p.Props, name)
}

func (p EdgeProperties) Property(name Identifier) (json.RawMessage, bool) {
	return findProperty(p.Props, name)
}

func findProperty(props []NamedProperty, name Identifier) (json.RawMessage, bool) {
	for _, p := range props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}
