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

// Package model holds the entities exchanged with a graph server: vertices,
// edges, properties, and the errors raised while talking to it.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const MaxIdentifierLen = 255

// Identifier names a vertex type, an edge type or a property.
type Identifier string

func (i Identifier) String() string {
	return string(i)
}

// Validate reports whether the identifier would be accepted by the server.
func (i Identifier) Validate() error {
	if i == "" {
		return &ConstructionError{Field: "identifier", Reason: "must not be empty"}
	}
	if len(i) > MaxIdentifierLen {
		return &ConstructionError{Field: "identifier", Reason: fmt.Sprintf("longer than %d bytes", MaxIdentifierLen)}
	}
	return nil
}

type EdgeDirection int

const (
	Outbound EdgeDirection = iota
	Inbound
)

func (d EdgeDirection) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return "unknown"
	}
}

func (d EdgeDirection) MarshalText() ([]byte, error) {
	switch d {
	case Outbound, Inbound:
		return []byte(d.String()), nil
	default:
		return nil, fmt.Errorf("invalid edge direction: %d", int(d))
	}
}

func (d *EdgeDirection) UnmarshalText(b []byte) error {
	switch string(b) {
	case "outbound":
		*d = Outbound
	case "inbound":
		*d = Inbound
	default:
		return fmt.Errorf("invalid edge direction: %q", string(b))
	}
	return nil
}

type Vertex struct {
	ID   uuid.UUID  `json:"id"`
	Type Identifier `json:"t"`
}

// NewVertex creates a vertex with a fresh time-ordered id, so that id order
// roughly follows creation order when paging with RangeVertices.
func NewVertex(t Identifier) (Vertex, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Vertex{}, fmt.Errorf("generating vertex id: %w", err)
	}
	return Vertex{ID: id, Type: t}, nil
}

// EdgeKey identifies an edge. There is no other edge id.
type EdgeKey struct {
	OutboundID uuid.UUID  `json:"outbound_id"`
	Type       Identifier `json:"t"`
	InboundID  uuid.UUID  `json:"inbound_id"`
}

func NewEdgeKey(outboundID uuid.UUID, t Identifier, inboundID uuid.UUID) EdgeKey {
	return EdgeKey{
		OutboundID: outboundID,
		Type:       t,
		InboundID:  inboundID,
	}
}

// Reversed returns the key of the edge pointing the other way.
func (k EdgeKey) Reversed() EdgeKey {
	return EdgeKey{
		OutboundID: k.InboundID,
		Type:       k.Type,
		InboundID:  k.OutboundID,
	}
}

// Edge is an edge as returned by the server. CreatedAt is assigned
// server-side and is zero for edges built locally.
type Edge struct {
	Key       EdgeKey
	CreatedAt time.Time
}

type edgeRecord struct {
	OutboundID uuid.UUID  `json:"outbound_id"`
	Type       Identifier `json:"t"`
	InboundID  uuid.UUID  `json:"inbound_id"`
	CreatedAt  *string    `json:"created_at"`
}

func (e Edge) MarshalJSON() ([]byte, error) {
	r := edgeRecord{
		OutboundID: e.Key.OutboundID,
		Type:       e.Key.Type,
		InboundID:  e.Key.InboundID,
	}
	if !e.CreatedAt.IsZero() {
		ts := e.CreatedAt.UTC().Format(time.RFC3339Nano)
		r.CreatedAt = &ts
	}
	return json.Marshal(r)
}

func (e *Edge) UnmarshalJSON(b []byte) error {
	r := edgeRecord{}
	err := json.Unmarshal(b, &r)
	if err != nil {
		return err
	}

	e.Key = EdgeKey{
		OutboundID: r.OutboundID,
		Type:       r.Type,
		InboundID:  r.InboundID,
	}
	e.CreatedAt = time.Time{}

	if r.CreatedAt != nil {
		ts, err := time.Parse(time.RFC3339Nano, *r.CreatedAt)
		if err != nil {
			return fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = ts.UTC()
	}

	return nil
}

// Equal compares two edges; timestamps are compared as instants.
func (e Edge) Equal(other Edge) bool {
	return e.Key == other.Key && e.CreatedAt.Equal(other.CreatedAt)
}
