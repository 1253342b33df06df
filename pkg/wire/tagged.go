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

// Package wire is the canonical JSON encoding shared by every transport:
// query trees, request and response envelopes, and typed query outputs.
// Every union is an object whose "type" field names the variant.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMissingType = errors.New("missing type tag")

// marshalTagged encodes v, which must encode as an object, with a leading
// "type" field.
func marshalTagged(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encoding %s: not an object", tag)
	}

	t, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}

	buf := bytes.Buffer{}
	buf.Grow(len(body) + len(t) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(t)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

func peekTag(b []byte) (string, error) {
	h := struct {
		Type string `json:"type"`
	}{}
	err := json.Unmarshal(b, &h)
	if err != nil {
		return "", err
	}
	if h.Type == "" {
		return "", ErrMissingType
	}
	return h.Type, nil
}

// decodeList decodes a JSON array of tagged values with fn.
func decodeList[T any](b []byte, fn func([]byte) (T, error)) ([]T, error) {
	raw := []json.RawMessage{}
	err := json.Unmarshal(b, &raw)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		v, err := fn(r)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
