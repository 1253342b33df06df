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
)

// Response answers a Request. Error is set when the whole request failed,
// in which case Results is empty; otherwise there is one result per op.
type Response struct {
	ID      string
	Error   *ErrorBody
	Results []Result
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Result interface {
	ResultType() string
}

type OK struct{}

type Bool struct {
	Value bool `json:"value"`
}

type ID struct {
	ID uuid.UUID `json:"id"`
}

// Outputs holds the raw output values of a get; see DecodeOutputs.
type Outputs struct {
	Values []json.RawMessage `json:"values"`
}

type JSON struct {
	Value json.RawMessage `json:"value"`
}

// Failure is a per-op error within an otherwise successful batch.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (OK) ResultType() string      { return "ok" }
func (Bool) ResultType() string    { return "bool" }
func (ID) ResultType() string      { return "id" }
func (Outputs) ResultType() string { return "outputs" }
func (JSON) ResultType() string    { return "json" }
func (Failure) ResultType() string { return "error" }

func EncodeResult(r Result) ([]byte, error) {
	return marshalTagged(r.ResultType(), r)
}

func DecodeResult(b []byte) (Result, error) {
	tag, err := peekTag(b)
	if err != nil {
		return nil, err
	}

	var res Result
	switch tag {
	case "ok":
		res = OK{}
	case "bool":
		v := Bool{}
		err = json.Unmarshal(b, &v)
		res = v
	case "id":
		v := ID{}
		err = json.Unmarshal(b, &v)
		res = v
	case "outputs":
		v := Outputs{}
		err = json.Unmarshal(b, &v)
		res = v
	case "json":
		v := JSON{}
		err = json.Unmarshal(b, &v)
		res = v
	case "error":
		v := Failure{}
		err = json.Unmarshal(b, &v)
		res = v
	default:
		return nil, fmt.Errorf("unknown result type %q", tag)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s result: %w", tag, err)
	}
	return res, nil
}

type responseJSON struct {
	ID      string            `json:"id"`
	Error   *ErrorBody        `json:"error,omitempty"`
	Results []json.RawMessage `json:"results"`
}

func (r *Response) MarshalJSON() ([]byte, error) {
	env := responseJSON{
		ID:      r.ID,
		Error:   r.Error,
		Results: make([]json.RawMessage, 0, len(r.Results)),
	}
	for i, res := range r.Results {
		data, err := EncodeResult(res)
		if err != nil {
			return nil, fmt.Errorf("encoding result %d: %w", i, err)
		}
		env.Results = append(env.Results, data)
	}
	return json.Marshal(env)
}

func (r *Response) UnmarshalJSON(b []byte) error {
	env := struct {
		ID      string          `json:"id"`
		Error   *ErrorBody      `json:"error"`
		Results json.RawMessage `json:"results"`
	}{}
	err := json.Unmarshal(b, &env)
	if err != nil {
		return err
	}
	r.ID = env.ID
	r.Error = env.Error
	r.Results = nil
	if len(env.Results) == 0 {
		return nil
	}
	r.Results, err = decodeList(env.Results, DecodeResult)
	return err
}

func EncodeResponse(r *Response) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeResponse(b []byte) (*Response, error) {
	r := &Response{}
	err := json.Unmarshal(b, r)
	if err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return r, nil
}

// ErrorResponse builds the reply to a request that failed as a whole.
func ErrorResponse(id, code, message string) *Response {
	return &Response{ID: id, Error: &ErrorBody{Code: code, Message: message}}
}

// Err converts a whole-request failure into a ServerError, or returns nil.
func (r *Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return model.NewServerError(r.Error.Code, r.Error.Message, -1)
}
