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
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("entity not found")
var ErrClosed = errors.New("client closed")
var ErrUnexpectedResult = errors.New("unexpected result")

// ConstructionError is raised by local validation, before anything is sent.
type ConstructionError struct {
	Field  string
	Reason string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransportError covers connection failures, timeouts and malformed
// envelopes. The client never retries them.
type TransportError struct {
	Transport string
	Op        string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %s: %v", e.Transport, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError is a failure reported by the server. Index is the position of
// the failed operation within a batch, or -1 when the whole request failed.
type ServerError struct {
	Code    string
	Message string
	Index   int
}

func (e *ServerError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s (op %d)", e.Code, e.Message, e.Index)
}

// DeserializationError means the response did not have the shape the query
// predicted. It is never retryable.
type DeserializationError struct {
	Slot     int
	Node     string
	Expected string
	Got      string
	Err      error
}

func (e *DeserializationError) Error() string {
	msg := fmt.Sprintf("result slot %d (%s): expected %s", e.Slot, e.Node, e.Expected)
	if e.Got != "" {
		msg += ", got " + e.Got
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

func NewServerError(code, message string, index int) *ServerError {
	return &ServerError{Code: code, Message: message, Index: index}
}

// IsServerError reports whether err carries a server failure, returning it.
func IsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
