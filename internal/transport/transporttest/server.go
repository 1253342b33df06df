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

// Package transporttest provides a scripted graph server for exercising
// transports and the client without a real database.
package transporttest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/jdudmesh/graphlink/pkg/query"
	"github.com/jdudmesh/graphlink/pkg/wire"
)

// ReplyFunc answers a decoded request.
type ReplyFunc func(req *wire.Request) *wire.Response

// Server records every request it sees and answers with its ReplyFunc.
type Server struct {
	mu       sync.Mutex
	reply    ReplyFunc
	requests []*wire.Request
	headers  []http.Header
}

// NewServer returns a server answering with fn, or with Default if fn is
// nil.
func NewServer(fn ReplyFunc) *Server {
	if fn == nil {
		fn = Default
	}
	return &Server{reply: fn}
}

// Serve handles one encoded request.
func (s *Server) Serve(body []byte) ([]byte, error) {
	req, err := wire.DecodeRequest(body)
	if err != nil {
		return wire.EncodeResponse(wire.ErrorResponse("", "bad_request", err.Error()))
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	reply := s.reply
	s.mu.Unlock()

	return wire.EncodeResponse(reply(req))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.headers = append(s.headers, r.Header.Clone())
	s.mu.Unlock()

	resp, err := s.Serve(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

func (s *Server) SetReply(fn ReplyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = fn
}

func (s *Server) Requests() []*wire.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*wire.Request{}, s.requests...)
}

func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header{}, s.headers...)
}

// Last returns the most recent request, or nil.
func (s *Server) Last() *wire.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

// Default answers every op with a plausible empty result: acknowledgements,
// fresh ids, empty outputs shaped like the query, and plugin arguments
// echoed back.
func Default(req *wire.Request) *wire.Response {
	resp := &wire.Response{ID: req.ID, Results: make([]wire.Result, 0, len(req.Ops))}
	for _, op := range req.Ops {
		resp.Results = append(resp.Results, DefaultResult(op))
	}
	return resp
}

func DefaultResult(op wire.Op) wire.Result {
	switch o := op.(type) {
	case wire.CreateVertex, wire.CreateEdge:
		return wire.Bool{Value: true}
	case wire.CreateVertexFromType:
		return wire.ID{ID: uuid.New()}
	case wire.Get:
		outs, err := EmptyOutputs(o.Query.Node)
		if err != nil {
			return wire.Failure{Code: "bad_query", Message: err.Error()}
		}
		return outs
	case wire.ExecutePlugin:
		return wire.JSON{Value: o.Arg}
	default:
		return wire.OK{}
	}
}

// EmptyOutputs builds an outputs result with one empty value per slot of n.
func EmptyOutputs(n query.Node) (wire.Outputs, error) {
	err := query.Validate(n)
	if err != nil {
		return wire.Outputs{}, err
	}

	outs := []wire.Output{}
	for _, slot := range query.Shape(n) {
		switch slot.Kind {
		case query.KindVertices:
			outs = append(outs, wire.VertexOutput{Values: []model.Vertex{}})
		case query.KindEdges:
			outs = append(outs, wire.EdgeOutput{Values: []model.Edge{}})
		case query.KindCount:
			outs = append(outs, wire.CountOutput{})
		case query.KindVertexProperties:
			outs = append(outs, wire.VertexPropertiesOutput{Values: []model.VertexProperties{}})
		case query.KindEdgeProperties:
			outs = append(outs, wire.EdgePropertiesOutput{Values: []model.EdgeProperties{}})
		}
	}
	return wire.NewOutputs(outs...)
}

// Transport calls a Server in process.
type Transport struct {
	Server *Server
	Err    error

	mu     sync.Mutex
	closed bool
}

var ErrTransportClosed = errors.New("transport closed")

func NewTransport(s *Server) *Transport {
	return &Transport{Server: s}
}

func (t *Transport) RoundTrip(ctx context.Context, req []byte) ([]byte, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return nil, &model.TransportError{Transport: "test", Op: "round trip", Err: ErrTransportClosed}
	}
	if t.Err != nil {
		return nil, t.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, &model.TransportError{Transport: "test", Op: "round trip", Err: err}
	}
	return t.Server.Serve(req)
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
