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

// Package grpcjson carries encoded requests over a unary gRPC method. The
// messages are the JSON envelopes themselves, moved by a pass-through codec,
// so no generated stubs are involved.
package grpcjson

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

const (
	ServiceName   = "graphlink.v1.Graph"
	ExecuteMethod = "/" + ServiceName + "/Execute"
	CodecName     = "json"
)

// Frame is one encoded request or response.
type Frame struct {
	Data []byte
}

// Codec passes frames through untouched.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*Frame)
	if !ok {
		return nil, fmt.Errorf("grpcjson: cannot marshal %T", v)
	}
	return f.Data, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*Frame)
	if !ok {
		return fmt.Errorf("grpcjson: cannot unmarshal into %T", v)
	}
	f.Data = append([]byte(nil), data...)
	return nil
}

func (Codec) Name() string {
	return CodecName
}

// Server executes encoded requests.
type Server interface {
	Execute(ctx context.Context, req []byte) ([]byte, error)
}

// ServerFunc adapts a function to Server.
type ServerFunc func(ctx context.Context, req []byte) ([]byte, error)

func (f ServerFunc) Execute(ctx context.Context, req []byte) ([]byte, error) {
	return f(ctx, req)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Execute",
			Handler:    executeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "graphlink/v1/graph.json",
}

// RegisterServer registers srv. The grpc.Server must have been created with
// grpc.ForceServerCodec(Codec{}).
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

func executeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &Frame{}
	err := dec(in)
	if err != nil {
		return nil, err
	}

	exec := func(ctx context.Context, req any) (any, error) {
		out, err := srv.(Server).Execute(ctx, req.(*Frame).Data)
		if err != nil {
			return nil, err
		}
		return &Frame{Data: out}, nil
	}

	if interceptor == nil {
		return exec(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ExecuteMethod,
	}
	return interceptor(ctx, in, info, exec)
}
