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
package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanName = "graphlink.round_trip"

type tracedTransport struct {
	name   string
	next   Transport
	tracer trace.Tracer
}

func Tracing(name string, tracer trace.Tracer, next Transport) Transport {
	return &tracedTransport{name: name, next: next, tracer: tracer}
}

func (t *tracedTransport) RoundTrip(ctx context.Context, body []byte) ([]byte, error) {
	ctx, span := t.tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("graphlink.transport", t.name),
		attribute.Int("graphlink.request_bytes", len(body)),
	)

	data, err := t.next.RoundTrip(ctx, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("graphlink.outcome", outcome(ctx, err)))
		return nil, err
	}

	span.SetAttributes(attribute.Int("graphlink.response_bytes", len(data)))
	span.SetStatus(codes.Ok, "")
	return data, nil
}

func (t *tracedTransport) Close() error {
	return t.next.Close()
}
