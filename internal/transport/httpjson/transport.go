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

// Package httpjson posts encoded requests to a graph server over HTTP/1.1,
// HTTP/2 or HTTP/3.
package httpjson

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

const (
	ContentTypeHeader = "Content-Type"
	ContentTypeJSON   = "application/json"
	RequestIDHeader   = "x-graphlink-request-id"
	TransactionPath   = "/transaction"

	maxResponseSize = 64 << 20
)

type Config struct {
	Address            string
	Scheme             string
	Email              string
	Secret             string
	Token              string
	HTTP3              bool
	InsecureSkipVerify bool
	Logger             *slog.Logger
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

type Transport struct {
	url          string
	email        string
	secret       string
	token        string
	name         string
	logger       *slog.Logger
	client       *http.Client
	roundTripper *http3.RoundTripper
}

func New(cfg Config) (*Transport, error) {
	if cfg.Address == "" {
		return nil, &model.ConstructionError{Field: "address", Reason: "must not be empty"}
	}

	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}
	if cfg.HTTP3 && scheme != "https" {
		return nil, &model.ConstructionError{Field: "scheme", Reason: "http3 requires https"}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Transport{
		url:    fmt.Sprintf("%s://%s%s", scheme, cfg.Address, TransactionPath),
		email:  cfg.Email,
		secret: cfg.Secret,
		token:  cfg.Token,
		name:   "http",
		logger: logger,
		client: cfg.Client,
	}

	if t.client == nil && cfg.HTTP3 {
		t.name = "http3"
		t.roundTripper = &http3.RoundTripper{
			TLSClientConfig: &tls.Config{
				NextProtos:         []string{http3.NextProtoH3},
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			},
			QUICConfig: &quic.Config{},
		}
		t.client = &http.Client{Transport: t.roundTripper}
	}

	if t.client == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		t.client = &http.Client{Transport: tr}
	}

	logger.Info("http transport ready", "url", t.url, "transport", t.name)

	return t, nil
}

func (t *Transport) RoundTrip(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, t.fail("constructing request", err)
	}

	req.Header.Set(ContentTypeHeader, ContentTypeJSON)
	if id := requestID(body); id != "" {
		req.Header.Set(RequestIDHeader, id)
	}

	switch {
	case t.email != "":
		req.SetBasicAuth(t.email, t.secret)
	case t.token != "":
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, t.fail("sending request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, t.fail("reading response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, data)
	}

	return data, nil
}

func (t *Transport) Close() error {
	t.client.CloseIdleConnections()
	if t.roundTripper != nil {
		return t.roundTripper.Close()
	}
	return nil
}

func (t *Transport) fail(op string, err error) error {
	return &model.TransportError{Transport: t.name, Op: op, Err: err}
}

// statusError reports a non-2xx reply as a server error carrying the status
// code, using the body's error message when there is one.
func statusError(status int, body []byte) error {
	msg := struct {
		Error any `json:"error"`
	}{}
	_ = json.Unmarshal(body, &msg)

	switch e := msg.Error.(type) {
	case string:
		return model.NewServerError(strconv.Itoa(status), e, -1)
	case map[string]any:
		if m, ok := e["message"].(string); ok {
			return model.NewServerError(strconv.Itoa(status), m, -1)
		}
	}
	return model.NewServerError(strconv.Itoa(status), "unexpected response code", -1)
}

func requestID(body []byte) string {
	env := struct {
		ID string `json:"id"`
	}{}
	if json.Unmarshal(body, &env) != nil {
		return ""
	}
	return env.ID
}
