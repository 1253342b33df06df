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
package quicstream

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// Handler answers one encoded request.
type Handler func(ctx context.Context, req []byte) ([]byte, error)

// Server accepts connections and serves each stream as one request. It is
// the counterpart of Transport, used by graph servers and tests.
type Server struct {
	addr     string
	tlsConf  *tls.Config
	handler  Handler
	logger   *slog.Logger
	listener *quic.Listener
	quit     chan struct{}
}

func NewServer(addr string, tlsConf *tls.Config, h Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		tlsConf: tlsConf,
		handler: h,
		logger:  logger,
		quit:    make(chan struct{}),
	}
}

// Listen binds the socket so that Addr is known before Run is called.
func (s *Server) Listen() error {
	listener, err := quic.ListenAddr(s.addr, s.tlsConf, nil)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.listener = listener
	return nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) Run() error {
	if s.listener == nil {
		err := s.Listen()
		if err != nil {
			return err
		}
	}

	s.logger.Info("waiting for connections", "addr", s.listener.Addr())

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	go func() {
		<-s.quit
		cancelFn()
	}()

	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				return fmt.Errorf("accepting connection: %w", err)
			}
		}

		go s.serveConn(ctx, conn)
	}
}

func (s *Server) Close() error {
	close(s.quit)
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) serveConn(ctx context.Context, conn quic.Connection) {
	defer conn.CloseWithError(0, "")

	for {
		stm, err := conn.AcceptStream(ctx)
		if err != nil {
			var appErr *quic.ApplicationError
			if !errors.As(err, &appErr) && ctx.Err() == nil {
				s.logger.Debug("accepting stream", "error", err, "remote", conn.RemoteAddr())
			}
			return
		}

		go s.serveStream(ctx, stm)
	}
}

func (s *Server) serveStream(ctx context.Context, stm quic.Stream) {
	req, err := io.ReadAll(io.LimitReader(stm, maxMessageSize))
	if err != nil {
		s.logger.Error("reading request", "error", err)
		stm.CancelWrite(1)
		return
	}

	resp, err := s.handler(ctx, req)
	if err != nil {
		s.logger.Error("handling request", "error", err)
		stm.CancelWrite(1)
		return
	}

	_, err = stm.Write(resp)
	if err != nil {
		s.logger.Error("writing response", "error", err)
		return
	}

	stm.Close()
}

// GenerateTLSConfig returns a server config with a throwaway self-signed
// certificate.
func GenerateTLSConfig() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("creating certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshalling key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("loading key pair: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{NextProto},
	}, nil
}
