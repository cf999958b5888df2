/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package wireserver

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	libfrm "github.com/watsongo/wiretcp/frame"
	liblog "github.com/watsongo/wiretcp/logger"
)

const tlsHandshakeTimeout = 10 * time.Second

// handleAccepted is the Connection Initializer (spec.md §4.2) followed,
// on success, directly by the Reader (spec.md §4.3) on the same goroutine:
// the Initializer hands off to the Reader without returning control
// anywhere else, so there is no benefit to a second goroutine hop.
func (s *Server) handleAccepted(conn net.Conn) {
	defer s.connWG.Done()

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetLinger(0)
	}

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	if !s.cfg.allowed(host) {
		s.log.Debug("peer rejected by allow-list", liblog.NewFields().Add("peer", host))
		_ = conn.Close()
		return
	}

	identity := conn.RemoteAddr().String()
	rec := &clientRecord{identity: identity, conn: conn}

	if s.cfg.TLS {
		if !s.handshake(rec) {
			return
		}
	}

	s.registry.Insert(identity, rec)
	s.metrics.openConnections.Set(float64(s.registry.ActiveCount()))

	if s.cfg.SharedSecret != "" {
		s.registry.MarkPending(identity, time.Now())
		s.sendTo(rec, libfrm.New(libfrm.AuthRequired, []byte("Authentication required")))
	}

	if s.onConnected != nil {
		go s.onConnected(identity)
	}

	s.readLoop(identity, rec)
}

// handshake performs step 1 of the Initializer: wrap the transport stream
// in a TLS server stream, negotiate, and verify the policy flags. Any
// failure disposes the record without starting a Reader.
func (s *Server) handshake(rec *clientRecord) bool {
	tlsConn := tls.Server(rec.conn, s.tlsConfig)

	ctx, cancel := context.WithTimeout(s.ctx, tlsHandshakeTimeout)
	err := tlsConn.HandshakeContext(ctx)
	cancel()

	if err != nil {
		if isExpectedHandshakeError(err) {
			s.log.Debug("tls handshake failed", liblog.NewFields().Add("error", err.Error()))
		} else {
			s.log.Error("tls handshake failed", liblog.NewFields().Add("error", err.Error()))
		}
		_ = rec.conn.Close()
		return false
	}

	state := tlsConn.ConnectionState()
	if !state.HandshakeComplete {
		_ = tlsConn.Close()
		return false
	}
	if s.cfg.Certificate.RequireMutualAuth && len(state.PeerCertificates) == 0 {
		s.log.Warning("tls mutual auth required but peer presented no certificate", liblog.NewFields())
		_ = tlsConn.Close()
		return false
	}

	rec.tlsConn = tlsConn
	return true
}

func isExpectedHandshakeError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "EOF")
}

// readLoop is the Reader (spec.md §4.3). It blocks on one framed read per
// iteration; a closed stream surfaces as a read error, which is how
// disconnect is discovered (see DESIGN.md's "Design-note deviation" on
// blocking framed reads in place of busy-polling).
func (s *Server) readLoop(identity string, rec *clientRecord) {
	defer s.finishConnection(identity, rec)

	for {
		msg, err := s.codec.ReadMessage(rec.stream())
		if err != nil {
			return
		}

		if s.cfg.SharedSecret != "" && s.registry.IsPending(identity) {
			s.handleAuthMessage(identity, rec, msg)
			continue
		}

		if s.onMessage != nil {
			s.metrics.messagesIn.Inc()
			payload := msg.Payload()
			go s.onMessage(identity, payload)
		}
	}
}

// handleAuthMessage implements the auth gate of spec.md §4.3 step 3.
func (s *Server) handleAuthMessage(identity string, rec *clientRecord, msg libfrm.Message) {
	if msg.Status() != libfrm.AuthRequired {
		s.sendTo(rec, libfrm.New(libfrm.AuthRequired, []byte("Authentication required")))
		return
	}

	if len(msg.AuthData()) == 0 {
		s.sendTo(rec, libfrm.New(libfrm.AuthFailure, []byte("No authentication material")))
		return
	}

	got := strings.TrimSpace(string(msg.AuthData()))
	want := strings.TrimSpace(s.cfg.SharedSecret)

	if got == want {
		s.registry.ClearPending(identity)
		s.sendTo(rec, libfrm.New(libfrm.AuthSuccess, []byte("Authentication successful")))
		return
	}

	s.metrics.authFailures.Inc()
	s.sendTo(rec, libfrm.New(libfrm.AuthFailure, []byte("Authentication declined")))
}

// finishConnection is the Reader's exit path (spec.md §4.3): it must run
// exactly once per Client Record no matter how the loop broke.
func (s *Server) finishConnection(identity string, rec *clientRecord) {
	s.registry.RemoveRecord(identity, rec)
	s.metrics.openConnections.Set(float64(s.registry.ActiveCount()))

	if s.onDisconnected != nil {
		go s.onDisconnected(identity)
	}

	_ = rec.Dispose()
}
