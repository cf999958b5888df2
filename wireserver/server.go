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

// Package wireserver implements the connection lifecycle state machine: a
// listening Acceptor, a per-connection Initializer (TLS handshake, Registry
// insertion, auth prompt), a per-connection Reader (framed reads, auth
// gate, dispatch), and a Writer serializing every outbound write through a
// single process-wide lock.
package wireserver

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	libfrm "github.com/watsongo/wiretcp/frame"
	liblog "github.com/watsongo/wiretcp/logger"
	libreg "github.com/watsongo/wiretcp/registry"
)

// Server is one listening TCP endpoint driving the lifecycle described in
// spec.md §2-§5.
type Server struct {
	cfg Config
	log liblog.Logger

	codec    libfrm.Codec
	registry *libreg.Registry
	metrics  *serverMetrics

	tlsConfig *tls.Config

	onConnected    ClientConnectedFunc
	onDisconnected ClientDisconnectedFunc
	onMessage      MessageReceivedFunc
	onError        func(errs ...error)

	sendMu sync.Mutex

	mu       sync.Mutex
	listener net.Listener
	eg       *errgroup.Group
	ctx      context.Context
	cancel   context.CancelFunc
	connWG   sync.WaitGroup

	running atomic.Bool
	gone    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// New validates cfg and returns a Server bound to it. reg may be nil to
// skip Prometheus registration (tests typically pass nil or a fresh
// prometheus.NewRegistry()). The server does not start listening until
// Listen is called.
func New(cfg Config, log liblog.Logger, reg prometheus.Registerer) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = liblog.New(nil, liblog.InfoLevel)
	}

	s := &Server{
		cfg:      cfg,
		log:      log,
		codec:    libfrm.NewCodec(),
		registry: libreg.New(),
		metrics:  newServerMetrics(reg),
		done:     make(chan struct{}),
	}

	if cfg.TLS {
		tc, err := cfg.Certificate.ServerConfig()
		if err != nil {
			return nil, err
		}
		s.tlsConfig = tc
	}

	return s, nil
}

// Listen binds the listening socket and starts the Acceptor (and, when
// AuthGracePeriod is positive, the auth-grace sweep) as detached goroutines
// governed by ctx. It returns once the socket is bound; it does not block
// for the server's lifetime.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrAlreadyRunning
	}
	if s.gone.Load() {
		return ErrServerClosed
	}

	ln, err := net.Listen(s.cfg.network().Code(), s.cfg.Address())
	if err != nil {
		return err
	}

	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(s.ctx)
	s.eg = eg
	s.ctx = egCtx

	s.running.Store(true)

	eg.Go(func() error {
		s.acceptLoop()
		return nil
	})

	if s.cfg.AuthGracePeriod > 0 {
		eg.Go(func() error {
			s.sweepLoop()
			return nil
		})
	}

	return nil
}

// Shutdown fires the cancellation signal, closes the listener, disposes
// every live Client Record (driving each Reader's exit path), and waits
// for every goroutine to finish or ctx to expire. Idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		ln := s.listener
		cancel := s.cancel
		s.mu.Unlock()

		s.gone.Store(true)

		if cancel != nil {
			cancel()
		}
		if ln != nil {
			_ = ln.Close()
		}

		for _, id := range s.registry.Identities() {
			if rec, ok := s.registry.Get(id); ok {
				_ = rec.Dispose()
			}
		}

		waited := make(chan struct{})
		go func() {
			s.connWG.Wait()
			if s.eg != nil {
				_ = s.eg.Wait()
			}
			close(waited)
		}()

		select {
		case <-waited:
		case <-ctx.Done():
			shutdownErr = ctx.Err()
		}

		s.running.Store(false)
		close(s.done)
	})
	return shutdownErr
}

// Close is Shutdown with a background context, matching the teacher's
// narrower-interface Close() method.
func (s *Server) Close() error {
	return s.Shutdown(context.Background())
}

// Dispose is the public operation named in spec.md §4.5/§6.
func (s *Server) Dispose() error {
	return s.Close()
}

// Done returns a channel closed once Shutdown has completed.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// IsRunning reports whether the Acceptor is currently accepting.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// IsGone reports whether Shutdown has been called.
func (s *Server) IsGone() bool {
	return s.gone.Load()
}

// OpenConnections returns the active-client counter.
func (s *Server) OpenConnections() int64 {
	return s.registry.ActiveCount()
}

// IsClientConnected reports whether identity has a live Client Record.
func (s *Server) IsClientConnected(identity string) bool {
	_, ok := s.registry.Get(identity)
	return ok
}

// ListClients returns a snapshot of every connected identity.
func (s *Server) ListClients() []string {
	return s.registry.Identities()
}

// DisconnectClient disposes identity's Client Record; its Reader observes
// the resulting stream closure and runs the normal exit path. Absent
// identities are a no-op, per spec.md §4.5/§8.
func (s *Server) DisconnectClient(identity string) error {
	rec, ok := s.registry.Get(identity)
	if !ok {
		s.logError(ErrClientNotFound)
		return nil
	}
	return rec.Dispose()
}

const authGracePeriodCheckInterval = time.Second
