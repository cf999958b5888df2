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

// ClientConnectedFunc fires once a Client Record has cleared the Initializer
// (TLS handshake, Registry insertion, auth prompt), on a detached goroutine.
type ClientConnectedFunc func(identity string)

// ClientDisconnectedFunc fires once the Reader exit path has removed an
// identity from the Registry, on a detached goroutine.
type ClientDisconnectedFunc func(identity string)

// MessageReceivedFunc fires for every payload the Reader dispatches after
// the auth gate, on a detached goroutine per message.
type MessageReceivedFunc func(identity string, payload []byte)

// RegisterClientConnected sets the callback fired after a connection is
// admitted and registered. Safe to call before Listen only.
func (s *Server) RegisterClientConnected(f ClientConnectedFunc) {
	s.onConnected = f
}

// RegisterClientDisconnected sets the callback fired after a connection's
// exit path has completed.
func (s *Server) RegisterClientDisconnected(f ClientDisconnectedFunc) {
	s.onDisconnected = f
}

// RegisterMessageReceived sets the callback fired for each dispatched
// payload.
func (s *Server) RegisterMessageReceived(f MessageReceivedFunc) {
	s.onMessage = f
}

// RegisterFuncError sets the callback fired for errors worth surfacing,
// following the socket.Server convention.
func (s *Server) RegisterFuncError(f func(errs ...error)) {
	s.onError = f
}

func (s *Server) logError(err error) {
	if err == nil || s.onError == nil {
		return
	}
	s.onError(err)
}
