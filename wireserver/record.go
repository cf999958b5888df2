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
	"crypto/tls"
	"io"
	"net"
	"sync"
)

// clientRecord is the concrete Client Record named in spec.md §3: it owns
// exactly one accepted socket and, when TLS is configured, the TLS stream
// layered on top. Disposal is idempotent.
type clientRecord struct {
	identity string

	conn    net.Conn
	tlsConn *tls.Conn

	disposeOnce sync.Once
	disposeErr  error
}

// stream returns the TLS stream when present, otherwise the raw transport
// stream. Only the owning Reader reads from it; writes go through the
// server's single send mutex.
func (r *clientRecord) stream() io.ReadWriter {
	if r.tlsConn != nil {
		return r.tlsConn
	}
	return r.conn
}

// Dispose releases the TLS stream (which closes the underlying socket) or,
// for a plain connection, the socket directly. Safe to call more than once
// and safe to call concurrently with the owning Reader's blocked read,
// which then fails cleanly and drives that Reader's exit path.
func (r *clientRecord) Dispose() error {
	r.disposeOnce.Do(func() {
		if r.tlsConn != nil {
			r.disposeErr = r.tlsConn.Close()
			return
		}
		r.disposeErr = r.conn.Close()
	})
	return r.disposeErr
}
