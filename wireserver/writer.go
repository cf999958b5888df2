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
	liblog "github.com/watsongo/wiretcp/logger"

	libfrm "github.com/watsongo/wiretcp/frame"
)

// Send serializes payload as a Normal message and writes it to identity's
// stream, per the Writer (spec.md §4.4). It returns false, without
// panicking or tearing down the connection, when the identity is unknown
// or the write fails; the owning Reader will observe a failed stream on
// its own next iteration.
func (s *Server) Send(identity string, payload []byte) bool {
	return s.SendMessage(identity, libfrm.New(libfrm.Normal, payload))
}

// SendMessage is Send for a caller-constructed Message.
func (s *Server) SendMessage(identity string, msg libfrm.Message) bool {
	rec, ok := s.lookupRecord(identity)
	if !ok {
		s.log.Warning("send to unknown identity", liblog.NewFields().Add("identity", identity))
		return false
	}
	return s.sendTo(rec, msg)
}

// SendAsync is the asynchronous variant of Send: it dispatches the write on
// a detached goroutine and never reports failure to the caller.
func (s *Server) SendAsync(identity string, payload []byte) {
	go s.Send(identity, payload)
}

// SendMessageAsync is the asynchronous variant of SendMessage.
func (s *Server) SendMessageAsync(identity string, msg libfrm.Message) {
	go s.SendMessage(identity, msg)
}

// sendTo holds the single process-wide send mutual-exclusion primitive for
// the duration of one write, serializing writes across every client on the
// server, per spec.md §4.4/§5.
func (s *Server) sendTo(rec *clientRecord, msg libfrm.Message) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if err := s.codec.WriteMessage(rec.stream(), msg); err != nil {
		s.log.Warning("write failed", liblog.NewFields().Add("identity", rec.identity).Add("error", err.Error()))
		return false
	}
	return true
}

func (s *Server) lookupRecord(identity string) (*clientRecord, bool) {
	r, ok := s.registry.Get(identity)
	if !ok {
		return nil, false
	}
	rec, ok := r.(*clientRecord)
	return rec, ok
}
