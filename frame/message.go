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

// Package frame is a reference implementation of the framed message codec
// the connection lifecycle state machine consumes as an interface. Callers
// should depend on Message and Codec, not on the wire layout implemented
// here — a deployment is free to swap in a different codec entirely.
package frame

// Message is one unit of the framed wire protocol: a payload, a status
// classifying it, and an authentication-material field used only during
// the shared-secret handshake.
type Message interface {
	Payload() []byte
	Status() Status
	AuthData() []byte
}

type message struct {
	status   Status
	payload  []byte
	authData []byte
}

// New builds a Message carrying payload with the given status and no
// authentication material.
func New(status Status, payload []byte) Message {
	return &message{status: status, payload: payload}
}

// NewAuth builds a Message carrying authentication material, used for the
// client's reply to an AuthRequired prompt.
func NewAuth(status Status, payload, authData []byte) Message {
	return &message{status: status, payload: payload, authData: authData}
}

func (m *message) Payload() []byte  { return m.payload }
func (m *message) Status() Status   { return m.status }
func (m *message) AuthData() []byte { return m.authData }
