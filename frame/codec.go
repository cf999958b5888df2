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

package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxPayloadSize bounds a single frame's payload and auth-data fields,
// rejecting a corrupt or hostile length prefix before it drives an
// oversized allocation.
const MaxPayloadSize = 16 * 1024 * 1024

var (
	ErrFrameTooLarge = errors.New("frame: declared length exceeds MaxPayloadSize")
)

// Codec reads and writes Messages on a stream. wireserver depends only on
// this interface, never on the concrete wire layout below.
type Codec interface {
	ReadMessage(r io.Reader) (Message, error)
	WriteMessage(w io.Writer, m Message) error
}

// wireCodec implements Codec with a fixed-order, length-prefixed layout:
//
//	[1 byte status][4 byte BE payload length][payload][4 byte BE auth length][auth data]
type wireCodec struct{}

// NewCodec returns the length-prefixed reference Codec.
func NewCodec() Codec {
	return wireCodec{}
}

func (wireCodec) ReadMessage(r io.Reader) (Message, error) {
	var header [1]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	status := Status(header[0])

	payload, err := readChunk(r)
	if err != nil {
		return nil, err
	}

	authData, err := readChunk(r)
	if err != nil {
		return nil, err
	}

	return &message{status: status, payload: payload, authData: authData}, nil
}

func (wireCodec) WriteMessage(w io.Writer, m Message) error {
	if len(m.Payload()) > MaxPayloadSize || len(m.AuthData()) > MaxPayloadSize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, 0, 9+len(m.Payload())+len(m.AuthData()))
	buf = append(buf, byte(m.Status()))
	buf = appendChunk(buf, m.Payload())
	buf = appendChunk(buf, m.AuthData())

	_, err := w.Write(buf)
	return err
}

func readChunk(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, n)
	}
	if n == 0 {
		return nil, nil
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func appendChunk(buf []byte, chunk []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(chunk)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, chunk...)
}
