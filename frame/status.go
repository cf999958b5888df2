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

import "fmt"

// Status classifies a Message for the auth handshake and general dispatch.
type Status uint8

const (
	Normal Status = iota
	AuthRequired
	AuthSuccess
	AuthFailure
	Disconnect
	UnknownError
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Normal:
		return "Normal"
	case AuthRequired:
		return "AuthRequired"
	case AuthSuccess:
		return "AuthSuccess"
	case AuthFailure:
		return "AuthFailure"
	case Disconnect:
		return "Disconnect"
	case UnknownError:
		return "UnknownError"
	default:
		return "unknown status"
	}
}

// MarshalText implements encoding.TextMarshaler so a Status can be logged or
// serialized as its name instead of its numeric value.
func (s Status) MarshalText() ([]byte, error) {
	if s > UnknownError {
		return nil, fmt.Errorf("frame: invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}
