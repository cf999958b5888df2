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
	"net"
	"strconv"

	libval "github.com/go-playground/validator/v10"

	libcrt "github.com/watsongo/wiretcp/certificates"
	libdur "github.com/watsongo/wiretcp/duration"
	libptc "github.com/watsongo/wiretcp/network/protocol"
)

// Config is the fixed-for-lifetime configuration named in spec.md §3.
type Config struct {
	// ListenIP is the interface to bind to; empty means all interfaces.
	ListenIP string `mapstructure:"listenIP" json:"listenIP" yaml:"listenIP"`

	// ListenPort must be >= 1.
	ListenPort int `mapstructure:"listenPort" json:"listenPort" yaml:"listenPort" validate:"required,min=1"`

	// Network selects the TCP family to bind. The zero value defaults to
	// NetworkTCP (dual-stack); NetworkTCP4/NetworkTCP6 restrict the
	// listener to one address family.
	Network libptc.NetworkProtocol `mapstructure:"network" json:"network" yaml:"network"`

	// TLS selects tls mode over plain TCP. Certificate is required when set.
	TLS         bool          `mapstructure:"tls" json:"tls" yaml:"tls"`
	Certificate libcrt.Config `mapstructure:"certificate" json:"certificate" yaml:"certificate" validate:"-"`

	// SharedSecret, when non-empty, gates every connection behind the
	// application-level auth handshake described in spec.md §4.2/§4.3.
	SharedSecret string `mapstructure:"sharedSecret" json:"-" yaml:"-"`

	// AllowedPeers is the IP allow-list; empty means allow any peer.
	AllowedPeers []string `mapstructure:"allowedPeers" json:"allowedPeers" yaml:"allowedPeers"`

	// AuthGracePeriod bounds how long an identity may remain in the
	// Unauthenticated set before its Client Record is disposed. Zero
	// disables the sweep, matching spec.md's literal (unbounded) behavior.
	AuthGracePeriod libdur.Duration `mapstructure:"authGracePeriod" json:"authGracePeriod" yaml:"authGracePeriod"`

	// Debug is read by cmd/wiretcpd to build its logger at DebugLevel. The
	// Server itself does not consult it; its verbosity is that of the
	// Logger passed to New.
	Debug bool `mapstructure:"debug" json:"debug" yaml:"debug"`
}

// Validate checks struct tags, the TLS certificate material when TLS is
// enabled, and that every allow-list entry parses as an IP address.
func (c Config) Validate() error {
	if c.ListenPort < 1 {
		return ErrInvalidAddress
	}
	if err := libval.New().Struct(&c); err != nil {
		return err
	}
	if c.TLS {
		if err := c.Certificate.Validate(); err != nil {
			return err
		}
	}
	for _, ip := range c.AllowedPeers {
		if net.ParseIP(ip) == nil {
			return ErrInvalidConfig
		}
	}
	return nil
}

// Address returns the host:port this server binds to.
func (c Config) Address() string {
	return net.JoinHostPort(c.ListenIP, strconv.Itoa(c.ListenPort))
}

// network returns the effective network family to bind, defaulting an
// unset Network to NetworkTCP.
func (c Config) network() libptc.NetworkProtocol {
	if c.Network == libptc.NetworkEmpty {
		return libptc.NetworkTCP
	}
	return c.Network
}

// allowed reports whether host is permitted to connect, per the allow-list.
func (c Config) allowed(host string) bool {
	if len(c.AllowedPeers) == 0 {
		return true
	}
	for _, ip := range c.AllowedPeers {
		if ip == host {
			return true
		}
	}
	return false
}
