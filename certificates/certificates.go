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

// Package certificates builds a *tls.Config from certificate material named
// in configuration: a PEM or PKCS#12 server certificate, an optional client
// CA bundle for mutual authentication, and the minimum protocol version to
// negotiate.
package certificates

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"

	libval "github.com/go-playground/validator/v10"
	"golang.org/x/crypto/pkcs12"
)

var (
	ErrEmptyCertificate  = errors.New("certificates: no certificate material configured")
	ErrCertificateLoad   = errors.New("certificates: failed to load certificate")
	ErrClientCALoad      = errors.New("certificates: failed to load client CA bundle")
	ErrInvalidConfig     = errors.New("certificates: invalid configuration")
)

// Config names the certificate material and TLS policy for one listener.
type Config struct {
	// CertFile and KeyFile point to a PEM certificate/key pair. Used when
	// P12File is empty.
	CertFile string `mapstructure:"certFile" json:"certFile" yaml:"certFile" validate:"required_without=P12File"`
	KeyFile  string `mapstructure:"keyFile" json:"keyFile" yaml:"keyFile" validate:"required_without=P12File"`

	// P12File and P12Password load the server certificate from a PKCS#12
	// bundle instead of a PEM pair.
	P12File     string `mapstructure:"p12File" json:"p12File" yaml:"p12File"`
	P12Password string `mapstructure:"p12Password" json:"-" yaml:"-"`

	// ClientCAFile, when set, is used to verify client certificates.
	ClientCAFile string `mapstructure:"clientCAFile" json:"clientCAFile" yaml:"clientCAFile"`

	// RequireMutualAuth rejects clients that don't present a certificate
	// signed by ClientCAFile. If ClientCAFile is empty, ServerConfig only
	// requests a client certificate and does not verify it; wireserver then
	// still closes a TLS connection whose peer presented no certificate.
	RequireMutualAuth bool `mapstructure:"requireMutualAuth" json:"requireMutualAuth" yaml:"requireMutualAuth"`

	// AcceptInvalidPeerCert disables verification of the client certificate
	// chain, accepting any certificate the client offers.
	AcceptInvalidPeerCert bool `mapstructure:"acceptInvalidPeerCert" json:"acceptInvalidPeerCert" yaml:"acceptInvalidPeerCert"`

	// MinVersion is the lowest TLS protocol version to accept. Zero value
	// defaults to tls.VersionTLS12 in ServerConfig.
	MinVersion uint16 `mapstructure:"minVersion" json:"minVersion" yaml:"minVersion"`
}

// Validate checks the struct tags above and the PEM/PKCS#12 mutual exclusion.
func (c *Config) Validate() error {
	if err := libval.New().Struct(c); err != nil {
		return err
	}
	if c.CertFile != "" && c.P12File != "" {
		return ErrInvalidConfig
	}
	return nil
}

// ServerConfig builds the *tls.Config a listener should wrap its
// net.Listener with.
func (c *Config) ServerConfig() (*tls.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cert, err := c.loadCertificate()
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   c.minVersion(),
	}

	// AcceptInvalidPeerCert and RequireMutualAuth are independent policy
	// knobs: whether a client cert is demanded at all, and whether one
	// presented is chain-verified, don't imply each other. tls.Config has
	// no separate switch for "verify" versus "require" other than the
	// ClientAuthType enum, and InsecureSkipVerify is consulted only on the
	// client side of a handshake (crypto/tls never reads it to decide
	// whether to verify a client certificate), so the two knobs are
	// resolved here into the matching ClientAuthType instead.
	switch {
	case c.ClientCAFile == "":
		cfg.ClientAuth = tls.RequestClientCert
	case c.RequireMutualAuth && c.AcceptInvalidPeerCert:
		cfg.ClientAuth = tls.RequireAnyClientCert
	case c.RequireMutualAuth:
		pool, err := c.loadClientCA()
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	case c.AcceptInvalidPeerCert:
		cfg.ClientAuth = tls.RequestClientCert
	default:
		pool, err := c.loadClientCA()
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}

	return cfg, nil
}

func (c *Config) minVersion() uint16 {
	if c.MinVersion == 0 {
		return tls.VersionTLS12
	}
	return c.MinVersion
}

func (c *Config) loadCertificate() (tls.Certificate, error) {
	switch {
	case c.P12File != "":
		return c.loadPKCS12()
	case c.CertFile != "" && c.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return tls.Certificate{}, errors.Join(ErrCertificateLoad, err)
		}
		return cert, nil
	default:
		return tls.Certificate{}, ErrEmptyCertificate
	}
}

func (c *Config) loadPKCS12() (tls.Certificate, error) {
	raw, err := os.ReadFile(c.P12File)
	if err != nil {
		return tls.Certificate{}, errors.Join(ErrCertificateLoad, err)
	}

	key, leaf, caCerts, err := pkcs12.DecodeChain(raw, c.P12Password)
	if err != nil {
		return tls.Certificate{}, errors.Join(ErrCertificateLoad, err)
	}

	chain := [][]byte{leaf.Raw}
	for _, ca := range caCerts {
		chain = append(chain, ca.Raw)
	}

	return tls.Certificate{
		Certificate: chain,
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

func (c *Config) loadClientCA() (*x509.CertPool, error) {
	raw, err := os.ReadFile(c.ClientCAFile)
	if err != nil {
		return nil, errors.Join(ErrClientCALoad, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, ErrClientCALoad
	}
	return pool, nil
}
