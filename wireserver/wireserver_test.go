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

package wireserver_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	libcrt "github.com/watsongo/wiretcp/certificates"
	libdur "github.com/watsongo/wiretcp/duration"
	libfrm "github.com/watsongo/wiretcp/frame"
	liblog "github.com/watsongo/wiretcp/logger"
	libptc "github.com/watsongo/wiretcp/network/protocol"
	libwsv "github.com/watsongo/wiretcp/wireserver"
)

func TestWireserver(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Wireserver Suite")
}

var portCounter = struct {
	mu   sync.Mutex
	next int
}{next: 19101}

func nextPort() int {
	portCounter.mu.Lock()
	defer portCounter.mu.Unlock()
	p := portCounter.next
	portCounter.next++
	return p
}

// startServer fills in a free loopback port and address, starts cfg's
// server, and returns both the server and the address clients should dial.
func startServer(cfg libwsv.Config) (*libwsv.Server, string) {
	cfg.ListenIP = "127.0.0.1"
	cfg.ListenPort = nextPort()
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.ListenPort)

	log := liblog.New(nil, liblog.ErrorLevel)
	srv, err := libwsv.New(cfg, log, nil)
	Expect(err).ToNot(HaveOccurred())
	Expect(srv.Listen(context.Background())).To(Succeed())
	return srv, addr
}

func dial(addr string) net.Conn {
	var conn net.Conn
	var err error
	Eventually(func() error {
		conn, err = net.Dial("tcp", addr)
		return err
	}, time.Second, 10*time.Millisecond).Should(Succeed())
	return conn
}

// genSelfSignedPEM produces a self-signed ECDSA P-256 certificate/key pair
// for cn, valid for localhost. Every call produces a cert signed by its own
// fresh key, so two certs generated this way never chain to each other.
func genSelfSignedPEM(cn string) (certPEM, keyPEM string, err error) {
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return "", "", err
	}

	tpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost", "127.0.0.1"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tpl, &tpl, &privKey.PublicKey, privKey)
	if err != nil {
		return "", "", err
	}

	var crtBuf bytes.Buffer
	if err := pem.Encode(&crtBuf, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		return "", "", err
	}

	keyDER, err := x509.MarshalECPrivateKey(privKey)
	if err != nil {
		return "", "", err
	}

	var keyBuf bytes.Buffer
	if err := pem.Encode(&keyBuf, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}); err != nil {
		return "", "", err
	}

	return crtBuf.String(), keyBuf.String(), nil
}

func writeTempFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
	return path
}

// dialTLS opens a TCP connection to addr, wraps it in a client-side TLS
// connection offering clientCert, and runs the handshake to completion
// (or failure) before returning.
func dialTLS(addr string, clientCert tls.Certificate) (*tls.Conn, error) {
	conn := dial(addr)
	tlsConn := tls.Client(conn, &tls.Config{
		Certificates:       []tls.Certificate{clientCert},
		InsecureSkipVerify: true, //nolint:gosec // test client trusts the self-signed server cert by construction
	})
	if err := tlsConn.Handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

var _ = Describe("Server", func() {
	var srv *libwsv.Server

	AfterEach(func() {
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}
	})

	Context("plain TCP echo", func() {
		It("dispatches exactly one MessageReceived and fires connect/disconnect in order", func() {
			var mu sync.Mutex
			var events []string
			var gotPayload []byte

			var addr string
			srv, addr = startServer(libwsv.Config{})

			srv.RegisterClientConnected(func(identity string) {
				mu.Lock()
				events = append(events, "connected:"+identity)
				mu.Unlock()
			})
			srv.RegisterClientDisconnected(func(identity string) {
				mu.Lock()
				events = append(events, "disconnected:"+identity)
				mu.Unlock()
			})
			srv.RegisterMessageReceived(func(identity string, payload []byte) {
				mu.Lock()
				gotPayload = payload
				events = append(events, "message:"+identity)
				mu.Unlock()
			})

			conn := dial(addr)
			codec := libfrm.NewCodec()

			Expect(codec.WriteMessage(conn, libfrm.New(libfrm.Normal, []byte{0x01, 0x02, 0x03}))).To(Succeed())

			Eventually(func() []byte {
				mu.Lock()
				defer mu.Unlock()
				return gotPayload
			}, time.Second, 10*time.Millisecond).Should(Equal([]byte{0x01, 0x02, 0x03}))

			_ = conn.Close()

			Eventually(func() int {
				mu.Lock()
				defer mu.Unlock()
				return len(events)
			}, time.Second, 10*time.Millisecond).Should(BeNumerically(">=", 3))

			mu.Lock()
			defer mu.Unlock()
			Expect(events[0]).To(HavePrefix("connected:"))
			Expect(events[len(events)-1]).To(HavePrefix("disconnected:"))
		})
	})

	Context("IP rejection", func() {
		It("closes the socket and never registers the client", func() {
			var addr string
			srv, addr = startServer(libwsv.Config{AllowedPeers: []string{"10.0.0.5"}})

			var connected bool
			srv.RegisterClientConnected(func(identity string) { connected = true })

			conn := dial(addr)
			defer conn.Close()

			buf := make([]byte, 1)
			_ = conn.SetReadDeadline(time.Now().Add(time.Second))
			_, err := conn.Read(buf)
			Expect(err).To(HaveOccurred())

			Expect(connected).To(BeFalse())
			Expect(srv.OpenConnections()).To(Equal(int64(0)))
		})
	})

	Context("shared-secret handshake", func() {
		It("authenticates on a matching secret and dispatches subsequent messages", func() {
			var addr string
			srv, addr = startServer(libwsv.Config{SharedSecret: "s3cr3t"})

			var mu sync.Mutex
			var gotPayload []byte
			srv.RegisterMessageReceived(func(identity string, payload []byte) {
				mu.Lock()
				gotPayload = payload
				mu.Unlock()
			})

			conn := dial(addr)
			defer conn.Close()
			codec := libfrm.NewCodec()

			prompt, err := codec.ReadMessage(conn)
			Expect(err).ToNot(HaveOccurred())
			Expect(prompt.Status()).To(Equal(libfrm.AuthRequired))
			Expect(string(prompt.Payload())).To(Equal("Authentication required"))

			Expect(codec.WriteMessage(conn, libfrm.NewAuth(libfrm.AuthRequired, nil, []byte("s3cr3t")))).To(Succeed())

			reply, err := codec.ReadMessage(conn)
			Expect(err).ToNot(HaveOccurred())
			Expect(reply.Status()).To(Equal(libfrm.AuthSuccess))

			Expect(codec.WriteMessage(conn, libfrm.New(libfrm.Normal, []byte{0xAA}))).To(Succeed())

			Eventually(func() []byte {
				mu.Lock()
				defer mu.Unlock()
				return gotPayload
			}, time.Second, 10*time.Millisecond).Should(Equal([]byte{0xAA}))
		})

		It("rejects a mismatched secret and re-prompts on the next message", func() {
			var addr string
			srv, addr = startServer(libwsv.Config{SharedSecret: "s3cr3t"})

			var dispatched bool
			srv.RegisterMessageReceived(func(identity string, payload []byte) { dispatched = true })

			conn := dial(addr)
			defer conn.Close()
			codec := libfrm.NewCodec()

			_, err := codec.ReadMessage(conn) // initial AuthRequired prompt
			Expect(err).ToNot(HaveOccurred())

			Expect(codec.WriteMessage(conn, libfrm.NewAuth(libfrm.AuthRequired, nil, []byte("wrong")))).To(Succeed())

			reply, err := codec.ReadMessage(conn)
			Expect(err).ToNot(HaveOccurred())
			Expect(reply.Status()).To(Equal(libfrm.AuthFailure))
			Expect(string(reply.Payload())).To(Equal("Authentication declined"))

			Expect(codec.WriteMessage(conn, libfrm.New(libfrm.Normal, []byte("data")))).To(Succeed())

			reprompt, err := codec.ReadMessage(conn)
			Expect(err).ToNot(HaveOccurred())
			Expect(reprompt.Status()).To(Equal(libfrm.AuthRequired))
			Expect(dispatched).To(BeFalse())
		})
	})

	Context("network family", func() {
		It("binds tcp4 when Network is restricted to NetworkTCP4", func() {
			var addr string
			srv, addr = startServer(libwsv.Config{Network: libptc.NetworkTCP4})

			conn := dial(addr)
			defer conn.Close()
			Expect(srv.IsRunning()).To(BeTrue())
		})
	})

	Context("TLS mutual auth", func() {
		var dir, serverCertPath, serverKeyPath, caCertPath string
		var rogueClientCert tls.Certificate

		BeforeEach(func() {
			dir = GinkgoT().TempDir()

			serverCertPEM, serverKeyPEM, err := genSelfSignedPEM("localhost")
			Expect(err).ToNot(HaveOccurred())
			serverCertPath = writeTempFile(dir, "server.crt", serverCertPEM)
			serverKeyPath = writeTempFile(dir, "server.key", serverKeyPEM)

			// The CA file names a cert unrelated to the client's own
			// self-signed cert below, so the client cert never chains to it.
			caCertPEM, _, err := genSelfSignedPEM("test-ca")
			Expect(err).ToNot(HaveOccurred())
			caCertPath = writeTempFile(dir, "ca.crt", caCertPEM)

			rogueCertPEM, rogueKeyPEM, err := genSelfSignedPEM("rogue-client")
			Expect(err).ToNot(HaveOccurred())
			rogueClientCert, err = tls.X509KeyPair([]byte(rogueCertPEM), []byte(rogueKeyPEM))
			Expect(err).ToNot(HaveOccurred())
		})

		It("rejects a client certificate that doesn't chain to the configured CA", func() {
			var addr string
			srv, addr = startServer(libwsv.Config{
				TLS: true,
				Certificate: libcrt.Config{
					CertFile:          serverCertPath,
					KeyFile:           serverKeyPath,
					ClientCAFile:      caCertPath,
					RequireMutualAuth: true,
				},
			})

			conn, err := dialTLS(addr, rogueClientCert)
			if err == nil {
				// Under TLS 1.3 the client's handshake completes before the
				// server has verified the client certificate; the server's
				// rejection then surfaces on the first read.
				_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, err = conn.Read(make([]byte, 1))
				_ = conn.Close()
				if ne, ok := err.(net.Error); ok {
					Expect(ne.Timeout()).To(BeFalse())
				}
			}
			Expect(err).To(HaveOccurred())
		})

		It("still demands a cert but accepts one that doesn't chain to the CA when AcceptInvalidPeerCert is set", func() {
			var addr string
			srv, addr = startServer(libwsv.Config{
				TLS: true,
				Certificate: libcrt.Config{
					CertFile:              serverCertPath,
					KeyFile:               serverKeyPath,
					ClientCAFile:          caCertPath,
					RequireMutualAuth:     true,
					AcceptInvalidPeerCert: true,
				},
			})

			conn, err := dialTLS(addr, rogueClientCert)
			Expect(err).ToNot(HaveOccurred())
			_ = conn.Close()
		})
	})

	Context("administrative disconnect", func() {
		It("disconnects one client without affecting another", func() {
			var addr string
			srv, addr = startServer(libwsv.Config{})

			connA := dial(addr)
			connB := dial(addr)
			defer connB.Close()

			var identities []string
			Eventually(func() int {
				identities = srv.ListClients()
				return len(identities)
			}, time.Second, 10*time.Millisecond).Should(Equal(2))

			var disconnected []string
			var mu sync.Mutex
			srv.RegisterClientDisconnected(func(identity string) {
				mu.Lock()
				disconnected = append(disconnected, identity)
				mu.Unlock()
			})

			target := identities[0]
			Expect(srv.DisconnectClient(target)).To(Succeed())

			Eventually(func() bool {
				return srv.IsClientConnected(target)
			}, time.Second, 10*time.Millisecond).Should(BeFalse())

			Eventually(func() []string {
				mu.Lock()
				defer mu.Unlock()
				return disconnected
			}, time.Second, 10*time.Millisecond).Should(ContainElement(target))

			other := identities[1]
			Expect(srv.IsClientConnected(other)).To(BeTrue())

			_ = connA.Close()
		})
	})

	Context("graceful shutdown under load", func() {
		It("terminates every connection and empties the registry", func() {
			var addr string
			srv, addr = startServer(libwsv.Config{})

			const n = 50
			conns := make([]net.Conn, n)
			for i := 0; i < n; i++ {
				conns[i] = dial(addr)
			}
			defer func() {
				for _, c := range conns {
					_ = c.Close()
				}
			}()

			Eventually(func() int64 {
				return srv.OpenConnections()
			}, 2*time.Second, 10*time.Millisecond).Should(Equal(int64(n)))

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			Expect(srv.Shutdown(ctx)).To(Succeed())

			Expect(srv.OpenConnections()).To(Equal(int64(0)))
			Expect(srv.ListClients()).To(BeEmpty())
			Expect(srv.IsRunning()).To(BeFalse())
			Expect(srv.IsGone()).To(BeTrue())

			srv = nil // already shut down; skip AfterEach's second Shutdown
		})
	})

	Context("auth grace period", func() {
		It("disposes a connection that never completes the handshake in time", func() {
			var addr string
			srv, addr = startServer(libwsv.Config{
				SharedSecret:    "s3cr3t",
				AuthGracePeriod: libdur.Duration(50 * time.Millisecond),
			})

			conn := dial(addr)
			defer conn.Close()

			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, err := libfrm.NewCodec().ReadMessage(conn) // initial AuthRequired prompt
			Expect(err).ToNot(HaveOccurred())

			buf := make([]byte, 1)
			_, err = conn.Read(buf)
			Expect(err).To(HaveOccurred())
		})
	})
})
