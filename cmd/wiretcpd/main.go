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

// Command wiretcpd is the runnable entry point spec.md marks out of scope
// for the library itself ("the CLI/config layer that constructs the
// server"). It loads a wireserver.Config from flags and an optional YAML
// file, wires up the ambient logger, and runs the server until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	libdur "github.com/watsongo/wiretcp/duration"
	liblog "github.com/watsongo/wiretcp/logger"
	libwsv "github.com/watsongo/wiretcp/wireserver"
)

// shutdownTimeout bounds how long wiretcpd waits for in-flight connections
// to drain after receiving an interrupt before giving up and returning.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   "wiretcpd",
		Short: "Framed message TCP server with optional TLS and shared-secret auth",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "path to a YAML configuration file")
	flags.String("listen-ip", "", "interface to bind (empty = all interfaces)")
	flags.Int("listen-port", 8080, "port to listen on")
	flags.Bool("tls", false, "enable TLS mode")
	flags.String("cert-file", "", "PEM certificate file")
	flags.String("key-file", "", "PEM key file")
	flags.String("p12-file", "", "PKCS#12 bundle file")
	flags.String("client-ca-file", "", "client CA bundle for mutual TLS")
	flags.Bool("require-mutual-auth", false, "reject clients without a CA-signed certificate")
	flags.Bool("accept-invalid-peer-cert", false, "skip peer certificate verification")
	flags.String("shared-secret", "", "shared secret gating every connection")
	flags.StringSlice("allowed-peers", nil, "allow-list of peer IPs (empty = allow any)")
	flags.Duration("auth-grace-period", 0, "dispose a connection that never authenticates within this window")
	flags.Bool("debug", false, "raise log verbosity")

	_ = v.BindPFlags(flags)

	cobra.OnInitialize(func() {
		if configFile == "" {
			return
		}
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "wiretcpd: %v\n", err)
			os.Exit(1)
		}
	})

	return cmd
}

func run(cmd *cobra.Command, v *viper.Viper) error {
	cfg := libwsv.Config{
		ListenIP:        v.GetString("listen-ip"),
		ListenPort:      v.GetInt("listen-port"),
		TLS:             v.GetBool("tls"),
		SharedSecret:    v.GetString("shared-secret"),
		AllowedPeers:    v.GetStringSlice("allowed-peers"),
		AuthGracePeriod: libdur.FromStd(v.GetDuration("auth-grace-period")),
		Debug:           v.GetBool("debug"),
	}
	cfg.Certificate.CertFile = v.GetString("cert-file")
	cfg.Certificate.KeyFile = v.GetString("key-file")
	cfg.Certificate.P12File = v.GetString("p12-file")
	cfg.Certificate.ClientCAFile = v.GetString("client-ca-file")
	cfg.Certificate.RequireMutualAuth = v.GetBool("require-mutual-auth")
	cfg.Certificate.AcceptInvalidPeerCert = v.GetBool("accept-invalid-peer-cert")

	lvl := liblog.InfoLevel
	if cfg.Debug {
		lvl = liblog.DebugLevel
	}
	log := liblog.New(os.Stderr, lvl)

	srv, err := libwsv.New(cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	srv.RegisterFuncError(func(errs ...error) {
		for _, e := range errs {
			log.Error(e.Error(), liblog.NewFields())
		}
	})
	srv.RegisterClientConnected(func(identity string) {
		log.Info("client connected", liblog.NewFields().Add("identity", identity))
	})
	srv.RegisterClientDisconnected(func(identity string) {
		log.Info("client disconnected", liblog.NewFields().Add("identity", identity))
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Listen(ctx); err != nil {
		return err
	}
	log.Info("listening", liblog.NewFields().Add("address", cfg.Address()))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
