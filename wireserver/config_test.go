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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	libwsv "github.com/watsongo/wiretcp/wireserver"
)

var _ = Describe("Config", func() {
	It("rejects a port below 1", func() {
		cfg := libwsv.Config{ListenIP: "127.0.0.1", ListenPort: 0}
		Expect(cfg.Validate()).To(MatchError(libwsv.ErrInvalidAddress))
	})

	It("binds to all interfaces when ListenIP is empty", func() {
		cfg := libwsv.Config{ListenPort: 19999}
		Expect(cfg.Address()).To(Equal(":19999"))
	})

	It("rejects an allow-list entry that doesn't parse as an IP", func() {
		cfg := libwsv.Config{ListenPort: 19999, AllowedPeers: []string{"not-an-ip"}}
		Expect(cfg.Validate()).To(MatchError(libwsv.ErrInvalidConfig))
	})

	It("accepts a minimal plain configuration", func() {
		cfg := libwsv.Config{ListenPort: 19999}
		Expect(cfg.Validate()).To(Succeed())
	})

	It("requires certificate material when TLS is enabled", func() {
		cfg := libwsv.Config{ListenPort: 19999, TLS: true}
		Expect(cfg.Validate()).To(HaveOccurred())
	})
})
