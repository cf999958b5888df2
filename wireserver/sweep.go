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

import "time"

// sweepLoop is the auth-grace-period sweep added to resolve spec.md §9's
// open question (see SPEC_FULL.md "Resolved Open Question: auth-state
// timeout" and DESIGN.md). It only runs when Config.AuthGracePeriod is
// positive; disposing a timed-out identity's record drives that
// connection's Reader through its ordinary exit path, exactly like an
// administrative DisconnectClient.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(authGracePeriodCheckInterval)
	defer ticker.Stop()

	grace := s.cfg.AuthGracePeriod.Time()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			for _, identity := range s.registry.PendingIdentities() {
				since, ok := s.registry.PendingSince(identity)
				if !ok || now.Sub(since) < grace {
					continue
				}
				if rec, ok := s.registry.Get(identity); ok {
					_ = rec.Dispose()
				}
			}
		}
	}
}
