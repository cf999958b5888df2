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

// Package duration wraps time.Duration with a days-aware String
// representation and the marshal/unmarshal glue needed to carry timeout
// and grace-period fields in YAML and JSON configuration files.
package duration

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type Duration time.Duration

// Parse parses a duration string as accepted by time.ParseDuration, with an
// optional leading "Nd" day count (as String produces), after stripping
// quotes so values copy-pasted from YAML/JSON work unmodified.
func Parse(s string) (Duration, error) {
	return parseString(s)
}

// ParseByte is Parse over a byte slice, used by the Unmarshal family.
func ParseByte(p []byte) (Duration, error) {
	return parseString(string(p))
}

func parseString(s string) (Duration, error) {
	s = strings.ReplaceAll(s, "\"", "")
	s = strings.ReplaceAll(s, "'", "")

	neg := strings.HasPrefix(s, "-")
	rest := strings.TrimPrefix(s, "-")

	var days int64
	if i := strings.IndexByte(rest, 'd'); i >= 0 {
		n, err := strconv.ParseInt(rest[:i], 10, 64)
		if err != nil {
			return 0, err
		}
		days = n
		rest = rest[i+1:]
	}

	var rem time.Duration
	if rest != "" {
		v, err := time.ParseDuration(rest)
		if err != nil {
			return 0, err
		}
		rem = v
	}

	total := time.Duration(days)*24*time.Hour + rem
	if neg {
		total = -total
	}
	return Duration(total), nil
}

// Seconds returns a Duration of i seconds.
func Seconds(i int64) Duration { return Duration(time.Duration(i) * time.Second) }

// Minutes returns a Duration of i minutes.
func Minutes(i int64) Duration { return Duration(time.Duration(i) * time.Minute) }

// Hours returns a Duration of i hours.
func Hours(i int64) Duration { return Duration(time.Duration(i) * time.Hour) }

// Days returns a Duration of i days.
func Days(i int64) Duration { return Duration(time.Duration(i) * 24 * time.Hour) }

// FromStd converts a time.Duration to a Duration.
func FromStd(d time.Duration) Duration { return Duration(d) }

// Time returns the time.Duration underlying this value.
func (d Duration) Time() time.Duration { return time.Duration(d) }

// IsZero reports whether the duration is exactly zero.
func (d Duration) IsZero() bool { return d == 0 }

// Days returns the whole number of 24h days in the duration.
func (d Duration) Days() int64 {
	t := math.Floor(d.Time().Hours() / 24)
	if t > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(t)
}

// String renders the duration as "NdT" where N is the day count (omitted
// when zero) and T is the standard time.Duration formatting of the
// remainder.
func (d Duration) String() string {
	var (
		s string
		n = d.Days()
		i = d.Time()
	)

	if n > 0 {
		i -= time.Duration(n) * 24 * time.Hour
		s = fmt.Sprintf("%dd", n)
	}

	if n < 1 || i > 0 {
		s += i.String()
	}

	return s
}
