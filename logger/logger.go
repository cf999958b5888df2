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

// Package logger wraps logrus with the structured-fields vocabulary the rest
// of this module uses to log connection lifecycle events: a Fields map that
// clones-on-write so a base logger can be safely specialized per connection,
// and a small Level enum decoupled from logrus's own.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is a structured logger keyed by Fields, backed by logrus.
type Logger interface {
	SetLevel(lvl Level)
	GetLevel() Level

	WithFields(f Fields) Logger

	Debug(message string, f Fields)
	Info(message string, f Fields)
	Warning(message string, f Fields)
	Error(message string, f Fields)
	Fatal(message string, f Fields)
}

type logger struct {
	mu  sync.RWMutex
	lvl Level
	log *logrus.Logger
	fld Fields
}

// New returns a Logger writing JSON-formatted entries to w at the given
// minimum level.
func New(w io.Writer, lvl Level) Logger {
	if w == nil {
		w = os.Stderr
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	l.SetLevel(lvl.logrus())

	return &logger{lvl: lvl, log: l, fld: NewFields()}
}

func (o *logger) SetLevel(lvl Level) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lvl = lvl
	o.log.SetLevel(lvl.logrus())
}

func (o *logger) GetLevel() Level {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lvl
}

// WithFields returns a new Logger that merges f into every entry it emits,
// sharing the underlying logrus instance and level.
func (o *logger) WithFields(f Fields) Logger {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return &logger{
		lvl: o.lvl,
		log: o.log,
		fld: o.fld.Merge(f),
	}
}

func (o *logger) entry(f Fields) *logrus.Entry {
	merged := o.fld.Merge(f)
	return o.log.WithFields(logrus.Fields(merged))
}

func (o *logger) Debug(message string, f Fields)   { o.entry(f).Debug(message) }
func (o *logger) Info(message string, f Fields)    { o.entry(f).Info(message) }
func (o *logger) Warning(message string, f Fields) { o.entry(f).Warning(message) }
func (o *logger) Error(message string, f Fields)   { o.entry(f).Error(message) }
func (o *logger) Fatal(message string, f Fields)   { o.entry(f).Fatal(message) }
