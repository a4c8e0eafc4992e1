// Copyright (c) 2026 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package test defines the subset of testing.TB used by the
// helpers under internal, so that the helpers themselves can be tested
// against a fake.
package test

import (
	"fmt"
	"runtime"
	"sync"
)

// T is the subset of testing.TB the helpers need.
type T interface {
	Helper()
	Name() string
	Logf(string, ...any)
	Errorf(string, ...any)
	FailNow()
	Cleanup(func())
}

// FakeReport is the outcome of a function run by WithFake.
type FakeReport struct {
	Failed  bool
	Fatally bool
	Errors  []string
}

// WithFake runs f with a T that records failures instead of
// reporting them to t.
func WithFake(t T, f func(T)) FakeReport {
	fake := fakeT{T: t}

	// FailNow exits the calling goroutine,
	// so f gets a goroutine of its own.
	done := make(chan struct{})
	go func() {
		defer close(done)
		f(&fake)
	}()
	<-done

	fake.mu.RLock()
	defer fake.mu.RUnlock()
	return FakeReport{
		Failed:  fake.failed,
		Fatally: fake.fatal,
		Errors:  fake.errors,
	}
}

type fakeT struct {
	T

	mu     sync.RWMutex
	fatal  bool
	failed bool
	errors []string
}

var _ T = (*fakeT)(nil)

func (t *fakeT) Errorf(msg string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failed = true
	t.errors = append(t.errors, fmt.Sprintf(msg, args...))
}

func (t *fakeT) FailNow() {
	t.mu.Lock()
	t.failed = true
	t.fatal = true
	t.mu.Unlock()

	runtime.Goexit()
}
