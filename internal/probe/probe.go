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

// Package probe waits for a deployed application to serve its greeting.
//
// Deployment tests use it after pushing the application: the probe polls
// the site until its response body contains the expected text, treating
// connection errors and unexpected bodies alike as "not ready yet".
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"helloapp/internal/clock"
	"helloapp/internal/server"
)

// ErrNotReady is returned when the application did not serve the
// expected content before the probe timed out.
var ErrNotReady = errors.New("app failed to start in timeout")

const (
	// DefaultTimeout is how long Wait polls before giving up.
	DefaultTimeout = 300 * time.Second

	// DefaultInterval is the pause between two attempts.
	DefaultInterval = time.Second

	// Bodies larger than this are truncated before matching.
	maxBodySize = 1 << 20
)

// Option customizes a Prober.
type Option interface{ apply(*Prober) }

type optionFunc func(*Prober)

func (f optionFunc) apply(p *Prober) { f(p) }

// Expect sets the text the response body must contain.
//
// Defaults to the application's greeting.
func Expect(s string) Option {
	return optionFunc(func(p *Prober) { p.expect = s })
}

// Timeout bounds the whole wait.
//
// Defaults to DefaultTimeout.
func Timeout(d time.Duration) Option {
	return optionFunc(func(p *Prober) { p.timeout = d })
}

// Interval sets the pause between attempts.
//
// Defaults to DefaultInterval.
func Interval(d time.Duration) Option {
	return optionFunc(func(p *Prober) { p.interval = d })
}

// WithClient sets the HTTP client used for attempts.
func WithClient(c *http.Client) Option {
	return optionFunc(func(p *Prober) { p.client = c })
}

// WithLogger sets the logger attempts are reported to.
func WithLogger(log *zap.Logger) Option {
	return optionFunc(func(p *Prober) { p.log = log })
}

// WithClock sets the clock used for the deadline and the pauses.
func WithClock(c clock.Clock) Option {
	return optionFunc(func(p *Prober) { p.clock = c })
}

// Prober polls a URL until it serves the expected content.
type Prober struct {
	expect   string
	timeout  time.Duration
	interval time.Duration
	client   *http.Client
	log      *zap.Logger
	clock    clock.Clock
}

// New builds a Prober.
func New(opts ...Option) *Prober {
	p := &Prober{
		expect:   server.Greeting,
		timeout:  DefaultTimeout,
		interval: DefaultInterval,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      zap.NewNop(),
		clock:    clock.System,
	}
	for _, o := range opts {
		o.apply(p)
	}
	return p
}

// Wait polls url until it answers 2xx with a body containing
// the expected text.
//
// It returns an error wrapping ErrNotReady, combined with the failure of
// the last attempt, if the timeout passes first, and ctx's error if ctx
// ends first.
func (p *Prober) Wait(ctx context.Context, url string) error {
	// A malformed URL will never become ready.
	if _, err := http.NewRequest(http.MethodGet, url, nil); err != nil {
		return fmt.Errorf("probe %v: %w", url, err)
	}

	wctx, cancel := p.clock.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := p.clock.Now()
	var lastErr error
	for attempt := 1; ; attempt++ {
		err := p.check(wctx, url)
		if err == nil {
			p.log.Info("Application is ready",
				zap.String("url", url),
				zap.Int("attempts", attempt),
				zap.Duration("elapsed", p.clock.Since(start)),
			)
			return nil
		}
		// An attempt cut short by the deadline says nothing about the app.
		if lastErr == nil || wctx.Err() == nil {
			lastErr = err
		}
		p.log.Debug("Application not ready",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-wctx.Done():
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("probe %v: %w", url, err)
			}
			return multierr.Append(
				fmt.Errorf("probe %v after %v: %w", url, p.timeout, ErrNotReady),
				lastErr,
			)
		case <-p.clock.After(p.interval):
		}
	}
}

func (p *Prober) check(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	res, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected status %v", res.Status)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if !strings.Contains(string(body), p.expect) {
		return fmt.Errorf("%v: body does not contain %q", res.Status, p.expect)
	}
	return nil
}

// Wait polls url with a Prober built from opts.
func Wait(ctx context.Context, url string, opts ...Option) error {
	return New(opts...).Wait(ctx, url)
}
