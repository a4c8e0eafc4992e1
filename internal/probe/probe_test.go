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

package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"helloapp/internal/clock"
	"helloapp/internal/server"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testClient leaves no idle connections behind.
func testClient() *http.Client {
	return &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
}

// warmingServer answers 503 for the first n requests
// and the greeting afterwards.
func warmingServer(t *testing.T, n int32) (*httptest.Server, *atomic.Int32) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= n {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_, err := io.WriteString(w, server.Greeting)
		assert.NoError(t, err)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// stallingServer answers "wrong" to the first request
// and holds every later one until the client gives up.
func stallingServer(t *testing.T) *httptest.Server {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			_, err := io.WriteString(w, "wrong")
			assert.NoError(t, err)
			return
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return srv
}

// deadAddr returns a URL nothing listens on.
func deadAddr(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "http://" + addr + "/"
}

func TestWaitReadyImmediately(t *testing.T) {
	t.Parallel()

	srv, hits := warmingServer(t, 0)
	err := Wait(context.Background(), srv.URL+"/",
		WithClient(testClient()),
		Interval(time.Millisecond),
		Timeout(5*time.Second),
	)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestWaitBecomesReady(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	srv, hits := warmingServer(t, 2)
	err := Wait(context.Background(), srv.URL+"/",
		WithClient(testClient()),
		WithLogger(zap.New(core)),
		Interval(5*time.Millisecond),
		Timeout(5*time.Second),
	)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())

	notReady := logs.FilterMessage("Application not ready").All()
	require.Len(t, notReady, 2)
	assert.Contains(t, notReady[0].ContextMap()["error"], "503 Service Unavailable")

	ready := logs.FilterMessage("Application is ready").All()
	require.Len(t, ready, 1)
	assert.Equal(t, int64(3), ready[0].ContextMap()["attempts"])
}

// waitWithMock runs Wait in the background with a mock clock,
// lets it make its first attempt, and then moves past the timeout.
func waitWithMock(t *testing.T, url string, opts ...Option) error {
	mock := clock.NewMock()
	opts = append([]Option{
		WithClient(testClient()),
		WithClock(mock),
		Interval(time.Second),
		Timeout(10 * time.Second),
	}, opts...)

	errc := make(chan error, 1)
	go func() {
		errc <- Wait(context.Background(), url, opts...)
	}()

	// The deadline, and the pause after the first attempt.
	mock.AwaitScheduled(2)
	mock.Add(10 * time.Second)

	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after the timeout")
		return nil
	}
}

func TestWaitTimeout(t *testing.T) {
	t.Parallel()

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()

		err := waitWithMock(t, deadAddr(t))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotReady)
		assert.Contains(t, err.Error(), "after 10s")
		assert.Len(t, multierr.Errors(err), 2, "must carry the last attempt's failure")
	})

	t.Run("unexpected body", func(t *testing.T) {
		t.Parallel()

		srv, _ := warmingServer(t, 0)
		err := waitWithMock(t, srv.URL+"/", Expect("Hello NodeJS!"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotReady)
		assert.Contains(t, err.Error(), `body does not contain "Hello NodeJS!"`)
		assert.NotContains(t, err.Error(), "context")
	})

	t.Run("never ready", func(t *testing.T) {
		t.Parallel()

		srv, hits := warmingServer(t, 1<<30)
		err := waitWithMock(t, srv.URL+"/")
		assert.ErrorIs(t, err, ErrNotReady)
		assert.Contains(t, err.Error(), "unexpected status 503 Service Unavailable")
		assert.GreaterOrEqual(t, hits.Load(), int32(1))
	})

	t.Run("greeting on error page", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, server.Greeting, http.StatusInternalServerError)
		}))
		t.Cleanup(srv.Close)

		err := waitWithMock(t, srv.URL+"/")
		assert.ErrorIs(t, err, ErrNotReady)
		assert.Contains(t, err.Error(), "unexpected status 500 Internal Server Error")
	})
}

func TestWaitKeepsLastFailureAcrossDeadline(t *testing.T) {
	t.Parallel()

	srv := stallingServer(t)
	err := Wait(context.Background(), srv.URL+"/",
		WithClient(testClient()),
		Interval(time.Millisecond),
		Timeout(200*time.Millisecond),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[1].Error(), `body does not contain "Hello, Python!"`)
	assert.False(t, errors.Is(err, context.DeadlineExceeded), "stalled attempt must not replace the last failure")
	assert.False(t, errors.Is(err, context.Canceled), "stalled attempt must not replace the last failure")
}

func TestWaitCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(ctx, deadAddr(t), WithClient(testClient()), Interval(time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrNotReady), "cancellation is not a timeout")
}

func TestWaitMalformedURL(t *testing.T) {
	t.Parallel()

	err := Wait(context.Background(), "://missing-scheme", Timeout(time.Hour))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotReady), "must fail without polling")
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	p := New()
	assert.Equal(t, server.Greeting, p.expect)
	assert.Equal(t, DefaultTimeout, p.timeout)
	assert.Equal(t, DefaultInterval, p.interval)
	assert.Equal(t, clock.System, p.clock)
}
