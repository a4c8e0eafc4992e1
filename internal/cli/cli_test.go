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

package cli

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"helloapp/internal/probe"
	"helloapp/internal/server"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// The probe's client may still be tearing down connections
		// to servers the tests have closed.
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type output struct {
	code   int
	stdout string
	stderr string
}

func runCLI(ctx context.Context, args ...string) output {
	var stdout, stderr bytes.Buffer
	code := run(ctx, args, &stdout, &stderr)
	return output{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func clearEnv(t *testing.T) {
	for _, name := range []string{"PORT", "HELLOAPP_HTTP_HOST", "HELLOAPP_HTTP_PORT", "HELLOAPP_LOG_FORMAT"} {
		t.Setenv(name, "")
	}
	t.Setenv("HELLOAPP_LOG_LEVEL", "error")
}

func freePort(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestVersion(t *testing.T) {
	out := runCLI(context.Background(), "version")
	assert.Zero(t, out.code)
	assert.Equal(t, "helloapp version dev\n", out.stdout)
}

func TestUnknownCommand(t *testing.T) {
	out := runCLI(context.Background(), "frobnicate")
	assert.Equal(t, 1, out.code)
	assert.Contains(t, out.stderr, "helloapp:")
}

func TestServeInvalidConfig(t *testing.T) {
	clearEnv(t)

	out := runCLI(context.Background(), "serve", "--port", "70000")
	assert.Equal(t, 1, out.code)
	assert.Contains(t, out.stderr, "invalid config")
}

func TestServeMissingConfigFile(t *testing.T) {
	clearEnv(t)

	out := runCLI(context.Background(), "--config", "/does/not/exist.yaml")
	assert.Equal(t, 1, out.code)
	assert.Contains(t, out.stderr, "read config")
}

func TestServe(t *testing.T) {
	tests := []struct {
		desc string
		args func(port int) []string
	}{
		{
			desc: "root",
			args: func(port int) []string {
				return []string{"--port", strconv.Itoa(port)}
			},
		},
		{
			desc: "serve",
			args: func(port int) []string {
				return []string{"serve", "--host", "127.0.0.1", "--port", strconv.Itoa(port)}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			clearEnv(t)
			port := freePort(t)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan output, 1)
			go func() {
				done <- runCLI(ctx, tt.args(port)...)
			}()

			url := "http://127.0.0.1:" + strconv.Itoa(port) + "/"
			err := probe.Wait(ctx, url,
				probe.Interval(10*time.Millisecond),
				probe.Timeout(5*time.Second),
				probe.WithClient(&http.Client{
					Transport: &http.Transport{DisableKeepAlives: true},
				}),
			)
			require.NoError(t, err)

			cancel()
			out := <-done
			assert.Zero(t, out.code, "stderr: %s", out.stderr)
		})
	}
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, server.Greeting)
	}))
	defer srv.Close()

	t.Run("ready", func(t *testing.T) {
		out := runCLI(context.Background(), "probe", "--url", srv.URL+"/", "--timeout", "5s")
		assert.Zero(t, out.code, "stderr: %s", out.stderr)
		assert.Equal(t, srv.URL+"/ is ready\n", out.stdout)
	})

	t.Run("unexpected content", func(t *testing.T) {
		out := runCLI(context.Background(), "probe",
			"--url", srv.URL+"/",
			"--expect", "Hello NodeJS!",
			"--timeout", "50ms",
			"--interval", "10ms",
		)
		assert.Equal(t, 1, out.code)
		assert.Contains(t, out.stderr, probe.ErrNotReady.Error())
		assert.Empty(t, out.stdout)
	})
}
