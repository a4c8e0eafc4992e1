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

// Package httptest holds HTTP helpers for tests that talk to a running
// server.
package httptest

import (
	"net/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helloapp/internal/iotest"
	"helloapp/internal/test"
)

// client does not keep connections alive so that no transport
// goroutines outlive a test.
var client = &http.Client{
	Transport: &http.Transport{DisableKeepAlives: true},
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
}

// Do makes an HTTP request with the given method and no body,
// and returns the fully read response.
func Do(t test.T, method, url string) Response {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err, "build %v request", method)

	res, err := client.Do(req)
	require.NoError(t, err, "http %v %q", method, url)
	defer func() {
		assert.NoError(t, res.Body.Close(), "close response body")
	}()

	return Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       iotest.ReadAll(t, res.Body),
	}
}

// GetSuccess makes an HTTP GET request to the given URL,
// and returns the response body.
//
// GetSuccess expects a 200 status code.
func GetSuccess(t test.T, url string) string {
	t.Helper()

	res := Do(t, http.MethodGet, url)
	assert.Equal(t, http.StatusOK, res.StatusCode, "status code did not match")
	return res.Body
}
