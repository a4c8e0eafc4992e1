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

// Package exectest runs a test's own binary as a subprocess
// that executes a given main function.
package exectest

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helloapp/internal/test"
)

// Command builds a command that re-runs the current test binary
// so that only the current test runs, and inside that subprocess
// calls main and exits 0 when main returns.
//
// Only top-level tests may use Command.
func Command(t test.T, main func()) *exec.Cmd {
	t.Helper()

	require.NotContains(t, t.Name(), "/",
		"exectest.Command cannot be used with subtests")

	if filepath.Base(os.Args[0]) == t.Name() {
		// Inside the subprocess.
		main()
		os.Exit(0)
	}

	exe, err := os.Executable()
	require.NoError(t, err, "determine executable")

	cmd := exec.Command(exe, "-test.run", "^"+t.Name()+"$")
	// Args[0] is how the subprocess recognizes itself.
	cmd.Args[0] = t.Name()
	return cmd
}

// StartWithOutput starts cmd and returns a reader for its combined
// stdout and stderr. The test waits for cmd to exit during cleanup.
func StartWithOutput(t test.T, cmd *exec.Cmd) io.Reader {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err, "create pipe")

	cmd.Stdout = w
	cmd.Stderr = w
	require.NoError(t, cmd.Start(), "start command")
	// Only the subprocess writes from here on.
	assert.NoError(t, w.Close(), "close output writer")
	t.Cleanup(func() {
		_, err := cmd.Process.Wait()
		assert.NoError(t, err, "wait for end")
		assert.NoError(t, r.Close(), "close output reader")
	})
	return r
}
