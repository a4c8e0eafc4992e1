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

// Package cli implements the helloapp command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"helloapp/internal/app"
	"helloapp/internal/config"
	"helloapp/internal/logging"
	"helloapp/internal/probe"
	"helloapp/internal/server"
)

// Version is the build version, set with
// -ldflags "-X helloapp/internal/cli.Version=...".
var Version = "dev"

// exitError carries a non-zero exit code without a message.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Run executes the command line described by args
// and returns the process exit code.
func Run(args []string) int {
	return run(context.Background(), args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if args == nil {
		// cobra reads os.Args when given nil.
		args = []string{}
	}

	cmd := newRootCmd(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintf(stderr, "helloapp: %v\n", err)
	return 1
}

type serveOptions struct {
	configFile string
}

func addServeFlags(fs *pflag.FlagSet, opts *serveOptions) {
	d := config.Default()
	fs.StringVar(&opts.configFile, "config", "", "Path to a YAML, TOML or JSON config file")
	fs.String(config.FlagHost, d.HTTP.Host, "Host to bind to")
	fs.Int(config.FlagPort, d.HTTP.Port, "Port to listen on")
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var opts serveOptions
	root := &cobra.Command{
		Use:   "helloapp",
		Short: "Serve a greeting over HTTP",
		Long: `helloapp serves "` + server.Greeting + `" at / and nothing else.

Run without a subcommand it behaves like "helloapp serve".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	addServeFlags(root.Flags(), &opts)

	root.AddCommand(
		newServeCmd(),
		newProbeCmd(stdout),
		newVersionCmd(stdout),
	)
	return root
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server and serve until interrupted.

With no flags, config file or environment the server binds 127.0.0.1:5000.
Environment variables HELLOAPP_HTTP_HOST, HELLOAPP_HTTP_PORT (or PORT),
HELLOAPP_LOG_LEVEL and HELLOAPP_LOG_FORMAT override the config file,
and flags override both.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	addServeFlags(cmd.Flags(), &opts)
	return cmd
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	cfg, err := config.Load(opts.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	code, err := app.Run(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}

type probeOptions struct {
	url      string
	expect   string
	timeout  time.Duration
	interval time.Duration
	verbose  bool
}

func newProbeCmd(stdout io.Writer) *cobra.Command {
	var opts probeOptions
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Wait until a deployed helloapp serves its greeting",
		Long: `Poll a URL until its response body contains the expected text.

Connection errors and other responses count as "not ready yet".
Exits 0 once ready and 1 if the timeout passes first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProbe(cmd.Context(), stdout, opts)
		},
	}

	d := config.Default()
	fs := cmd.Flags()
	fs.StringVar(&opts.url, "url", "http://"+d.HTTP.Addr()+"/", "URL to poll")
	fs.StringVar(&opts.expect, "expect", server.Greeting, "Text the response body must contain")
	fs.DurationVar(&opts.timeout, "timeout", probe.DefaultTimeout, "How long to wait in total")
	fs.DurationVar(&opts.interval, "interval", probe.DefaultInterval, "Pause between attempts")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Log every attempt")
	return cmd
}

func runProbe(ctx context.Context, stdout io.Writer, opts probeOptions) error {
	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	log, err := logging.Build(config.LogConfig{Level: level, Format: config.FormatConsole})
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	err = probe.Wait(ctx, opts.url,
		probe.Expect(opts.expect),
		probe.Timeout(opts.timeout),
		probe.Interval(opts.interval),
		probe.WithLogger(log),
	)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%v is ready\n", opts.url)
	return nil
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(stdout, "helloapp version %v\n", Version)
		},
	}
}
