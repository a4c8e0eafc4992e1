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

// Package app assembles helloapp from its modules and runs it.
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/fx"

	"helloapp/internal/config"
	"helloapp/internal/logging"
	"helloapp/internal/server"
)

// New builds the application for cfg.
//
// opts are appended after the application's own options,
// which lets tests add invocations or replace the event logger.
func New(cfg config.Config, opts ...fx.Option) *fx.App {
	return fx.New(
		fx.Supply(cfg),
		config.Module,
		logging.Module,
		server.Module,
		fx.WithLogger(logging.NewEventLogger),
		fx.StartTimeout(cfg.Lifecycle.StartTimeout),
		fx.StopTimeout(cfg.Lifecycle.StopTimeout),
		// Nothing else asks for the server, so ask for it here.
		fx.Invoke(func(*http.Server) {}),
		fx.Options(opts...),
	)
}

// Run starts the application for cfg and blocks until it receives
// a shutdown signal or ctx ends, then stops it.
//
// The returned exit code is the one carried by the shutdown signal,
// 0 if ctx ended first, and 1 whenever an error is returned.
func Run(ctx context.Context, cfg config.Config, opts ...fx.Option) (int, error) {
	app := New(cfg, opts...)
	if err := app.Err(); err != nil {
		return 1, fmt.Errorf("build application: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return 1, fmt.Errorf("start application: %w", err)
	}

	var code int
	select {
	case sig := <-app.Wait():
		code = sig.ExitCode
	case <-ctx.Done():
	}

	// ctx may already be done, so stopping gets a fresh deadline.
	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		return 1, fmt.Errorf("stop application: %w", err)
	}
	return code, nil
}
