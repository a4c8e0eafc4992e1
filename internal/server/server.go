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

// Package server serves the greeting over HTTP.
//
// The server is built inside the application graph and bound to its
// lifecycle: it starts listening when the application starts and shuts
// down gracefully when it stops.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"helloapp/internal/config"
)

// Params holds the dependencies of NewHTTPServer.
type Params struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Config     config.HTTPConfig
	Mux        *http.ServeMux
	Log        *zap.Logger
}

// NewHTTPServer builds an HTTP server that will begin serving requests
// when the application starts.
//
// Once started, the server's Addr holds the address it is bound to,
// which differs from the configured one when the port is 0.
func NewHTTPServer(p Params) *http.Server {
	log := p.Log.Named("server")
	srv := &http.Server{
		Addr: p.Config.Addr(),
		Handler: Chain(p.Mux,
			RequestID(),
			AccessLog(p.Log.Named("access")),
			Recover(log),
		),
		ReadHeaderTimeout: p.Config.ReadHeaderTimeout,
		ErrorLog:          zap.NewStdLog(log),
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen on %v: %w", srv.Addr, err)
			}
			srv.Addr = ln.Addr().String()
			log.Info("Starting HTTP server", zap.String("addr", srv.Addr))
			go serve(srv, ln, log, p.Shutdowner)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping HTTP server", zap.String("addr", srv.Addr))
			return srv.Shutdown(ctx)
		},
	})
	return srv
}

func serve(srv *http.Server, ln net.Listener, log *zap.Logger, s fx.Shutdowner) {
	err := srv.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	log.Error("HTTP server failed", zap.Error(err))
	if serr := s.Shutdown(fx.ExitCode(1)); serr != nil {
		log.Error("Failed to request shutdown", zap.Error(serr))
	}
}

// Module provides the HTTP server, its mux and the routes it serves.
var Module = fx.Module("server",
	fx.Provide(
		NewHTTPServer,
		fx.Annotate(
			NewServeMux,
			fx.ParamTags(`group:"routes"`),
		),
		AsRoute(NewHelloHandler),
	),
)
