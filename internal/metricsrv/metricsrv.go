// Package metricsrv serves the engine's Prometheus registry over HTTP,
// opt-in via the `--metrics-addr` CLI flag (SPEC_FULL.md "Debug/operational
// surface"): a fasthttp listener in front of promhttp's standard handler,
// the way aistore's own target/proxy daemons expose `/metrics`.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package metricsrv

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/aistore-sim/diskengine/internal/cmn/nlog"
)

// Server is a fasthttp listener serving /metrics for one Prometheus
// registry. Not safe to Start twice.
type Server struct {
	addr string
	srv  *fasthttp.Server
}

// New builds a Server that will expose reg's metrics at addr (e.g.
// ":9090") once Start is called.
func New(addr string, reg *prometheus.Registry) *Server {
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	fastHandler := fasthttpadaptor.NewFastHTTPHandler(handler)
	return &Server{
		addr: addr,
		srv: &fasthttp.Server{
			Handler: func(ctx *fasthttp.RequestCtx) {
				if string(ctx.Path()) != "/metrics" {
					ctx.SetStatusCode(fasthttp.StatusNotFound)
					return
				}
				fastHandler(ctx)
			},
		},
	}
}

// Start begins serving in a background goroutine; errors from a failed
// listen are logged, not returned, since the metrics surface is opt-in
// and must never block or fail the simulation itself.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(s.addr); err != nil {
			nlog.Errorf("metricsrv: listen on %s: %v", s.addr, err)
		}
	}()
	nlog.Infof("metricsrv: serving /metrics on %s", s.addr)
}

// Stop closes the listener.
func (s *Server) Stop() error { return s.srv.Shutdown() }
