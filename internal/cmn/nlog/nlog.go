// Package nlog is the engine's package-level logging facade, call-site
// compatible with aistore's own cmn/nlog (Infof/Warningf/Errorln, a global
// logger with no per-call Logger threading), backed by zap instead of a
// hand-rolled writer.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"os"
	"sync"

	"github.com/teris-io/shortid"
	"go.uber.org/zap"
)

var (
	once  sync.Once
	sugar *zap.SugaredLogger
	runID string
)

func logger() *zap.SugaredLogger {
	once.Do(func() {
		id, err := shortid.Generate()
		if err != nil {
			id = "run"
		}
		runID = id

		cfg := zap.NewProductionConfig()
		cfg.OutputPaths = []string{"stderr"}
		cfg.DisableStacktrace = true
		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		sugar = l.Sugar().With("run", runID)
	})
	return sugar
}

// RunID returns the process-lifetime run identifier stamped on every log
// line and every metrics sample (SPEC_FULL.md "Debug/operational surface").
func RunID() string {
	logger() // ensure initialized
	return runID
}

func Infof(format string, args ...any)    { logger().Infof(format, args...) }
func Warningf(format string, args ...any) { logger().Warnf(format, args...) }
func Errorf(format string, args ...any)   { logger().Errorf(format, args...) }
func Infoln(args ...any)                  { logger().Infoln(args...) }
func Warningln(args ...any)               { logger().Warnln(args...) }
func Errorln(args ...any)                 { logger().Errorln(args...) }

// Fatalf logs at error level and terminates the process, used for
// unrecoverable step errors such as ProtocolDesync and CapacityExhausted
// (spec.md §7).
func Fatalf(format string, args ...any) {
	logger().Errorf(format, args...)
	os.Exit(1)
}

func Sync() { _ = logger().Sync() }
