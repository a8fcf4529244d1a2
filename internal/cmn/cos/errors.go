// Package cos ("common OS"-flavored helpers, named after aistore's own
// cmn/cos) holds the engine's typed sentinel errors (spec.md §7).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel error kinds (spec.md §7). StaleTask and BudgetExhausted are
// not modeled as errors: staleness routes to the busy-signal output
// channel and budget exhaustion during planning is a normal stop
// condition, not a failure.
var (
	ErrCapacityExhausted = errors.New("capacity exhausted: could not place 3 distinct replicas")
	ErrInvalidRequest    = errors.New("invalid request: unknown or already-deleted object")
	ErrProtocolDesync    = errors.New("protocol desync: echoed timestamp disagrees with step counter")
)

// WrapCapacityExhausted annotates ErrCapacityExhausted with placement context.
func WrapCapacityExhausted(oid, replica int) error {
	return errors.Wrapf(ErrCapacityExhausted, "object %d replica %d", oid, replica)
}

// WrapProtocolDesync annotates ErrProtocolDesync with the two disagreeing counters.
func WrapProtocolDesync(want, got int) error {
	return errors.Wrapf(ErrProtocolDesync, "want %d, got %d", want, got)
}

// IsInvalidRequest reports whether err is (or wraps) ErrInvalidRequest.
func IsInvalidRequest(err error) bool { return errors.Is(err, ErrInvalidRequest) }

// Errorf is a thin fmt.Errorf passthrough kept for call-site symmetry with
// aistore's own cmn.Errorf convention.
func Errorf(format string, args ...any) error { return fmt.Errorf(format, args...) }
