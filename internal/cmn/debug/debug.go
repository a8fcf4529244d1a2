// Package debug provides assertions compiled in only under the `debug`
// build tag, matching aistore's cmn/debug package: zero cost in release
// builds, loud panics while developing.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package debug

// Assert panics with msg if cond is false. No-op unless built with -tags debug
// (see debug_on.go / debug_off.go).
func Assert(cond bool, msg string) {
	assert(cond, msg)
}

// Assertf is Assert with a formatted message.
func Assertf(cond bool, format string, args ...any) {
	assertf(cond, format, args...)
}
