//go:build !debug

package debug

func assert(_ bool, _ string)                 {}
func assertf(_ bool, _ string, _ ...any) {}
