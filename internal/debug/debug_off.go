//go:build !debug

// Package debug provides assertions that compile to nothing unless built with the
// "debug" build tag -- invariant checks that are worth writing but too hot a path
// (every dispatched frame, every stream chunk) to pay for in a production build.
package debug

func Assert(cond bool, args ...any) {}

func Assertf(cond bool, format string, args ...any) {}
