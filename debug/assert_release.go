//go:build !debug

// Package debug provides assertions that are enabled by the debug build tag
// and compile to no-ops otherwise.
//
// Assertions guard contract violations that would corrupt consumer-side
// state, where continuing is unsafe. They are not a general error handling
// mechanism.
package debug

// Checks that allocate or could themselves panic should be guarded with `if
// debug.Enabled {...}` so they disappear entirely from release builds.
const Enabled = false

// Assert panics with message if b is false.
func Assert(b bool, message string) {}

// AssertErrNil panics if err is not nil.
func AssertErrNil(err error) {}
