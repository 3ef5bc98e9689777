//go:build debug

package debug

// Checks that allocate or could themselves panic should be guarded with `if
// debug.Enabled {...}` so they disappear entirely from release builds.
const Enabled = true

func Assert(b bool, message string) {
	if !b {
		panic(message)
	}
}

func AssertErrNil(err error) {
	if err != nil {
		panic(err)
	}
}
