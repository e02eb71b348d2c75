//go:build windows

package transport

import "errors"

// checkUnixSocket always fails on Windows, so Dial rejects network=="unix"
// there with a transport error instead of dialing. Kept so Dial compiles
// without a build-tagged call site.
func checkUnixSocket(path string) error {
	return errors.New("unix domain sockets are not supported on windows")
}
