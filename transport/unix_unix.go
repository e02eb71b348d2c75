//go:build !windows

package transport

import "golang.org/x/sys/unix"

// checkUnixSocket stats path and rejects anything that isn't a socket file
// before handing it to net.Dialer, so a misconfigured DSN (pointing at a
// regular file or a missing path) fails with a clear transport error
// instead of net.Dialer's generic "connect: not a socket"/os.PathError.
func checkUnixSocket(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return err
	}
	if st.Mode&unix.S_IFMT != unix.S_IFSOCK {
		return &unixSocketError{path: path}
	}
	return nil
}

type unixSocketError struct{ path string }

func (e *unixSocketError) Error() string { return e.path + ": not a unix socket" }
