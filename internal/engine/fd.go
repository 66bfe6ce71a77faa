package engine

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// connFD extracts the raw file descriptor backing conn. The bridge uses
// it for epoll registration and for the raw read/write syscalls the
// write/read engines issue once a slot owns the fd directly, per
// spec.md §4.3's "peer_fd" model.
func connFD(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, fmt.Errorf("connection does not expose a raw fd")
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}

	var fd int
	var ctlErr error
	err = rc.Control(func(u uintptr) {
		fd = int(u)
	})
	if err != nil {
		return 0, err
	}
	if ctlErr != nil {
		return 0, ctlErr
	}
	return fd, nil
}

// rawConn adapts a bare fd to io.Reader/io.Writer so the wire codec can
// operate directly on the descriptor a slot owns, bypassing the
// net.Conn buffering layer once the slot has taken over the fd.
type rawConn struct {
	fd int
}

// Write retries on EINTR, matching the original's
// `do { ret = write(...); } while (ret < 0 && errno == EINTR);` loop
// around peer-socket writes.
func (r rawConn) Write(p []byte) (int, error) {
	for {
		n, err := unix.Write(r.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("rawConn: write: %w", err)
		}
		return n, nil
	}
}

// Read retries on EINTR, mirroring Write's retry loop.
func (r rawConn) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(r.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("rawConn: read: %w", err)
		}
		return n, nil
	}
}
