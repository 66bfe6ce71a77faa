// Package epollset wraps one epoll(7) instance per caller, matching the
// "one epoll set per client slot" design used by the audio bridge engine:
// each output/input slot keeps its own long-lived set instead of sharing
// one per direction, so a write/read wait site touches only its own fd.
package epollset

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Readiness describes what EpollWait observed for the registered fd.
type Readiness int

const (
	// Timeout means the wait expired with no event.
	Timeout Readiness = iota
	// Ready means the requested direction (in/out) became ready.
	Ready
	// HangUp means EPOLLERR or EPOLLHUP was reported; the fd should be
	// torn down by the caller.
	HangUp
)

// Set is a single epoll instance holding at most one registered fd at a
// time, which is the access pattern every slot in the engine uses.
type Set struct {
	epfd int
}

// New creates an epoll instance. Callers create one Set per slot at
// startup and keep it for the process lifetime.
func New() (*Set, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("epollset: create: %w", err)
	}
	return &Set{epfd: fd}, nil
}

// Register arms the set for events (unix.EPOLLIN or unix.EPOLLOUT) on fd.
// The slot invariant is that Register is only called while the fd is not
// already registered in this set.
func (s *Set) Register(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epollset: register fd %d: %w", fd, err)
	}
	return nil
}

// Deregister removes fd from the set. Callers must deregister before
// closing the underlying fd.
func (s *Set) Deregister(fd int) error {
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epollset: deregister fd %d: %w", fd, err)
	}
	return nil
}

// Wait blocks until the registered fd is ready, an error/hangup is
// reported on it, or timeoutMs elapses (0 polls once, -1 blocks forever).
func (s *Set) Wait(timeoutMs int) (Readiness, error) {
	var events [1]unix.EpollEvent
	for {
		n, err := unix.EpollWait(s.epfd, events[:], timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Timeout, fmt.Errorf("epollset: wait: %w", err)
		}
		if n == 0 {
			return Timeout, nil
		}
		if events[0].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			return HangUp, nil
		}
		return Ready, nil
	}
}

// Close releases the epoll instance. Only called at engine teardown.
func (s *Set) Close() error {
	return unix.Close(s.epfd)
}
