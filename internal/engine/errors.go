package engine

import (
	"errors"

	"github.com/zoneaudio/vabridge/internal/zone"
)

// ErrNotConnected is returned by StandbyOutput when the routed output
// slot has no peer socket. Write and Read do not return it: they
// degrade to "consumed" and to silence respectively.
var ErrNotConnected = errors.New("engine: no peer connected")

// ErrTimeout identifies an epoll wait for write/read readiness
// expiring before the peer became ready. Per spec.md §4.5/§4.8 this
// never reaches the host as a Write failure (Write returns len(buf),
// nil on timeout instead); it is kept exported for tests and future
// diagnostics that want to name the condition.
var ErrTimeout = errors.New("engine: epoll wait timed out")

// ErrPeerHangup is returned by Read when EPOLLERR or EPOLLHUP was
// observed on a peer socket; the slot has already been torn down by the
// time this is returned. Write observes the same condition but, per
// spec.md §4.5/§4.8, degrades silently instead of surfacing it.
var ErrPeerHangup = errors.New("engine: peer socket error or hangup")

// ErrClientOutOfRange is returned (wrapped) when a stream's bus address
// resolves to a client id that does not address a valid slot; it is the
// same value as zone.ErrOutOfRange. An out-of-range handshake-supplied
// id is logged by the acceptor, which then exits.
var ErrClientOutOfRange = zone.ErrOutOfRange

// ErrNoMemory mirrors the host contract's -ENOMEM: allocation failure
// opening a stream.
var ErrNoMemory = errors.New("engine: allocation failure")

// ErrNotSupported mirrors the host contract's -ENOSYS/-EINVAL for
// behaviorally inert operations.
var ErrNotSupported = errors.New("engine: not supported")

// ErrAlreadyInstalled is returned by OpenOutputStream/OpenInputStream
// when a stream of that direction is already installed; the host
// contract only ever keeps one of each installed at a time.
var ErrAlreadyInstalled = errors.New("engine: a stream is already installed for this direction")
