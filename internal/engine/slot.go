package engine

import (
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/zoneaudio/vabridge/internal/epollset"
)

// MaxClients is the fixed number of concurrent guest zones the bridge
// can address, per spec.
const MaxClients = 8

// slot is the state the acceptor and the stream engine share for one
// client id in one direction. It is only ever mutated while the owning
// table's mutex is held.
type slot struct {
	// peer is nil when no peer is connected to this client id.
	peer net.Conn
	// peerFD backs the epoll registration; kept alongside peer because
	// epoll operates on raw fds, not net.Conn.
	peerFD int
	// epoll is created once at engine construction and lives for the
	// process lifetime, reused across every peer that occupies this slot.
	epoll *epollset.Set
	// episode identifies the current peer-open episode for log
	// correlation (accept -> writes/reads -> teardown).
	episode uuid.UUID
}

func newSlot() (*slot, error) {
	set, err := epollset.New()
	if err != nil {
		return nil, err
	}
	return &slot{peerFD: -1, epoll: set}, nil
}

// connected reports whether a peer currently occupies the slot.
func (s *slot) connected() bool {
	return s.peerFD > 0
}

type outputSlot struct {
	slot
	// openCmdSent mirrors the source's latch: spec.md §9 records that it
	// is intentionally left false after every send, so OPEN is re-sent
	// on every new peer acceptance and at every open_output_stream call.
	openCmdSent bool
	standby     bool
	// writeCount counts DATA frames transmitted to the current peer
	// episode; reset to 0 whenever a new peer is installed, per
	// spec.md §3/§4.4's "reset the write counter" on accept. It is
	// trace-only — nothing in the engine branches on its value.
	writeCount uint64
}

type inputSlot struct {
	slot
	readStarted bool
}

// outputTable holds every output client slot plus the single installed
// OutputStream, all guarded by one mutex per spec.md §5's "mutex_out".
type outputTable struct {
	mu     sync.Mutex
	slots  [MaxClients]*outputSlot
	stream *OutputStream
}

// inputTable is outputTable's input-direction counterpart ("mutex_in").
type inputTable struct {
	mu     sync.Mutex
	slots  [MaxClients]*inputSlot
	stream *InputStream
}

func newOutputTable() (*outputTable, error) {
	t := &outputTable{}
	for i := range t.slots {
		s, err := newSlot()
		if err != nil {
			return nil, err
		}
		t.slots[i] = &outputSlot{slot: *s}
	}
	return t, nil
}

func newInputTable() (*inputTable, error) {
	t := &inputTable{}
	for i := range t.slots {
		s, err := newSlot()
		if err != nil {
			return nil, err
		}
		t.slots[i] = &inputSlot{slot: *s}
	}
	return t, nil
}

func (t *outputTable) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.slots {
		closeSlotPeerLocked(&s.slot)
		s.epoll.Close()
	}
}

func (t *inputTable) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.slots {
		closeSlotPeerLocked(&s.slot)
		s.epoll.Close()
	}
}

// closeSlotPeerLocked deregisters and closes a slot's peer, if any. The
// caller must hold the owning table's mutex.
func closeSlotPeerLocked(s *slot) {
	if s.peer == nil {
		return
	}
	_ = s.epoll.Deregister(s.peerFD)
	_ = s.peer.Close()
	s.peer = nil
	s.peerFD = -1
}
