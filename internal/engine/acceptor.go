package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/zoneaudio/vabridge/internal/wire"
)

type direction int

const (
	dirOutput direction = iota
	dirInput
)

func (d direction) String() string {
	if d == dirOutput {
		return "output"
	}
	return "input"
}

// handshakeTimeout bounds the synchronous USERID read spec.md §4.4
// step 2 performs right after accept.
const handshakeTimeout = 5 * time.Second

// acceptor is one direction's long-lived accept loop: bind once, then
// admit peers for the engine's lifetime, replacing whichever peer
// currently occupies the target client slot.
type acceptor struct {
	engine *Engine
	dir    direction
	port   int

	listener net.Listener
	limiter  *rate.Limiter
}

func newAcceptor(e *Engine, dir direction, port int) *acceptor {
	return &acceptor{
		engine: e,
		dir:    dir,
		port:   port,
		// Bounds how fast this acceptor re-admits peers so a reconnect
		// storm can't starve the direction mutex; unrelated to any
		// frame-ordering guarantee.
		limiter: rate.NewLimiter(rate.Limit(50), 10),
	}
}

// bind creates the listening socket with SO_REUSEADDR. The listen
// backlog is not set here: net.ListenConfig uses the system default
// (somaxconn), not a fixed backlog of 5.
func (a *acceptor) bind() error {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctlErr error
			err := c.Control(func(fd uintptr) {
				ctlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return ctlErr
		},
	}
	ln, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf(":%d", a.port))
	if err != nil {
		return fmt.Errorf("acceptor(%s): listen on port %d: %w", a.dir, a.port, err)
	}
	a.listener = ln
	return nil
}

// boundPort returns the listener's actual port, useful when the
// acceptor was configured with port 0 and the OS picked one.
func (a *acceptor) boundPort() int {
	if a.listener == nil {
		return a.port
	}
	return a.listener.Addr().(*net.TCPAddr).Port
}

func (a *acceptor) stop() {
	if a.listener != nil {
		_ = a.listener.Close()
	}
}

func (a *acceptor) logger() *log.Logger {
	return a.engine.logger.With("direction", a.dir.String(), "port", a.port)
}

// run is the acceptor thread body from spec.md §4.4: accept, handshake,
// replace, install — forever, until the listener is closed.
func (a *acceptor) run(ctx context.Context) {
	log := a.logger()
	for {
		if err := a.limiter.Wait(ctx); err != nil {
			return // context canceled: engine is closing.
		}

		conn, err := a.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Warn("accept failed", "error", err)
			continue
		}

		clientID, ok := a.handshake(conn)
		if !ok {
			continue
		}
		if clientID == fatalHandshakeClientID {
			log.Error("handshake supplied client id exceeds maximum; acceptor exiting")
			_ = conn.Close()
			return
		}

		a.install(conn, clientID)
	}
}

// fatalHandshakeClientID is a sentinel returned by handshake to signal
// that the peer-supplied user id was out of range, which spec.md §4.4
// treats as a fatal configuration error for the whole acceptor.
const fatalHandshakeClientID = -1

// handshake performs the optional USERID negotiation for a freshly
// accepted connection. ok is false when the connection should simply be
// dropped and the loop should continue accepting.
func (a *acceptor) handshake(conn net.Conn) (clientID int, ok bool) {
	if !a.engine.cfg.UsesUserIDHandshake() {
		return 0, true
	}

	log := a.logger()
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	frame, err := wire.Read(conn)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil || frame.Cmd != wire.CmdUserID {
		log.Warn("handshake failed, dropping peer", "error", err, "cmd", frame.Cmd)
		_ = conn.Close()
		return 0, false
	}

	id := int(frame.UserID)
	if id >= MaxClients {
		return fatalHandshakeClientID, true
	}
	return id, true
}

// install replaces whichever peer currently occupies clientID's slot in
// this acceptor's direction and publishes conn as the new one, per
// spec.md §4.4 steps 3-4.
func (a *acceptor) install(conn net.Conn, clientID int) {
	fd, err := connFD(conn)
	if err != nil {
		a.logger().Warn("could not extract fd from accepted connection", "error", err)
		_ = conn.Close()
		return
	}

	switch a.dir {
	case dirOutput:
		a.installOutput(conn, fd, clientID)
	default:
		a.installInput(conn, fd, clientID)
	}
}

func (a *acceptor) installOutput(conn net.Conn, fd, clientID int) {
	t := a.engine.output
	log := a.logger().With("client", clientID)

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.slots[clientID]
	if s.peer != nil && s.peer != conn {
		_ = wire.Write(rawConn{fd: s.peerFD}, wire.CloseFrame())
		closeSlotPeerLocked(&s.slot)
	}
	s.openCmdSent = false

	s.peer = conn
	s.peerFD = fd
	s.episode = uuid.New()
	if err := s.epoll.Register(fd, unix.EPOLLOUT); err != nil {
		log.Warn("failed to register peer with epoll", "error", err)
	}
	s.standby = true
	s.writeCount = 0

	log.Info("output peer connected", "episode", s.episode)

	if t.stream != nil && !s.openCmdSent {
		sendOpenLocked(rawConn{fd: s.peerFD}, log, t.stream.openConfig(a.engine.cfg))
	}
}

func (a *acceptor) installInput(conn net.Conn, fd, clientID int) {
	t := a.engine.input
	log := a.logger().With("client", clientID)

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.slots[clientID]
	if s.peer != nil && s.peer != conn {
		_ = wire.Write(rawConn{fd: s.peerFD}, wire.CloseFrame())
		s.readStarted = false
		closeSlotPeerLocked(&s.slot)
	}

	s.peer = conn
	s.peerFD = fd
	s.episode = uuid.New()
	if err := s.epoll.Register(fd, unix.EPOLLIN); err != nil {
		log.Warn("failed to register peer with epoll", "error", err)
	}

	log.Info("input peer connected", "episode", s.episode)

	if t.stream != nil && s.readStarted {
		sendOpenLocked(rawConn{fd: s.peerFD}, log, t.stream.openConfig(a.engine.cfg))
	}
}

func sendOpenLocked(peer io.Writer, log interface {
	Warn(msg interface{}, kv ...interface{})
}, cfg wire.Config) {
	if err := wire.Write(peer, wire.OpenFrame(cfg)); err != nil {
		log.Warn("failed to send OPEN to peer", "error", err)
	}
}
