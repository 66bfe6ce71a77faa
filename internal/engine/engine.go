// Package engine implements the multi-client audio bridge: the TCP
// acceptor loops, per-client slot tables, wire protocol driving, and the
// synthetic pacing clock that back a virtual audio HAL's stream
// callbacks.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/zoneaudio/vabridge/internal/config"
)

// Engine is the process-wide bridge singleton: the acceptor state and
// client tables for both directions, plus whichever single output and
// input stream the host currently has open. Construct one with New at
// device-open time and Close it at device-close time.
//
// The Go runtime does not let SIGPIPE kill the process for writes to a
// broken socket on any descriptor other than stdout/stderr; the write
// fails with EPIPE instead. That covers the raw-fd writes rawConn issues
// on peer sockets, so unlike spec.md §4 this engine installs no signal
// handler.
type Engine struct {
	cfg    config.Options
	logger *log.Logger

	output *outputTable
	input  *inputTable

	outAcceptor *acceptor
	inAcceptor  *acceptor

	micMu   sync.Mutex
	micMute bool

	wg     sync.WaitGroup
	cancel context.CancelFunc

	now   func() time.Time
	sleep func(time.Duration)
}

// New builds an Engine with cfg normalized and every client slot's
// epoll set created, but does not yet start the acceptor threads; call
// Start for that.
func New(cfg config.Options, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	cfg = cfg.Normalize()

	out, err := newOutputTable()
	if err != nil {
		return nil, fmt.Errorf("engine: build output table: %w", err)
	}
	in, err := newInputTable()
	if err != nil {
		return nil, fmt.Errorf("engine: build input table: %w", err)
	}

	e := &Engine{
		cfg:    cfg,
		logger: logger,
		output: out,
		input:  in,
		now:    time.Now,
		sleep:  time.Sleep,
	}
	e.outAcceptor = newAcceptor(e, dirOutput, cfg.OutTCPPort)
	e.inAcceptor = newAcceptor(e, dirInput, cfg.InTCPPort)
	return e, nil
}

// Start launches both acceptor threads. Each binds its configured port
// before Start returns; callers can treat a bind failure as the fatal
// configuration error spec.md §7 describes.
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if err := e.outAcceptor.bind(); err != nil {
		cancel()
		return fmt.Errorf("engine: bind output acceptor: %w", err)
	}
	if err := e.inAcceptor.bind(); err != nil {
		cancel()
		return fmt.Errorf("engine: bind input acceptor: %w", err)
	}

	e.wg.Add(2)
	go func() { defer e.wg.Done(); e.outAcceptor.run(ctx) }()
	go func() { defer e.wg.Done(); e.inAcceptor.run(ctx) }()
	return nil
}

// Close stops both acceptors, closes every peer and listening socket,
// and releases every slot's epoll set. It blocks until both acceptor
// goroutines have exited.
func (e *Engine) Close() {
	if e.cancel != nil {
		e.cancel()
	}
	e.outAcceptor.stop()
	e.inAcceptor.stop()
	e.wg.Wait()

	e.output.close()
	e.input.close()
}

// OutputPort returns the output acceptor's bound TCP port; useful for
// tests that open the engine with OutTCPPort: 0 and let the OS choose.
func (e *Engine) OutputPort() int { return e.outAcceptor.boundPort() }

// InputPort returns the input acceptor's bound TCP port.
func (e *Engine) InputPort() int { return e.inAcceptor.boundPort() }

// SetMicMute implements the host's set_mic_mute contract.
func (e *Engine) SetMicMute(mute bool) {
	e.micMu.Lock()
	defer e.micMu.Unlock()
	e.micMute = mute
}

// GetMicMute implements the host's get_mic_mute contract.
func (e *Engine) GetMicMute() bool {
	e.micMu.Lock()
	defer e.micMu.Unlock()
	return e.micMute
}
