package engine

import (
	"fmt"
	"time"

	"github.com/zoneaudio/vabridge/internal/config"
	"github.com/zoneaudio/vabridge/internal/epollset"
	"github.com/zoneaudio/vabridge/internal/wire"
	"github.com/zoneaudio/vabridge/internal/zone"
)

// OutputStream is the host-visible handle returned by
// OpenOutputStream; it carries the negotiated stream parameters and the
// bus address used to route writes to a client slot.
type OutputStream struct {
	SampleRate  uint32
	ChannelMask config.ChannelMask
	Format      config.Format
	FrameCount  uint32
	BusAddress  string

	lastWriteTime time.Time
}

func (s *OutputStream) openConfig(cfg config.Options) wire.Config {
	return wire.Config{
		SampleRate: s.SampleRate,
		Channel:    cfg.OpenChannelField(s.ChannelMask),
		Format:     uint32(s.Format),
		FrameCount: s.FrameCount,
	}
}

// OutputStreamRequest is the host-supplied configuration passed to
// open_output_stream; zero fields mean "use the direction's default".
type OutputStreamRequest struct {
	SampleRate  uint32
	ChannelMask config.ChannelMask
	Format      config.Format
	BusAddress  string
}

// OpenOutputStream installs a new OutputStream as the engine's single
// active output stream, applying defaults spec.md §4.5 calls out, and
// sends OPEN to the routed client's peer if one is already connected.
func (e *Engine) OpenOutputStream(req OutputStreamRequest) (*OutputStream, error) {
	t := e.output
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stream != nil {
		return nil, ErrAlreadyInstalled
	}

	sampleRate := req.SampleRate
	if sampleRate == 0 {
		sampleRate = config.DefaultSampleRate
	}
	mask := req.ChannelMask
	if mask == config.ChannelNone {
		mask = config.ChannelOutDefault
	}
	format := req.Format
	if format == 0 {
		format = config.FormatPCM16
	}

	s := &OutputStream{
		SampleRate:  sampleRate,
		ChannelMask: mask,
		Format:      format,
		FrameCount:  config.FrameCount(config.OutputBufferMilliseconds, sampleRate),
		BusAddress:  req.BusAddress,
	}
	t.stream = s

	if id, err := zone.ResolveOutput(s.BusAddress, MaxClients); err == nil {
		slot := t.slots[id]
		if !slot.openCmdSent && slot.connected() {
			sendOpenLocked(rawConn{fd: slot.peerFD}, e.logger, s.openConfig(e.cfg))
		}
	}
	return s, nil
}

// CloseOutputStream sends CLOSE to the routed peer (best effort),
// uninstalls the engine's OutputStream, and frees s.
func (e *Engine) CloseOutputStream(s *OutputStream) {
	t := e.output
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, err := zone.ResolveOutput(s.BusAddress, MaxClients); err == nil {
		slot := t.slots[id]
		if slot.connected() {
			_ = wire.Write(rawConn{fd: slot.peerFD}, wire.CloseFrame())
		}
		slot.openCmdSent = false
	}
	if t.stream == s {
		t.stream = nil
	}
}

// StandbyOutput sends STREAM_STOP to the routed peer and marks the
// slot in standby, so the next Write re-announces STREAM_START.
func (e *Engine) StandbyOutput(s *OutputStream) error {
	id, err := zone.ResolveOutput(s.BusAddress, MaxClients)
	if err != nil {
		return err
	}

	t := e.output
	t.mu.Lock()
	defer t.mu.Unlock()

	slot := t.slots[id]
	if !slot.connected() {
		return ErrNotConnected
	}
	if err := wire.Write(rawConn{fd: slot.peerFD}, wire.StreamStopFrame()); err != nil {
		return fmt.Errorf("engine: standby: %w", err)
	}
	slot.standby = true
	return nil
}

// Write implements the host's write-side contract from spec.md §4.5:
// it transmits at most one DATA frame plus payload per call, applies
// the synthetic pacing sleep, and degrades to "consumed, not
// transmitted" (len(buf), nil) when no peer is connected, the wait
// times out, or the peer hangs up. An out-of-range client id, an epoll
// failure, or a failed DATA control-frame write returns -1 and the
// error; a short payload write is logged and its count returned.
func (e *Engine) Write(s *OutputStream, buf []byte) (int, error) {
	channels := config.ChannelCount(s.ChannelMask)
	frameSize := channels * config.BytesPerSample(s.Format)
	frameUs := frameMicros(len(buf), frameSize, s.SampleRate)

	now := e.now()
	elapsedUs := now.Sub(s.lastWriteTime).Microseconds()
	sleepUs := frameUs - elapsedUs
	timeoutMs := epollTimeoutMillis(sleepUs, frameUs)

	id, err := zone.ResolveOutput(s.BusAddress, MaxClients)
	if err != nil {
		return -1, err
	}

	t := e.output
	t.mu.Lock()
	slot := t.slots[id]
	if !slot.connected() {
		t.mu.Unlock()
		actual := pace(e.sleep, sleepUs, frameUs)
		s.lastWriteTime = now.Add(actual)
		return len(buf), nil
	}
	if slot.standby {
		_ = wire.Write(rawConn{fd: slot.peerFD}, wire.StreamStartFrame())
		slot.standby = false
	}
	fd := slot.peerFD
	epoll := slot.epoll
	t.mu.Unlock()

	readiness, err := epoll.Wait(timeoutMs)
	if err != nil {
		return -1, fmt.Errorf("engine: write: %w", err)
	}
	switch readiness {
	case epollset.Timeout:
		// No transmit, no extra sleep: epoll_wait already consumed the
		// full pacing budget. The host still sees every byte consumed.
		return len(buf), nil
	case epollset.HangUp:
		t.mu.Lock()
		if t.slots[id].peerFD == fd {
			closeSlotPeerLocked(&t.slots[id].slot)
			t.slots[id].openCmdSent = false
		}
		t.mu.Unlock()
		return len(buf), nil
	}

	ioStart := e.now()
	if err := wire.Write(rawConn{fd: fd}, wire.DataFrame(uint32(len(buf)))); err != nil {
		return -1, fmt.Errorf("engine: write DATA frame: %w", err)
	}
	n, werr := wire.WritePayload(rawConn{fd: fd}, buf)
	if werr != nil || n != len(buf) {
		e.logger.Warn("short payload write", "client", id, "want", len(buf), "got", n, "error", werr)
	}
	ioEnd := e.now()

	t.mu.Lock()
	if t.slots[id].peerFD == fd {
		t.slots[id].writeCount++
	}
	t.mu.Unlock()

	remainingUs := sleepUs - ioEnd.Sub(ioStart).Microseconds()
	actual := pace(e.sleep, remainingUs, frameUs)
	s.lastWriteTime = ioEnd.Add(actual)

	return n, nil
}
