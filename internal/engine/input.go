package engine

import (
	"time"

	"github.com/zoneaudio/vabridge/internal/config"
	"github.com/zoneaudio/vabridge/internal/epollset"
	"github.com/zoneaudio/vabridge/internal/wire"
	"github.com/zoneaudio/vabridge/internal/zone"
)

// InputStream is the host-visible handle returned by
// OpenInputStream.
type InputStream struct {
	SampleRate  uint32
	ChannelMask config.ChannelMask
	Format      config.Format
	FrameCount  uint32
	BusAddress  string

	lastReadTime time.Time
}

func (s *InputStream) openConfig(cfg config.Options) wire.Config {
	return wire.Config{
		SampleRate: s.SampleRate,
		Channel:    cfg.OpenChannelField(s.ChannelMask),
		Format:     uint32(s.Format),
		FrameCount: s.FrameCount,
	}
}

// InputStreamRequest is the host-supplied configuration passed to
// open_input_stream.
type InputStreamRequest struct {
	SampleRate  uint32
	ChannelMask config.ChannelMask
	Format      config.Format
	BusAddress  string
}

// OpenInputStream installs a new InputStream. Unlike output, no OPEN is
// sent here: spec.md §4.6 defers it to the first Read so a host that
// opens an input stream but never reads never announces itself.
func (e *Engine) OpenInputStream(req InputStreamRequest) (*InputStream, error) {
	t := e.input
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
		mask = config.ChannelInDefault
	}
	format := req.Format
	if format == 0 {
		format = config.FormatPCM16
	}

	s := &InputStream{
		SampleRate:  sampleRate,
		ChannelMask: mask,
		Format:      format,
		FrameCount:  config.FrameCount(e.cfg.InputBufferMilliseconds, sampleRate),
		BusAddress:  req.BusAddress,
	}
	t.stream = s
	return s, nil
}

// CloseInputStream sends CLOSE only if reads had actually started on
// the routed slot, and uninstalls the engine's InputStream.
func (e *Engine) CloseInputStream(s *InputStream) {
	t := e.input
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, err := zone.ResolveInput(s.BusAddress, MaxClients); err == nil {
		slot := t.slots[id]
		if slot.readStarted && slot.connected() {
			_ = wire.Write(rawConn{fd: slot.peerFD}, wire.CloseFrame())
		}
		slot.readStarted = false
	}
	if t.stream == s {
		t.stream = nil
	}
}

// StandbyInput resets the pacing baseline to the zero time; input has
// no STREAM_STOP frame in this protocol. As on a stream's first Read,
// the next Read then sees an elapsed time far beyond its frame budget:
// it skips the pacing sleep and waits at most 1 ms for readiness, so it
// does not pay the full frame cost.
func (e *Engine) StandbyInput(s *InputStream) {
	s.lastReadTime = time.Time{}
}

// Read implements the host's read-side contract from spec.md §4.6: it
// always fills buf (real PCM, silence, or a mix of both after a short
// read) and applies the mic-mute override last. No peer, a wait
// timeout, and a short read all return len(buf) and a nil error; an
// out-of-range client id, an epoll failure, or a hangup seen by the
// readiness wait return -1 and the error, with buf silenced.
func (e *Engine) Read(s *InputStream, buf []byte) (int, error) {
	channels := config.ChannelCount(s.ChannelMask)
	frameSize := channels * config.BytesPerSample(s.Format)
	frameUs := frameMicros(len(buf), frameSize, s.SampleRate)

	now := e.now()
	elapsedUs := now.Sub(s.lastReadTime).Microseconds()
	sleepUs := frameUs - elapsedUs
	timeoutMs := epollTimeoutMillis(sleepUs, frameUs)

	id, err := zone.ResolveInput(s.BusAddress, MaxClients)
	if err != nil {
		silence(buf)
		return -1, err
	}

	t := e.input
	t.mu.Lock()
	slot := t.slots[id]
	if !slot.readStarted {
		if slot.connected() {
			sendOpenLocked(rawConn{fd: slot.peerFD}, e.logger, s.openConfig(e.cfg))
		}
		slot.readStarted = true
	}
	connected := slot.connected()
	fd := slot.peerFD
	epoll := slot.epoll
	t.mu.Unlock()

	if !connected {
		silence(buf)
		actual := pace(e.sleep, sleepUs, frameUs)
		s.lastReadTime = now.Add(actual)
		e.applyMicMute(buf)
		return len(buf), nil
	}

	readiness, werr := epoll.Wait(timeoutMs)
	if werr != nil {
		silence(buf)
		return -1, werr
	}

	switch readiness {
	case epollset.Timeout:
		silence(buf)
		e.applyMicMute(buf)
		return len(buf), nil
	case epollset.HangUp:
		silence(buf)
		t.mu.Lock()
		if t.slots[id].peerFD == fd {
			closeSlotPeerLocked(&t.slots[id].slot)
			t.slots[id].readStarted = false
		}
		t.mu.Unlock()
		return -1, ErrPeerHangup
	}

	ioStart := e.now()
	e.readWithSilenceFill(rawConn{fd: fd}, epoll, buf, timeoutMs)
	ioEnd := e.now()

	remainingUs := sleepUs - ioEnd.Sub(ioStart).Microseconds()
	actual := pace(e.sleep, remainingUs, frameUs)
	s.lastReadTime = ioEnd.Add(actual)

	e.applyMicMute(buf)
	return len(buf), nil
}

// readWithSilenceFill reads up to len(buf) bytes from conn, re-polling
// with a decaying timeout on short reads and filling whatever remains
// with silence once the budget runs out, per spec.md §4.6 step 3.
func (e *Engine) readWithSilenceFill(conn rawConn, epoll *epollset.Set, buf []byte, timeoutMs int) int {
	deadline := e.now().Add(time.Duration(timeoutMs) * time.Millisecond)
	received := 0
	for received < len(buf) {
		n, err := conn.Read(buf[received:])
		if err != nil || n <= 0 {
			break
		}
		received += n
		if received >= len(buf) {
			break
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		ready, err := epoll.Wait(int(remaining.Milliseconds()))
		if err != nil || ready != epollset.Ready {
			break
		}
	}
	if received < len(buf) {
		silence(buf[received:])
	}
	return received
}

func (e *Engine) applyMicMute(buf []byte) {
	if e.GetMicMute() {
		silence(buf)
	}
}

func silence(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
