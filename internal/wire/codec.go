// Package wire implements the fixed-size control-frame codec spoken
// between the bridge engine and a remote peer: a tagged command header
// followed by one of three payload shapes, and the raw PCM framing that
// rides alongside DATA frames.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Cmd identifies which payload shape a frame carries.
type Cmd uint32

const (
	CmdOpen        Cmd = 0
	CmdClose       Cmd = 1
	CmdData        Cmd = 2
	CmdStreamStart Cmd = 3
	CmdStreamStop  Cmd = 4
	CmdUserID      Cmd = 5
)

func (c Cmd) String() string {
	switch c {
	case CmdOpen:
		return "OPEN"
	case CmdClose:
		return "CLOSE"
	case CmdData:
		return "DATA"
	case CmdStreamStart:
		return "STREAM_START"
	case CmdStreamStop:
		return "STREAM_STOP"
	case CmdUserID:
		return "USERID"
	default:
		return fmt.Sprintf("Cmd(%d)", uint32(c))
	}
}

// Config is the OPEN payload: stream parameters the peer needs to set
// up its own PCM pipeline.
type Config struct {
	SampleRate uint32
	// Channel carries either the channel count or the raw channel mask
	// bits, depending on the engine's channel-mask-mode setting.
	Channel    uint32
	Format     uint32
	FrameCount uint32
}

// recordSize is the on-wire size of cmd (4 bytes) plus the union's
// largest arm, Config (4 x uint32 = 16 bytes): 20 bytes total.
const recordSize = 4 + 4*4

// Frame is a decoded control frame. Only the field matching Cmd is
// meaningful; this mirrors the C union while keeping the Go type a
// tagged sum rather than raw bytes.
type Frame struct {
	Cmd    Cmd
	Config Config // valid when Cmd == CmdOpen
	Size   uint32 // valid when Cmd == CmdData or CmdClose (0)
	UserID uint32 // valid when Cmd == CmdUserID
}

// OpenFrame builds an OPEN control frame carrying cfg.
func OpenFrame(cfg Config) Frame { return Frame{Cmd: CmdOpen, Config: cfg} }

// CloseFrame builds a CLOSE control frame.
func CloseFrame() Frame { return Frame{Cmd: CmdClose} }

// DataFrame builds a DATA control frame announcing size bytes of PCM
// payload to follow immediately after it on the same connection.
func DataFrame(size uint32) Frame { return Frame{Cmd: CmdData, Size: size} }

// StreamStartFrame builds a STREAM_START control frame.
func StreamStartFrame() Frame { return Frame{Cmd: CmdStreamStart} }

// StreamStopFrame builds a STREAM_STOP control frame.
func StreamStopFrame() Frame { return Frame{Cmd: CmdStreamStop} }

// UserIDFrame builds a USERID handshake frame.
func UserIDFrame(id uint32) Frame { return Frame{Cmd: CmdUserID, UserID: id} }

// Write encodes f as a single fixed-size record and writes it in one
// call. A short write on a control frame is treated as fatal for that
// frame, per the wire codec's framing contract.
func Write(w io.Writer, f Frame) error {
	var buf [recordSize]byte
	binary.NativeEndian.PutUint32(buf[0:4], uint32(f.Cmd))

	switch f.Cmd {
	case CmdOpen:
		binary.NativeEndian.PutUint32(buf[4:8], f.Config.SampleRate)
		binary.NativeEndian.PutUint32(buf[8:12], f.Config.Channel)
		binary.NativeEndian.PutUint32(buf[12:16], f.Config.Format)
		binary.NativeEndian.PutUint32(buf[16:20], f.Config.FrameCount)
	case CmdData, CmdClose:
		binary.NativeEndian.PutUint32(buf[4:8], f.Size)
	case CmdUserID:
		binary.NativeEndian.PutUint32(buf[4:8], f.UserID)
	}

	n, err := w.Write(buf[:])
	if err != nil {
		return fmt.Errorf("wire: write %s frame: %w", f.Cmd, err)
	}
	if n != recordSize {
		return fmt.Errorf("wire: short write of %s frame: wrote %d of %d bytes", f.Cmd, n, recordSize)
	}
	return nil
}

// Read decodes one fixed-size record from r. A partial record is
// reported as an error; callers treat it as fatal for the connection.
func Read(r io.Reader) (Frame, error) {
	var buf [recordSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Frame{}, fmt.Errorf("wire: read frame: %w", err)
	}

	f := Frame{Cmd: Cmd(binary.NativeEndian.Uint32(buf[0:4]))}
	switch f.Cmd {
	case CmdOpen:
		f.Config = Config{
			SampleRate: binary.NativeEndian.Uint32(buf[4:8]),
			Channel:    binary.NativeEndian.Uint32(buf[8:12]),
			Format:     binary.NativeEndian.Uint32(buf[12:16]),
			FrameCount: binary.NativeEndian.Uint32(buf[16:20]),
		}
	case CmdData, CmdClose:
		f.Size = binary.NativeEndian.Uint32(buf[4:8])
	case CmdUserID:
		f.UserID = binary.NativeEndian.Uint32(buf[4:8])
	}
	return f, nil
}

// WritePayload writes exactly one DATA frame's PCM payload in a single
// call. Short writes are the caller's responsibility to log; this
// function reports whatever count the underlying Write returned.
func WritePayload(w io.Writer, payload []byte) (int, error) {
	n, err := w.Write(payload)
	if err != nil {
		return n, fmt.Errorf("wire: write payload: %w", err)
	}
	return n, nil
}
