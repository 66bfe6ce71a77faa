// Package config carries the small set of options that feed the bridge
// engine's ports, concurrency mode, and buffer sizing, and the stream
// parameter defaults/derivations the engine applies at open_stream time.
package config

// Format mirrors the subset of the host's PCM format enum the engine
// cares about for buffer-size math; the bridge itself neither converts
// nor validates beyond this.
type Format uint32

const (
	FormatPCM16 Format = iota + 1
	FormatPCM8
	FormatPCM32
	FormatPCMFloat
)

// BytesPerSample returns the sample width for f. Unknown formats are
// treated as PCM_16, matching the 2-byte assumption baked into the
// original buffer-size math.
func BytesPerSample(f Format) int {
	switch f {
	case FormatPCM8:
		return 1
	case FormatPCM32, FormatPCMFloat:
		return 4
	default:
		return 2
	}
}

// isProportionalFrame reports whether bytesPerSample already scales
// linearly with a "frame" the way 16-bit PCM does. Non-proportional
// formats get their buffer size multiplied by 4 in
// InputBufferSize, matching the host contract in spec §6.
func isProportionalFrame(f Format) bool {
	switch f {
	case 0, FormatPCM16, FormatPCM8, FormatPCM32, FormatPCMFloat:
		return true
	default:
		return false
	}
}

// ChannelMask is a bitmask of channel positions, Android audio_channel_mask_t style.
type ChannelMask uint32

const (
	ChannelNone       ChannelMask = 0
	ChannelOutStereo  ChannelMask = 0x3  // front-left | front-right
	ChannelInStereo   ChannelMask = 0xC  // left | right, input side numbering
	ChannelOutDefault             = ChannelOutStereo
	ChannelInDefault              = ChannelInStereo
)

// ChannelCount returns the number of set channel bits.
func ChannelCount(mask ChannelMask) int {
	n := 0
	for m := uint32(mask); m != 0; m &= m - 1 {
		n++
	}
	return n
}

const (
	// DefaultSampleRate is substituted whenever a caller opens a stream
	// with sample_rate == 0.
	DefaultSampleRate = 48000

	// OutputBufferMilliseconds is fixed; only the input side is
	// host-configurable.
	OutputBufferMilliseconds = 10

	minInputBufferMilliseconds = 10
	maxInputBufferMilliseconds = 1000
)

// ClampInputBufferMilliseconds enforces the [10, 1000] range from
// spec §6, mapping 0 (unset) up to the minimum the same as any other
// too-small value.
func ClampInputBufferMilliseconds(ms int) int {
	if ms < minInputBufferMilliseconds {
		return minInputBufferMilliseconds
	}
	if ms > maxInputBufferMilliseconds {
		return maxInputBufferMilliseconds
	}
	return ms
}

// FrameCount derives frame_count = buffer_ms * sample_rate / 1000.
func FrameCount(bufferMs int, sampleRate uint32) uint32 {
	return uint32(bufferMs) * sampleRate / 1000
}

// Options is the full recognized configuration surface from spec §6.
type Options struct {
	// ConcurrentUserNum, when > 1, enables the USERID handshake on
	// accepted peers; 0 or 1 means every peer maps to slot 0.
	ConcurrentUserNum int
	// OutTCPPort is the output acceptor's listening port.
	OutTCPPort int
	// InTCPPort is the input acceptor's listening port.
	InTCPPort int
	// InputBufferMilliseconds is clamped to [10, 1000] by Normalize.
	InputBufferMilliseconds int
	// ChannelMaskMode selects what the OPEN frame's Channel field
	// carries: false sends the channel count, true sends the raw mask.
	ChannelMaskMode bool
}

// Default returns the recognized option set at its documented defaults.
func Default() Options {
	return Options{
		ConcurrentUserNum:       0,
		OutTCPPort:              8768,
		InTCPPort:               8767,
		InputBufferMilliseconds: minInputBufferMilliseconds,
		ChannelMaskMode:         false,
	}
}

// Normalize clamps InputBufferMilliseconds into its legal range. Callers
// should run every Options value through Normalize before handing it to
// the engine.
func (o Options) Normalize() Options {
	o.InputBufferMilliseconds = ClampInputBufferMilliseconds(o.InputBufferMilliseconds)
	return o
}

// UsesUserIDHandshake reports whether accepted peers must present a
// USERID frame before being admitted to a slot.
func (o Options) UsesUserIDHandshake() bool {
	return o.ConcurrentUserNum > 1
}

// OpenChannelField picks the OPEN frame's Channel value for mask
// according to ChannelMaskMode.
func (o Options) OpenChannelField(mask ChannelMask) uint32 {
	if o.ChannelMaskMode {
		return uint32(mask)
	}
	return uint32(ChannelCount(mask))
}

// InputBufferSize implements get_input_buffer_size from spec §6:
// buffer_ms * sample_rate * channels * bytes-per-sample / 1000, x4 for
// formats that aren't proportional-frame. The division by 1000 happens
// last, after every other factor has been multiplied in, so sample
// rates that aren't a multiple of 1000 (e.g. 44100) don't lose
// precision the way dividing sampleRate by 1000 up front would.
func InputBufferSize(bufferMs int, sampleRate uint32, channels int, format Format) int {
	size := bufferMs * int(sampleRate) * channels * BytesPerSample(format) / 1000
	if !isProportionalFrame(format) {
		size *= 4
	}
	return size
}
