package engine

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/zoneaudio/vabridge/internal/config"
)

// Device implements the host audio-device contract from spec.md §6,
// wrapping an Engine with the stream lifecycle and the inert/no-op
// operations a conventional audio HAL device exposes. The outer
// module-loader/shared-object packaging a real HAL needs is out of
// scope per spec.md §1; Device is what that packaging would wrap.
type Device struct {
	Engine *Engine
}

// NewDevice constructs the engine and starts both acceptor threads.
func NewDevice(ctx context.Context, cfg config.Options, logger *log.Logger) (*Device, error) {
	e, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := e.Start(ctx); err != nil {
		return nil, err
	}
	return &Device{Engine: e}, nil
}

// Close tears down the engine: acceptors stop, every peer and listening
// socket closes, every slot's epoll set is released.
func (d *Device) Close() {
	d.Engine.Close()
}

// OpenOutputStream mirrors adev->open_output_stream.
func (d *Device) OpenOutputStream(req OutputStreamRequest) (*OutputStream, error) {
	s, err := d.Engine.OpenOutputStream(req)
	if err != nil {
		return nil, ErrNoMemory
	}
	return s, nil
}

// CloseOutputStream mirrors adev->close_output_stream.
func (d *Device) CloseOutputStream(s *OutputStream) {
	d.Engine.CloseOutputStream(s)
}

// OpenInputStream mirrors adev->open_input_stream.
func (d *Device) OpenInputStream(req InputStreamRequest) (*InputStream, error) {
	s, err := d.Engine.OpenInputStream(req)
	if err != nil {
		return nil, ErrNoMemory
	}
	return s, nil
}

// CloseInputStream mirrors adev->close_input_stream.
func (d *Device) CloseInputStream(s *InputStream) {
	d.Engine.CloseInputStream(s)
}

// GetInputBufferSize mirrors adev->get_input_buffer_size.
func (d *Device) GetInputBufferSize(sampleRate uint32, mask config.ChannelMask, format config.Format) int {
	return config.InputBufferSize(d.Engine.cfg.InputBufferMilliseconds, sampleRate, config.ChannelCount(mask), format)
}

// SetMicMute mirrors adev->set_mic_mute.
func (d *Device) SetMicMute(mute bool) { d.Engine.SetMicMute(mute) }

// GetMicMute mirrors adev->get_mic_mute.
func (d *Device) GetMicMute() bool { return d.Engine.GetMicMute() }

// The following mirror the behaviorally-inert operations spec.md §6
// lists as out of scope for the core bridge: they always succeed or
// report "not supported", and never touch engine state.

// InitCheck mirrors adev->init_check; this device is always ready once
// constructed.
func (d *Device) InitCheck() error { return nil }

// Dump mirrors adev->dump; there is nothing interesting to dump.
func (d *Device) Dump() error { return nil }

// SetParameters mirrors adev->set_parameters; no settable parameter is
// implemented beyond the recognized config options applied at
// construction time.
func (d *Device) SetParameters(string) error { return nil }

// GetParameters mirrors adev->get_parameters, which always answers with
// an empty string.
func (d *Device) GetParameters(string) string { return "" }

// SetMasterVolume, SetMasterMute, SetMode, SetVoiceVolume are all
// no-ops on this device.
func (d *Device) SetMasterVolume(float32) error { return nil }
func (d *Device) SetMasterMute(bool) error      { return nil }
func (d *Device) SetMode(int) error             { return nil }
func (d *Device) SetVoiceVolume(float32) error  { return nil }

// AddEffect and RemoveEffect are unsupported on every stream.
func (d *Device) AddEffect(handle uintptr) error    { return ErrNotSupported }
func (d *Device) RemoveEffect(handle uintptr) error { return ErrNotSupported }

// SetVolume and SetGain mirror the stream-level inert setters.
func (d *Device) SetVolume(left, right float32) error { return nil }
func (d *Device) SetGain(gain float32) error           { return nil }

// GetRenderPosition and GetCapturePosition always report unsupported,
// matching spec.md §6 and the symmetric treatment audio_hw.c gives
// both the output and input position getters.
func (d *Device) GetRenderPosition() (uint32, error)  { return 0, ErrNotSupported }
func (d *Device) GetCapturePosition() (int64, int64, error) {
	return 0, 0, ErrNotSupported
}

// GetNextWriteTimestamp always reports unsupported.
func (d *Device) GetNextWriteTimestamp() (int64, error) { return 0, ErrNotSupported }

// GetInputFramesLost always reports zero: dropped input is replaced by
// silence rather than counted as loss, per spec.md §1's Non-goals.
func (d *Device) GetInputFramesLost() uint32 { return 0 }

// UpdateSourceMetadata is a no-op.
func (d *Device) UpdateSourceMetadata(any) {}
