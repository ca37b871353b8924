// Package malgo implements [audio.Capturer] and [audio.Player] on top of
// miniaudio through github.com/gen2brain/malgo.
//
// A single [Device] owns one miniaudio context. Each Capture or Play call
// opens its own device handle and releases it when the call finishes.
package malgo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ma "github.com/gen2brain/malgo"

	"github.com/MrWong99/tutorvoz/pkg/audio"
)

// Option is a functional option for [New].
type Option func(*Device)

// WithPeriod sets the device period in frames. Default: device-chosen.
func WithPeriod(frames uint32) Option {
	return func(d *Device) {
		d.period = frames
	}
}

// WithBuffer sets how many captured chunks may queue before new ones are
// dropped. Default: 32.
func WithBuffer(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.buffer = n
		}
	}
}

// Device provides microphone capture and speaker playback.
type Device struct {
	mu     sync.Mutex
	ctx    *ma.AllocatedContext
	period uint32
	buffer int
}

// New initialises the miniaudio context.
func New(opts ...Option) (*Device, error) {
	d := &Device{buffer: 32}
	for _, o := range opts {
		o(d)
	}
	mctx, err := ma.InitContext(nil, ma.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}
	d.ctx = mctx
	return d, nil
}

// Close releases the miniaudio context. Devices opened by running Capture or
// Play calls must be finished first.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return nil
	}
	err := d.ctx.Uninit()
	d.ctx.Free()
	d.ctx = nil
	if err != nil {
		return fmt.Errorf("malgo: uninit context: %w", err)
	}
	return nil
}

// Capture opens the default capture device and streams 16-bit frames until
// ctx is cancelled. Chunks that arrive while the buffer is full are dropped
// and logged once.
func (d *Device) Capture(ctx context.Context, f audio.Format) (<-chan audio.Frame, error) {
	d.mu.Lock()
	mctx := d.ctx
	d.mu.Unlock()
	if mctx == nil {
		return nil, errors.New("malgo: device closed")
	}

	cfg := ma.DefaultDeviceConfig(ma.Capture)
	cfg.Capture.Format = ma.FormatS16
	cfg.Capture.Channels = uint32(max(f.Channels, 1))
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.PeriodSizeInFrames = d.period

	frames := make(chan audio.Frame, d.buffer)
	var (
		dropOnce sync.Once
		stopped  = make(chan struct{})
		start    = time.Now()
	)

	callbacks := ma.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			select {
			case <-stopped:
				return
			default:
			}
			buf := make([]byte, len(input))
			copy(buf, input)
			select {
			case frames <- audio.Frame{Data: buf, SampleRate: f.SampleRate, Channels: f.Channels, Timestamp: time.Since(start)}:
			default:
				dropOnce.Do(func() {
					slog.Warn("malgo: capture buffer full, dropping audio")
				})
			}
		},
	}

	dev, err := ma.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("malgo: init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("malgo: start capture device: %w", err)
	}

	go func() {
		<-ctx.Done()
		close(stopped)
		if err := dev.Stop(); err != nil {
			slog.Warn("malgo: stop capture device", "err", err)
		}
		dev.Uninit()
		close(frames)
	}()
	return frames, nil
}

// Play opens the default playback device, plays pcm once and returns when
// the device has consumed it or ctx is cancelled.
func (d *Device) Play(ctx context.Context, pcm []byte, f audio.Format) error {
	d.mu.Lock()
	mctx := d.ctx
	d.mu.Unlock()
	if mctx == nil {
		return errors.New("malgo: device closed")
	}
	if len(pcm) == 0 {
		return nil
	}

	cfg := ma.DefaultDeviceConfig(ma.Playback)
	cfg.Playback.Format = ma.FormatS16
	cfg.Playback.Channels = uint32(max(f.Channels, 1))
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.PeriodSizeInFrames = d.period

	var (
		mu       sync.Mutex
		offset   int
		doneOnce sync.Once
		done     = make(chan struct{})
	)
	callbacks := ma.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			mu.Lock()
			n := copy(output, pcm[offset:])
			offset += n
			finished := offset >= len(pcm)
			mu.Unlock()
			clear(output[n:])
			if finished {
				doneOnce.Do(func() { close(done) })
			}
		},
	}

	dev, err := ma.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("malgo: init playback device: %w", err)
	}
	defer dev.Uninit()
	if err := dev.Start(); err != nil {
		return fmt.Errorf("malgo: start playback device: %w", err)
	}

	select {
	case <-done:
		// Let the last period drain out of the device.
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
		}
	case <-ctx.Done():
	}
	if err := dev.Stop(); err != nil {
		return fmt.Errorf("malgo: stop playback device: %w", err)
	}
	return ctx.Err()
}

// Ensure Device implements the audio interfaces at compile time.
var (
	_ audio.Capturer = (*Device)(nil)
	_ audio.Player   = (*Device)(nil)
	_ audio.Device   = (*Device)(nil)
)
