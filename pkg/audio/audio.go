// Package audio defines the PCM audio types and device interfaces shared by
// the recogniser (microphone capture) and the tutor (chime playback).
//
// All PCM in this package is signed 16-bit little-endian, interleaved when
// Channels > 1.
package audio

import (
	"context"
	"time"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Recognition is the format speech recognisers expect: 16 kHz mono.
var Recognition = Format{SampleRate: 16000, Channels: 1}

// BytesPerFrame returns the size of one interleaved sample frame.
func (f Format) BytesPerFrame() int {
	return 2 * max(f.Channels, 1)
}

// Duration returns the playback length of pcm in this format.
func (f Format) Duration(pcm []byte) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	frames := len(pcm) / f.BytesPerFrame()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Frame is one chunk of captured PCM.
type Frame struct {
	Data       []byte
	SampleRate int
	Channels   int

	// Timestamp is the capture time relative to the start of the stream.
	Timestamp time.Duration
}

// Format returns the frame's format.
func (f Frame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// Capturer opens a microphone stream.
type Capturer interface {
	// Capture starts capturing in the requested format. The returned channel
	// is closed when ctx is cancelled or the device fails. Devices that
	// cannot deliver f natively may return frames in another format; callers
	// should pass the stream through [ConvertStream].
	Capture(ctx context.Context, f Format) (<-chan Frame, error)
}

// Player plays PCM on a speaker.
type Player interface {
	// Play blocks until pcm has been played or ctx is cancelled.
	Play(ctx context.Context, pcm []byte, f Format) error
}

// Device is a full-duplex sound card.
type Device interface {
	Capturer
	Player
	Close() error
}

// Drain discards values from ch until it is closed.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
