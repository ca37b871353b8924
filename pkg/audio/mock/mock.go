// Package mock provides test doubles for the [audio.Capturer] and
// [audio.Player] interfaces.
//
// Both mocks are safe for concurrent use and record every call.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tutorvoz/pkg/audio"
)

// CaptureCall records a single invocation of Capture.
type CaptureCall struct {
	Ctx    context.Context
	Format audio.Format
}

// Capturer is a mock implementation of [audio.Capturer].
//
// Capture emits Frames and then keeps the channel open until the context is
// cancelled, the way a live microphone would.
type Capturer struct {
	mu sync.Mutex

	// Frames are emitted in order on every Capture stream.
	Frames []audio.Frame

	// CaptureErr, if non-nil, is returned by Capture.
	CaptureErr error

	// CaptureCalls records every call to Capture.
	CaptureCalls []CaptureCall
}

// Capture records the call and returns a stream of Frames.
func (c *Capturer) Capture(ctx context.Context, f audio.Format) (<-chan audio.Frame, error) {
	c.mu.Lock()
	c.CaptureCalls = append(c.CaptureCalls, CaptureCall{Ctx: ctx, Format: f})
	if c.CaptureErr != nil {
		err := c.CaptureErr
		c.mu.Unlock()
		return nil, err
	}
	frames := make([]audio.Frame, len(c.Frames))
	copy(frames, c.Frames)
	c.mu.Unlock()

	ch := make(chan audio.Frame, len(frames))
	go func() {
		defer close(ch)
		for _, fr := range frames {
			select {
			case ch <- fr:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return ch, nil
}

// CaptureCallCount returns the number of Capture calls.
func (c *Capturer) CaptureCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.CaptureCalls)
}

// PlayCall records a single invocation of Play.
type PlayCall struct {
	PCM    []byte
	Format audio.Format
}

// Player is a mock implementation of [audio.Player]. Play returns
// immediately unless Hold is set.
type Player struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by Play.
	PlayErr error

	// Hold makes Play block until its context is done, like a long track,
	// and return the context's error.
	Hold bool

	// PlayCalls records every call to Play, including failed ones.
	PlayCalls []PlayCall
}

// Play records a copy of pcm and returns PlayErr.
func (p *Player) Play(ctx context.Context, pcm []byte, f audio.Format) error {
	p.mu.Lock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	p.PlayCalls = append(p.PlayCalls, PlayCall{PCM: buf, Format: f})
	hold, err := p.Hold, p.PlayErr
	p.mu.Unlock()
	if err != nil || !hold {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

// Calls returns a copy of the recorded calls.
func (p *Player) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlayCall, len(p.PlayCalls))
	copy(out, p.PlayCalls)
	return out
}

// Ensure the mocks implement the audio interfaces at compile time.
var (
	_ audio.Capturer = (*Capturer)(nil)
	_ audio.Player   = (*Player)(nil)
)
