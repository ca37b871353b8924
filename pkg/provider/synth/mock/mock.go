// Package mock provides a test double for the synth.Provider interface.
//
// By default every Speak call plays instantly: the returned channel carries
// EventStart and EventEnd and is closed. Set Hold to keep utterances open
// until the test calls Finish, Fail, or cancels the context, which lets tests
// observe preemption and segment chaining deterministically.
//
// Example:
//
//	p := &mock.Provider{VoicesResult: []synth.Voice{{Name: "Mónica", Language: "es-ES"}}}
//	ch, _ := p.Speak(ctx, synth.Utterance{Text: "hola"})
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/tutorvoz/pkg/provider/synth"
)

// SpeakCall records a single invocation of Speak.
type SpeakCall struct {
	// Ctx is the context passed to Speak.
	Ctx context.Context
	// Utterance is the request passed to Speak.
	Utterance synth.Utterance
}

type pending struct {
	ctx  context.Context
	ch   chan synth.Event
	done chan struct{}
	once sync.Once
}

func (p *pending) finish(ev synth.Event) {
	p.once.Do(func() {
		p.ch <- ev
		close(p.ch)
		close(p.done)
	})
}

// Provider is a mock implementation of synth.Provider, synth.CatalogNotifier
// and synth.Pauser.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// VoicesResult is returned by Voices.
	VoicesResult []synth.Voice

	// VoicesErr, if non-nil, is returned as the error from Voices.
	VoicesErr error

	// SpeakErr, if non-nil, is returned as the error from Speak.
	SpeakErr error

	// Hold keeps utterances playing until Finish or Fail is called or the
	// Speak context is cancelled.
	Hold bool

	// PauseErr and ResumeErr are returned by Pause and Resume.
	PauseErr  error
	ResumeErr error

	// --- Call records ---

	// SpeakCalls records every call to Speak in order.
	SpeakCalls []SpeakCall

	// PauseCalls and ResumeCalls count Pause and Resume invocations.
	PauseCalls  int
	ResumeCalls int

	changed chan struct{}
	playing []*pending
	spoke   chan struct{}
}

// Voices returns VoicesResult, VoicesErr.
func (p *Provider) Voices(_ context.Context) ([]synth.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]synth.Voice, len(p.VoicesResult))
	copy(out, p.VoicesResult)
	return out, p.VoicesErr
}

// SetVoices replaces the catalogue and signals VoicesChanged.
func (p *Provider) SetVoices(voices []synth.Voice) {
	p.mu.Lock()
	p.VoicesResult = voices
	ch := p.changedLocked()
	p.mu.Unlock()
	notify(ch)
}

// VoicesChanged implements synth.CatalogNotifier.
func (p *Provider) VoicesChanged() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changedLocked()
}

func (p *Provider) changedLocked() chan struct{} {
	if p.changed == nil {
		p.changed = make(chan struct{}, 1)
	}
	return p.changed
}

// Speak records the call. Unless SpeakErr is set it returns an event channel
// that starts immediately and, when Hold is false, ends immediately.
func (p *Provider) Speak(ctx context.Context, u synth.Utterance) (<-chan synth.Event, error) {
	p.mu.Lock()
	p.SpeakCalls = append(p.SpeakCalls, SpeakCall{Ctx: ctx, Utterance: u})
	spoke := p.spokeLocked()
	if p.SpeakErr != nil {
		err := p.SpeakErr
		p.mu.Unlock()
		notify(spoke)
		return nil, err
	}
	ch := make(chan synth.Event, 2)
	ch <- synth.Event{Type: synth.EventStart}
	if !p.Hold {
		ch <- synth.Event{Type: synth.EventEnd}
		close(ch)
		p.mu.Unlock()
		notify(spoke)
		return ch, nil
	}
	held := &pending{ctx: ctx, ch: ch, done: make(chan struct{})}
	p.playing = append(p.playing, held)
	p.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			held.finish(synth.Event{Type: synth.EventError, Err: ctx.Err()})
		case <-held.done:
		}
	}()
	notify(spoke)
	return ch, nil
}

// Spoke returns a channel that receives a value after every Speak call.
func (p *Provider) Spoke() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spokeLocked()
}

func (p *Provider) spokeLocked() chan struct{} {
	if p.spoke == nil {
		p.spoke = make(chan struct{}, 64)
	}
	return p.spoke
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Finish ends the oldest held utterance with EventEnd, skipping cancelled
// ones. It reports false when nothing is held.
func (p *Provider) Finish() bool {
	return p.complete(synth.Event{Type: synth.EventEnd})
}

// Fail ends the oldest held utterance with EventError carrying err.
func (p *Provider) Fail(err error) bool {
	if err == nil {
		err = errors.New("mock: synthesis failed")
	}
	return p.complete(synth.Event{Type: synth.EventError, Err: err})
}

func (p *Provider) complete(ev synth.Event) bool {
	p.mu.Lock()
	var next *pending
	for len(p.playing) > 0 {
		head := p.playing[0]
		p.playing = p.playing[1:]
		if head.ctx.Err() != nil {
			continue
		}
		select {
		case <-head.done:
			continue
		default:
		}
		next = head
		break
	}
	p.mu.Unlock()
	if next == nil {
		return false
	}
	next.finish(ev)
	return true
}

// Pause implements synth.Pauser.
func (p *Provider) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PauseCalls++
	return p.PauseErr
}

// Resume implements synth.Pauser.
func (p *Provider) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ResumeCalls++
	return p.ResumeErr
}

// SpeakCallCount returns the number of Speak calls. Thread-safe.
func (p *Provider) SpeakCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SpeakCalls)
}

// Texts returns the text of every Speak call in order. Thread-safe.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SpeakCalls))
	for i, c := range p.SpeakCalls {
		out[i] = c.Utterance.Text
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SpeakCalls = nil
	p.PauseCalls = 0
	p.ResumeCalls = 0
}

// Ensure Provider implements the synth interfaces at compile time.
var (
	_ synth.Provider        = (*Provider)(nil)
	_ synth.CatalogNotifier = (*Provider)(nil)
	_ synth.Pauser          = (*Provider)(nil)
)
