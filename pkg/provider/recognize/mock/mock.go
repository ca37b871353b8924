// Package mock provides test doubles for the recognize package interfaces.
//
// Provider hands out Sessions whose events are scripted by the test:
//
//	p := &mock.Provider{}
//	sess, _ := p.Start(ctx, recognize.Config{Language: "es-ES"})
//	p.LastSession().Final("rojo", 0.9)
//	p.LastSession().End()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tutorvoz/pkg/provider/recognize"
)

// StartCall records a single invocation of Provider.Start.
type StartCall struct {
	Ctx    context.Context
	Config recognize.Config
}

// Provider is a mock implementation of recognize.Provider.
type Provider struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StartCalls records every call to Start in order.
	StartCalls []StartCall

	sessions []*Session
}

// Start records the call and returns a new Session that has already emitted
// EventStart.
func (p *Provider) Start(ctx context.Context, cfg recognize.Config) (recognize.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = append(p.StartCalls, StartCall{Ctx: ctx, Config: cfg})
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := NewSession()
	s.Emit(recognize.Event{Type: recognize.EventStart})
	p.sessions = append(p.sessions, s)
	return s, nil
}

// LastSession returns the most recently started session, or nil.
func (p *Provider) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// LastConfig returns the config of the most recent Start call.
func (p *Provider) LastConfig() recognize.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.StartCalls) == 0 {
		return recognize.Config{}
	}
	return p.StartCalls[len(p.StartCalls)-1].Config
}

// StartCallCount returns the number of Start calls.
func (p *Provider) StartCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartCalls)
}

// Session is a scripted recognize.Session.
type Session struct {
	mu        sync.Mutex
	events    chan recognize.Event
	closed    bool
	stopCalls int

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// KeepOpenOnStop makes Stop record the call without ending the stream,
	// for tests that need a platform that ends late.
	KeepOpenOnStop bool
}

// NewSession returns an open session with a buffered event stream.
func NewSession() *Session {
	return &Session{events: make(chan recognize.Event, 64)}
}

// Events implements recognize.Session.
func (s *Session) Events() <-chan recognize.Event { return s.events }

// Emit sends ev unless the stream is closed. It reports whether ev was sent.
func (s *Session) Emit(ev recognize.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.events <- ev
	return true
}

// Interim emits a non-final result.
func (s *Session) Interim(transcript string, confidence float64) bool {
	return s.Emit(recognize.Event{Type: recognize.EventResult, Result: recognize.Result{Transcript: transcript, Confidence: confidence}})
}

// Final emits a final result.
func (s *Session) Final(transcript string, confidence float64) bool {
	return s.Emit(recognize.Event{Type: recognize.EventResult, Result: recognize.Result{Transcript: transcript, Confidence: confidence, IsFinal: true}})
}

// Fail emits an error event.
func (s *Session) Fail(code string, err error) bool {
	return s.Emit(recognize.Event{Type: recognize.EventError, Code: code, Err: err})
}

// End emits EventEnd and closes the stream. Further calls are no-ops.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- recognize.Event{Type: recognize.EventEnd}
	s.closed = true
	close(s.events)
}

// Stop implements recognize.Session.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.stopCalls++
	keep := s.KeepOpenOnStop
	err := s.StopErr
	s.mu.Unlock()
	if !keep {
		s.End()
	}
	return err
}

// StopCallCount returns the number of Stop calls.
func (s *Session) StopCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

// Closed reports whether End has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Ensure the mocks implement the recognize interfaces at compile time.
var (
	_ recognize.Provider = (*Provider)(nil)
	_ recognize.Session  = (*Session)(nil)
)
