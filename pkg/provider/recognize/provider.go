// Package recognize defines the Provider interface for speech recognition
// backends that own their audio input.
//
// A provider opens a recognition session that listens to the microphone
// and reports its lifecycle as a stream of events: one [EventStart], any
// number of [EventResult] and [EventError] events, and exactly one
// [EventEnd], after which the channel is closed.
//
// Implementations must be safe for concurrent use.
package recognize

import (
	"context"
	"errors"
)

// Error codes carried by [EventError]. They follow the vocabulary browsers
// use for speech recognition so log lines read the same across platforms.
const (
	CodeNoSpeech     = "no-speech"
	CodeAudioCapture = "audio-capture"
	CodeNetwork      = "network"
	CodeNotAllowed   = "not-allowed"
	CodeAborted      = "aborted"
)

// ErrNoSpeech is reported with [CodeNoSpeech] when a single-shot session
// hears nothing before its timeout.
var ErrNoSpeech = errors.New("recognize: no speech detected")

// Config describes one recognition session.
type Config struct {
	// Language is the BCP-47 tag to recognise, e.g. "es-ES".
	Language string

	// Continuous keeps the session open after the first final result.
	Continuous bool

	// InterimResults enables non-final hypotheses.
	InterimResults bool

	// MaxAlternatives caps the hypotheses per result. Only the first one is
	// reported.
	MaxAlternatives int

	// Keywords are vocabulary hints, typically the expected answers.
	Keywords []string
}

// Result is one recognition hypothesis.
type Result struct {
	Transcript string

	// Confidence is in [0, 1]. Zero when the backend does not report one.
	Confidence float64

	IsFinal bool
}

// EventType identifies the kind of [Event].
type EventType int

const (
	EventStart EventType = iota + 1
	EventResult
	EventError
	EventEnd
)

// String implements [fmt.Stringer].
func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Event is one notification from a recognition session.
type Event struct {
	Type EventType

	// Result is set for [EventResult].
	Result Result

	// Code and Err are set for [EventError].
	Code string
	Err  error
}

// Session is a running recognition session.
type Session interface {
	// Events returns the session's event stream. Callers must drain it until
	// it is closed.
	Events() <-chan Event

	// Stop ends the session. The stream still finishes with [EventEnd].
	// Calling Stop more than once is safe.
	Stop() error
}

// Provider is the abstraction over any speech recognition backend.
type Provider interface {
	// Start opens a session. A non-nil error means nothing was started and
	// no events will follow.
	Start(ctx context.Context, cfg Config) (Session, error)
}
