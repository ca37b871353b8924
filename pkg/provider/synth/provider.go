// Package synth defines the Provider interface for speech synthesis
// backends that speak directly to the output device.
//
// Unlike a streaming PCM synthesiser, a synth provider owns playback: Speak
// starts one utterance and reports its lifecycle through an event channel.
// Cancelling the context passed to Speak cancels the utterance.
//
// Implementations must be safe for concurrent use.
package synth

import "context"

// Voice describes one voice from the platform catalogue.
type Voice struct {
	// Name is the platform's display name, e.g. "Mónica" or "spanish-latin-am".
	Name string

	// Language is a BCP-47 tag such as "es-ES". May be empty when the
	// platform does not report one.
	Language string

	// Default marks the platform's default voice.
	Default bool
}

// Utterance is a single request to speak text.
type Utterance struct {
	Text string

	// Voice is the catalogue name of the voice to use. Empty selects the
	// platform default.
	Voice string

	// Language is the BCP-47 tag the text is written in.
	Language string

	// Rate, Pitch and Volume use the platform scale where 1.0 is normal
	// speed, normal pitch and full volume respectively.
	Rate   float64
	Pitch  float64
	Volume float64
}

// EventType identifies the kind of [Event].
type EventType int

const (
	// EventStart is emitted once playback begins.
	EventStart EventType = iota + 1

	// EventEnd is emitted once playback finishes normally.
	EventEnd

	// EventError is emitted when the utterance fails or is cancelled. Err
	// carries the cause; cancellation reports the context error.
	EventError
)

// String implements [fmt.Stringer].
func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one lifecycle notification of an utterance.
type Event struct {
	Type EventType
	Err  error
}

// Provider is the abstraction over any speech synthesis backend.
type Provider interface {
	// Voices returns the current voice catalogue in platform order. The list
	// may be empty while the platform is still loading.
	Voices(ctx context.Context) ([]Voice, error)

	// Speak starts speaking u and returns a channel of lifecycle events.
	// The channel receives at most one [EventStart] followed by exactly one
	// terminal event ([EventEnd] or [EventError]) and is then closed.
	//
	// A non-nil error means the utterance could not be started at all.
	Speak(ctx context.Context, u Utterance) (<-chan Event, error)
}

// CatalogNotifier is implemented by providers whose voice catalogue may
// change after construction, e.g. when a platform loads voices lazily.
type CatalogNotifier interface {
	// VoicesChanged returns a channel that receives a value each time the
	// catalogue changes.
	VoicesChanged() <-chan struct{}
}

// Pauser is implemented by providers that can suspend and resume the
// utterance currently playing.
type Pauser interface {
	Pause() error
	Resume() error
}
