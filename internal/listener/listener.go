// Package listener is the speech input engine: it runs one recognition
// session at a time, filters final transcripts by confidence and reports
// the session lifecycle to subscribers.
//
// Every session opens with one [EventStart] and ends with exactly one
// [EventEnd], whether it was stopped by the caller, ended by the platform or
// failed. Errors are reported before the end event. Events are delivered one
// at a time in the order they were accepted, so no event of a session is
// delivered after its end. Interim transcripts are always surfaced; final transcripts
// below the session threshold are dropped and the session stays open.
package listener

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/tutorvoz/internal/answer"
	"github.com/MrWong99/tutorvoz/internal/notify"
	"github.com/MrWong99/tutorvoz/internal/observe"
	"github.com/MrWong99/tutorvoz/internal/profile"
	"github.com/MrWong99/tutorvoz/pkg/provider/recognize"
)

// Domain is the kind of answer a session listens for. It selects the
// default confidence threshold.
type Domain = answer.Domain

const (
	DomainColor  = answer.DomainColor
	DomainNumber = answer.DomainNumber
	DomainWord   = answer.DomainWord
)

// DefaultThreshold returns the minimum final-result confidence for d.
// Closed vocabularies tolerate looser thresholds. Unknown domains return 0,
// meaning the profile's confidence applies.
func DefaultThreshold(d Domain) float64 {
	switch d {
	case DomainColor:
		return 0.6
	case DomainNumber:
		return 0.7
	case DomainWord:
		return 0.8
	default:
		return 0
	}
}

// Kind distinguishes interim from final transcripts.
type Kind int

const (
	KindInterim Kind = iota + 1
	KindFinal
)

// String implements [fmt.Stringer].
func (k Kind) String() string {
	switch k {
	case KindInterim:
		return "interim"
	case KindFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Result is one surfaced transcript.
type Result struct {
	Transcript string
	Confidence float64
	Kind       Kind
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

// Event is one notification about the current session.
type Event struct {
	Type   EventType
	Result Result

	// Code and Err are set for [EventError]; Code uses the
	// [recognize.CodeNoSpeech] family of values.
	Code string
	Err  error
}

// Config is the configuration applied to the next (or current) session.
type Config struct {
	Language   string
	Continuous bool
	Threshold  float64
}

// Option is a functional option for [New].
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithContinuous sets the initial continuous flag. Default: single-shot.
func WithContinuous(continuous bool) Option {
	return func(e *Engine) {
		e.continuous = continuous
	}
}

// Engine runs recognition sessions through a [recognize.Provider]. It is
// safe for concurrent use.
type Engine struct {
	provider recognize.Provider
	profiles *profile.Store
	log      *slog.Logger
	metrics  *observe.Metrics
	events   notify.Hub[Event]

	mu         sync.Mutex
	continuous bool
	threshold  float64
	active     bool
	gen        uint64
	session    recognize.Session
	cancel     context.CancelFunc

	// queue holds accepted events not yet delivered. flushing is set while
	// some goroutine is delivering them.
	queue    []Event
	flushing bool
}

// New creates an Engine. provider may be nil when the platform cannot
// recognise speech; the engine then reports itself unsupported.
func New(provider recognize.Provider, profiles *profile.Store, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		profiles: profiles,
		log:      slog.Default(),
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(e)
	}
	e.threshold = profiles.Current().Confidence
	if provider == nil {
		e.log.Warn("speech recognition unavailable, listener disabled")
	}
	return e
}

// Supported reports whether a recognition provider is present.
func (e *Engine) Supported() bool { return e.provider != nil }

// Subscribe registers fn for session events.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	return e.events.Subscribe(fn)
}

// Listening reports whether a session is active.
func (e *Engine) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Config returns the configuration of the current or next session.
func (e *Engine) Config() Config {
	p := e.profiles.Current()
	e.mu.Lock()
	defer e.mu.Unlock()
	return Config{
		Language:   p.RecognitionLanguage(),
		Continuous: e.continuous,
		Threshold:  e.threshold,
	}
}

// SetLanguage persists the recognition language in the profile. It takes
// effect with the next session.
func (e *Engine) SetLanguage(ctx context.Context, lang string) {
	e.profiles.SetLanguage(ctx, lang)
}

// SetConfidence persists the default threshold, clamped to [0.1, 1.0], and
// applies it to the next session.
func (e *Engine) SetConfidence(ctx context.Context, c float64) {
	p := e.profiles.SetConfidence(ctx, c)
	e.mu.Lock()
	e.threshold = p.Confidence
	e.mu.Unlock()
}

// SetContinuous sets whether the next session stays open after its first
// final result.
func (e *Engine) SetContinuous(continuous bool) {
	e.mu.Lock()
	e.continuous = continuous
	e.mu.Unlock()
}

// StartListening opens a session with the default threshold of domain.
// hints are passed to the platform as vocabulary hints. It reports false
// when unsupported, when a session is already active (which is left
// untouched) or when the platform refuses to start.
func (e *Engine) StartListening(ctx context.Context, domain Domain, hints ...string) bool {
	return e.start(ctx, DefaultThreshold(domain), hints)
}

// StartListeningWithThreshold opens a session with an explicit threshold,
// clamped to [0.1, 1.0].
func (e *Engine) StartListeningWithThreshold(ctx context.Context, threshold float64, hints ...string) bool {
	return e.start(ctx, profile.ClampConfidence(threshold), hints)
}

// ToggleListening stops an active session or starts one for domain. It
// reports whether a session is active afterwards.
func (e *Engine) ToggleListening(ctx context.Context, domain Domain) bool {
	if e.StopListening() {
		return false
	}
	return e.StartListening(ctx, domain)
}

func (e *Engine) start(ctx context.Context, threshold float64, hints []string) bool {
	if e.provider == nil {
		e.log.Debug("cannot listen, speech recognition unavailable")
		return false
	}
	p := e.profiles.Current()

	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		e.log.Debug("already listening, start ignored")
		return false
	}
	if threshold <= 0 {
		threshold = p.Confidence
	}
	e.gen++
	gen := e.gen
	e.active = true
	e.threshold = threshold
	cfg := recognize.Config{
		Language:        p.RecognitionLanguage(),
		Continuous:      e.continuous,
		InterimResults:  true,
		MaxAlternatives: 1,
		Keywords:        hints,
	}
	e.mu.Unlock()

	sctx, cancel := context.WithCancel(ctx)
	sess, err := e.provider.Start(sctx, cfg)
	if err != nil {
		cancel()
		e.mu.Lock()
		if e.gen == gen {
			e.active = false
		}
		e.mu.Unlock()
		e.log.Warn("failed to start speech recognition", "err", err)
		e.metrics.RecordRecognitionError(ctx, "start-failed")
		return false
	}

	e.mu.Lock()
	if e.gen != gen {
		// Stopped while the platform was starting.
		e.mu.Unlock()
		_ = sess.Stop()
		cancel()
		go drain(sess)
		return false
	}
	e.session = sess
	e.cancel = cancel
	run := e.enqueue(Event{Type: EventStart})
	e.mu.Unlock()
	if run {
		e.flush()
	}

	e.log.Debug("listening", "language", cfg.Language, "continuous", cfg.Continuous, "threshold", threshold)
	e.metrics.ListeningSessions.Add(ctx, 1)
	go e.pump(ctx, gen, sess, threshold)
	return true
}

// StopListening ends the active session. Late platform events of the
// stopped session are discarded. The end event is delivered before
// StopListening returns, unless another event is being delivered at that
// moment (for example when called from a subscriber); it then follows that
// event. It reports false when nothing was active.
func (e *Engine) StopListening() bool {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return false
	}
	e.active = false
	e.gen++
	sess, cancel := e.session, e.cancel
	e.session, e.cancel = nil, nil
	run := e.enqueue(Event{Type: EventEnd})
	e.mu.Unlock()

	if sess != nil {
		if err := sess.Stop(); err != nil {
			e.log.Warn("failed to stop speech recognition", "err", err)
		}
	}
	if cancel != nil {
		cancel()
	}
	if run {
		e.flush()
	}
	return true
}

// pump translates platform events of session gen until the platform closes
// the stream.
func (e *Engine) pump(ctx context.Context, gen uint64, sess recognize.Session, threshold float64) {
	defer e.metrics.ListeningSessions.Add(ctx, -1)

	for ev := range sess.Events() {
		switch ev.Type {
		case recognize.EventStart:
			// Reported by start once the session is registered.
		case recognize.EventResult:
			e.result(ctx, gen, ev.Result, threshold)
		case recognize.EventError:
			e.log.Warn("speech recognition error", "code", ev.Code, "err", ev.Err)
			e.metrics.RecordRecognitionError(ctx, ev.Code)
			e.emit(gen, Event{Type: EventError, Code: ev.Code, Err: ev.Err})
		case recognize.EventEnd:
			e.end(gen)
		}
	}
	e.end(gen)
}

func (e *Engine) result(ctx context.Context, gen uint64, r recognize.Result, threshold float64) {
	if !r.IsFinal {
		e.metrics.RecordRecognitionResult(ctx, "interim", "surfaced")
		e.emit(gen, Event{Type: EventResult, Result: Result{Transcript: r.Transcript, Confidence: r.Confidence, Kind: KindInterim}})
		return
	}
	if r.Confidence < threshold {
		e.log.Debug("final transcript below threshold dropped",
			"transcript", r.Transcript,
			"confidence", r.Confidence,
			"threshold", threshold,
		)
		e.metrics.RecordRecognitionResult(ctx, "final", "dropped")
		return
	}
	e.metrics.RecordRecognitionResult(ctx, "final", "surfaced")
	e.emit(gen, Event{Type: EventResult, Result: Result{Transcript: r.Transcript, Confidence: r.Confidence, Kind: KindFinal}})
}

// emit queues ev for delivery if session gen is still the active one.
func (e *Engine) emit(gen uint64, ev Event) {
	e.mu.Lock()
	if !e.active || e.gen != gen {
		e.mu.Unlock()
		return
	}
	run := e.enqueue(ev)
	e.mu.Unlock()
	if run {
		e.flush()
	}
}

// enqueue appends ev to the delivery queue. It must be called with e.mu
// held and reports whether the caller has to run flush after unlocking.
func (e *Engine) enqueue(ev Event) bool {
	e.queue = append(e.queue, ev)
	if e.flushing {
		return false
	}
	e.flushing = true
	return true
}

// flush delivers queued events until the queue is empty. Events queued by
// subscribers during delivery are picked up by the same loop.
func (e *Engine) flush() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.flushing = false
			e.mu.Unlock()
			return
		}
		ev := e.queue[0]
		e.queue[0] = Event{}
		e.queue = e.queue[1:]
		e.mu.Unlock()
		e.events.Publish(ev)
	}
}

// end closes session gen once.
func (e *Engine) end(gen uint64) {
	e.mu.Lock()
	if !e.active || e.gen != gen {
		e.mu.Unlock()
		return
	}
	e.active = false
	cancel := e.cancel
	e.session, e.cancel = nil, nil
	run := e.enqueue(Event{Type: EventEnd})
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if run {
		e.flush()
	}
}

func drain(sess recognize.Session) {
	for range sess.Events() {
	}
}
