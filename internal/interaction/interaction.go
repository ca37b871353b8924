// Package interaction runs one spoken answer attempt at a time: it opens a
// listening session for a domain, judges final transcripts against the
// expected answer and reports exactly one verdict or a reason why none was
// produced.
//
// The attempt state machine is
//
//	Idle → AwaitingAnswer → Resolved → Idle
//	          ↑        ↓
//	          └ Unrecognized
//
// An indeterminate transcript asks the child to repeat without restarting
// the capture session. Platform errors close the session; errors and
// sessions that end in silence return to Idle without a verdict.
package interaction

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/tutorvoz/internal/answer"
	"github.com/MrWong99/tutorvoz/internal/listener"
	"github.com/MrWong99/tutorvoz/internal/observe"
)

var (
	// ErrBusy is returned by BeginListening while an attempt is in progress.
	ErrBusy = errors.New("interaction: already awaiting an answer")

	// ErrUnsupported is returned when speech recognition is unavailable.
	ErrUnsupported = errors.New("interaction: speech recognition unsupported")

	// ErrStartFailed is returned when the listener refuses to open a session.
	ErrStartFailed = errors.New("interaction: failed to start listening")
)

// State is the controller's attempt state.
type State int

const (
	StateIdle State = iota
	StateAwaitingAnswer
	StateUnrecognized
	StateResolved
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateUnrecognized:
		return "unrecognized"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Verdict is the judgement of one attempt.
type Verdict struct {
	Correct    bool
	Transcript string
	Confidence float64
}

// FeedbackKind identifies a non-verdict signal sent to the caller.
type FeedbackKind int

const (
	// FeedbackListening carries a raw interim transcript.
	FeedbackListening FeedbackKind = iota + 1
	// FeedbackRepeat asks the caller to prompt the child again.
	FeedbackRepeat
	// FeedbackError reports a platform failure; the attempt is over.
	FeedbackError
	// FeedbackEnded reports a session that ended without a verdict.
	FeedbackEnded
)

// String implements [fmt.Stringer].
func (k FeedbackKind) String() string {
	switch k {
	case FeedbackListening:
		return "listening"
	case FeedbackRepeat:
		return "repeat"
	case FeedbackError:
		return "error"
	case FeedbackEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Feedback is a signal about an attempt that is not a verdict.
type Feedback struct {
	Kind       FeedbackKind
	Transcript string

	// Code and Err are set for FeedbackError.
	Code string
	Err  error
}

// Option is a functional option for [New].
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// attempt is the caller's view of one BeginListening call.
type attempt struct {
	ctx        context.Context
	domain     answer.Domain
	expected   string
	onVerdict  func(Verdict)
	onFeedback func(Feedback)

	// started is set once the attempt's own session reports its start.
	// Events seen before that belong to an earlier session.
	started bool
}

// Controller is safe for concurrent use. Callbacks run on the listener's
// event goroutine and must not block for long.
type Controller struct {
	listener *listener.Engine
	matcher  *answer.Matcher
	log      *slog.Logger
	metrics  *observe.Metrics

	mu      sync.Mutex
	state   State
	current *attempt
}

// New creates a Controller and subscribes it to l's events.
func New(l *listener.Engine, m *answer.Matcher, opts ...Option) *Controller {
	c := &Controller{
		listener: l,
		matcher:  m,
		log:      slog.Default(),
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(c)
	}
	l.Subscribe(c.handle)
	return c
}

// Supported reports whether spoken answers can be captured.
func (c *Controller) Supported() bool { return c.listener.Supported() }

// State returns the current attempt state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// BeginListening starts an attempt for an answer of domain. onVerdict is
// called at most once; onFeedback receives interim transcripts, repeat
// requests and the reason an attempt ended without a verdict. Either
// callback may be nil. When onVerdict runs the controller is already Idle,
// so it may begin the next attempt.
func (c *Controller) BeginListening(ctx context.Context, domain answer.Domain, expected string, onVerdict func(Verdict), onFeedback func(Feedback)) error {
	if !c.listener.Supported() {
		return ErrUnsupported
	}
	a := &attempt{
		ctx:        ctx,
		domain:     domain,
		expected:   expected,
		onVerdict:  onVerdict,
		onFeedback: onFeedback,
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateAwaitingAnswer
	c.current = a
	c.mu.Unlock()

	var hints []string
	if e := strings.TrimSpace(expected); e != "" {
		hints = append(hints, e)
	}
	if !c.listener.StartListening(ctx, domain, hints...) {
		c.mu.Lock()
		if c.current == a {
			c.state = StateIdle
			c.current = nil
		}
		c.mu.Unlock()
		return ErrStartFailed
	}
	c.log.Debug("awaiting answer", "domain", domain, "expected", expected)
	return nil
}

// Cancel abandons the current attempt without a verdict. It is a no-op when
// idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.current = nil
	c.mu.Unlock()

	c.listener.StopListening()
}

func (c *Controller) handle(ev listener.Event) {
	c.mu.Lock()
	a := c.current
	if a == nil || c.state != StateAwaitingAnswer {
		c.mu.Unlock()
		return
	}
	if ev.Type == listener.EventStart {
		a.started = true
		c.mu.Unlock()
		return
	}
	if !a.started {
		c.mu.Unlock()
		return
	}

	switch ev.Type {
	case listener.EventResult:
		if ev.Result.Kind == listener.KindInterim {
			c.mu.Unlock()
			feedback(a, Feedback{Kind: FeedbackListening, Transcript: ev.Result.Transcript})
			return
		}
		c.mu.Unlock()
		c.judge(a, ev.Result)

	case listener.EventError:
		c.state = StateIdle
		c.current = nil
		c.mu.Unlock()
		c.log.Warn("listening failed", "domain", a.domain, "code", ev.Code, "err", ev.Err)
		// The platform need not end the session after an error.
		c.listener.StopListening()
		feedback(a, Feedback{Kind: FeedbackError, Code: ev.Code, Err: ev.Err})

	case listener.EventEnd:
		c.state = StateIdle
		c.current = nil
		c.mu.Unlock()
		c.log.Debug("listening ended without an answer", "domain", a.domain)
		feedback(a, Feedback{Kind: FeedbackEnded})

	default:
		c.mu.Unlock()
	}
}

// judge resolves a final transcript for attempt a.
func (c *Controller) judge(a *attempt, r listener.Result) {
	result := c.matcher.Judge(a.domain, r.Transcript, a.expected)

	c.mu.Lock()
	if c.current != a || c.state != StateAwaitingAnswer {
		// Cancelled while judging.
		c.mu.Unlock()
		return
	}
	if result == answer.Indeterminate {
		c.state = StateUnrecognized
		c.mu.Unlock()

		c.log.Debug("answer not understood", "domain", a.domain, "transcript", r.Transcript)
		c.metrics.RecordVerdict(a.ctx, string(a.domain), "unrecognized")
		feedback(a, Feedback{Kind: FeedbackRepeat, Transcript: r.Transcript})

		c.mu.Lock()
		if c.current == a && c.state == StateUnrecognized {
			c.state = StateAwaitingAnswer
		}
		c.mu.Unlock()
		return
	}
	c.state = StateResolved
	c.mu.Unlock()

	v := Verdict{
		Correct:    result == answer.Match,
		Transcript: r.Transcript,
		Confidence: r.Confidence,
	}
	outcome := "incorrect"
	if v.Correct {
		outcome = "correct"
	}
	c.log.Info("answer judged", "domain", a.domain, "expected", a.expected, "transcript", r.Transcript, "correct", v.Correct)
	c.metrics.RecordVerdict(a.ctx, string(a.domain), outcome)

	c.listener.StopListening()

	c.mu.Lock()
	if c.current == a {
		c.state = StateIdle
		c.current = nil
	}
	c.mu.Unlock()

	if a.onVerdict != nil {
		a.onVerdict(v)
	}
}

func feedback(a *attempt, f Feedback) {
	if a.onFeedback != nil {
		a.onFeedback(f)
	}
}
