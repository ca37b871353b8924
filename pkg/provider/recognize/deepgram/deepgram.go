// Package deepgram provides a recognize.Provider backed by the Deepgram
// streaming WebSocket API. Audio comes from an [audio.Capturer] and is
// converted to 16 kHz mono linear PCM before it is sent.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/tutorvoz/pkg/audio"
	"github.com/MrWong99/tutorvoz/pkg/provider/recognize"
)

const (
	deepgramEndpoint       = "wss://api.deepgram.com/v1/listen"
	defaultModel           = "nova-3"
	defaultLanguage        = "es"
	defaultNoSpeechTimeout = 8 * time.Second
	keywordBoost           = 2
)

var errCaptureClosed = errors.New("deepgram: microphone stream closed")

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language used when a session config has none.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithNoSpeechTimeout sets how long a single-shot session waits for a
// result before it fails with [recognize.CodeNoSpeech]. Zero disables the
// timeout. Default: 8s.
func WithNoSpeechTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.noSpeech = d
	}
}

// Provider implements recognize.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	mic      audio.Capturer
	endpoint string
	model    string
	language string
	noSpeech time.Duration
}

// New creates a new Deepgram Provider. apiKey must be non-empty and mic
// non-nil.
func New(apiKey string, mic audio.Capturer, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	if mic == nil {
		return nil, errors.New("deepgram: audio capturer must not be nil")
	}
	p := &Provider{
		apiKey:   apiKey,
		mic:      mic,
		endpoint: deepgramEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
		noSpeech: defaultNoSpeechTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Start dials Deepgram, opens the microphone and begins streaming.
// Cancelling ctx aborts the session.
func (p *Provider) Start(ctx context.Context, cfg recognize.Config) (recognize.Session, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)
	frames, err := p.mic.Capture(sctx, audio.Recognition)
	if err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "microphone unavailable")
		return nil, fmt.Errorf("deepgram: open microphone: %w", err)
	}

	s := &session{
		parent: ctx,
		ctx:    sctx,
		cancel: cancel,
		conn:   conn,
		cfg:    cfg,
		events: make(chan recognize.Event, 64),
	}
	s.events <- recognize.Event{Type: recognize.EventStart}

	if !cfg.Continuous && p.noSpeech > 0 {
		s.mu.Lock()
		s.timer = time.AfterFunc(p.noSpeech, func() {
			s.fail(recognize.CodeNoSpeech, recognize.ErrNoSpeech)
			s.shutdown()
		})
		s.mu.Unlock()
	}

	go s.writeLoop(audio.ConvertStream(frames, audio.Recognition))
	go s.readLoop()
	return s, nil
}

// buildURL constructs the streaming endpoint URL for cfg. Deepgram expects
// the primary language subtag for Spanish and English ("es", "en").
func (p *Provider) buildURL(cfg recognize.Config) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	if primary, _, ok := strings.Cut(lang, "-"); ok {
		if primary = strings.ToLower(primary); primary == "es" || primary == "en" {
			lang = primary
		}
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(audio.Recognition.SampleRate))
	q.Set("channels", strconv.Itoa(audio.Recognition.Channels))
	q.Set("punctuate", "true")
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	if cfg.MaxAlternatives > 0 {
		q.Set("alternatives", strconv.Itoa(cfg.MaxAlternatives))
	}

	// nova-3 replaced keyword boosting with keyterm prompting.
	for _, kw := range cfg.Keywords {
		if strings.HasPrefix(p.model, "nova-3") {
			q.Add("keyterm", kw)
		} else {
			q.Add("keywords", fmt.Sprintf("%s:%d", kw, keywordBoost))
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type failure struct {
	code string
	err  error
}

// session is a live Deepgram streaming session. readLoop is the only
// goroutine that writes to events.
type session struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	conn   *websocket.Conn
	cfg    recognize.Config
	events chan recognize.Event

	stopped      atomic.Bool
	shutdownOnce sync.Once

	mu     sync.Mutex
	timer  *time.Timer
	failed *failure
}

func (s *session) Events() <-chan recognize.Event { return s.events }

// Stop ends the session without reporting an error.
func (s *session) Stop() error {
	s.stopped.Store(true)
	s.shutdown()
	return nil
}

// fail records the first failure of the session.
func (s *session) fail(code string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil && !s.stopped.Load() {
		s.failed = &failure{code: code, err: err}
	}
}

func (s *session) stopTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
}

// shutdown flushes Deepgram, closes the connection and releases the
// microphone.
func (s *session) shutdown() {
	s.shutdownOnce.Do(func() {
		s.stopTimer()
		wctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = s.conn.Write(wctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		cancel()
		s.cancel()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
}

// writeLoop forwards microphone frames to Deepgram as binary messages.
func (s *session) writeLoop(frames <-chan audio.Frame) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				if s.ctx.Err() == nil {
					s.fail(recognize.CodeAudioCapture, errCaptureClosed)
					s.shutdown()
				}
				return
			}
			if err := s.conn.Write(s.ctx, websocket.MessageBinary, f.Data); err != nil {
				if s.ctx.Err() == nil {
					s.fail(recognize.CodeNetwork, fmt.Errorf("deepgram: send audio: %w", err))
					s.shutdown()
				}
				return
			}
		}
	}
}

// readLoop turns Deepgram messages into events and finishes the stream with
// exactly one EventEnd.
func (s *session) readLoop() {
	defer close(s.events)

	for {
		_, msg, err := s.conn.Read(s.ctx)
		if err != nil {
			s.readFailed(err)
			break
		}
		res, ok := parseDeepgramResponse(msg)
		if !ok || (!res.IsFinal && !s.cfg.InterimResults) {
			continue
		}
		s.stopTimer()
		s.events <- recognize.Event{Type: recognize.EventResult, Result: res}
		if res.IsFinal && !s.cfg.Continuous {
			break
		}
	}
	s.shutdown()
	s.events <- recognize.Event{Type: recognize.EventEnd}
}

func (s *session) readFailed(err error) {
	s.mu.Lock()
	f := s.failed
	s.mu.Unlock()

	switch {
	case f != nil:
		s.events <- recognize.Event{Type: recognize.EventError, Code: f.code, Err: f.err}
	case s.stopped.Load():
	case s.parent.Err() != nil:
		s.events <- recognize.Event{Type: recognize.EventError, Code: recognize.CodeAborted, Err: s.parent.Err()}
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure:
	default:
		s.events <- recognize.Event{Type: recognize.EventError, Code: recognize.CodeNetwork, Err: fmt.Errorf("deepgram: read: %w", err)}
	}
}

// parseDeepgramResponse parses a raw Deepgram message. Messages other than
// non-empty Results are ignored.
func parseDeepgramResponse(data []byte) (recognize.Result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return recognize.Result{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return recognize.Result{}, false
	}
	alt := resp.Channel.Alternatives[0]
	if strings.TrimSpace(alt.Transcript) == "" {
		return recognize.Result{}, false
	}
	return recognize.Result{
		Transcript: alt.Transcript,
		Confidence: alt.Confidence,
		IsFinal:    resp.IsFinal,
	}, true
}

// Ensure Provider implements recognize.Provider at compile time.
var _ recognize.Provider = (*Provider)(nil)
