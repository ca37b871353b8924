package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/tutorvoz/pkg/audio"
	audiomock "github.com/MrWong99/tutorvoz/pkg/audio/mock"
	"github.com/MrWong99/tutorvoz/pkg/provider/recognize"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	t.Parallel()

	p, err := New("test-key", &audiomock.Capturer{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rawURL, err := p.buildURL(recognize.Config{Language: "es-ES", InterimResults: true, MaxAlternatives: 1})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "es", q.Get("language"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "alternatives", "1", q.Get("alternatives"))
}

func TestBuildURL_Language(t *testing.T) {
	t.Parallel()

	p, err := New("key", &audiomock.Capturer{}, WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		cfg  string
		want string
	}{
		{"", "en"},
		{"en-US", "en"},
		{"es-MX", "es"},
		{"fr-FR", "fr-FR"},
		{"pt", "pt"},
	}
	for _, tt := range tests {
		rawURL, err := p.buildURL(recognize.Config{Language: tt.cfg})
		if err != nil {
			t.Fatalf("buildURL: %v", err)
		}
		u, _ := url.Parse(rawURL)
		assertEqual(t, "language for "+tt.cfg, tt.want, u.Query().Get("language"))
	}
}

func TestBuildURL_Keywords(t *testing.T) {
	t.Parallel()

	nova, _ := New("key", &audiomock.Capturer{})
	base, _ := New("key", &audiomock.Capturer{}, WithModel("base"))
	cfg := recognize.Config{Keywords: []string{"rojo", "azul"}}

	rawURL, _ := nova.buildURL(cfg)
	u, _ := url.Parse(rawURL)
	if got := u.Query()["keyterm"]; !slices.Equal(got, []string{"rojo", "azul"}) {
		t.Errorf("nova-3 keyterm = %v", got)
	}
	if got := u.Query()["keywords"]; len(got) != 0 {
		t.Errorf("nova-3 keywords = %v, want none", got)
	}

	rawURL, _ = base.buildURL(cfg)
	u, _ = url.Parse(rawURL)
	if got := u.Query()["keywords"]; !slices.Equal(got, []string{"rojo:2", "azul:2"}) {
		t.Errorf("base keywords = %v", got)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", &audiomock.Capturer{}); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New("key", nil); err == nil {
		t.Error("expected error for nil capturer")
	}
}

// ---- response parsing ----

func TestParseDeepgramResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  string
		want recognize.Result
		ok   bool
	}{
		{
			name: "final",
			msg:  `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"rojo","confidence":0.93}]}}`,
			want: recognize.Result{Transcript: "rojo", Confidence: 0.93, IsFinal: true},
			ok:   true,
		},
		{
			name: "interim",
			msg:  `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"ro","confidence":0.4}]}}`,
			want: recognize.Result{Transcript: "ro", Confidence: 0.4},
			ok:   true,
		},
		{name: "empty transcript", msg: `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" "}]}}`},
		{name: "no alternatives", msg: `{"type":"Results","channel":{"alternatives":[]}}`},
		{name: "metadata", msg: `{"type":"Metadata","request_id":"x"}`},
		{name: "garbage", msg: `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseDeepgramResponse([]byte(tt.msg))
			if ok != tt.ok || got != tt.want {
				t.Errorf("parse = (%+v, %v), want (%+v, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

// ---- session tests against a local websocket server ----

// fakeDeepgram accepts one connection, sends msgs, then either closes with
// closeStatus or keeps reading until the client hangs up.
func fakeDeepgram(t *testing.T, msgs []string, closeStatus websocket.StatusCode) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		for _, m := range msgs {
			if err := c.Write(ctx, websocket.MessageText, []byte(m)); err != nil {
				return
			}
		}
		if closeStatus != 0 {
			c.Close(closeStatus, "server closing")
			return
		}
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func collect(t *testing.T, s recognize.Session) []recognize.Event {
	t.Helper()
	var out []recognize.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out; events so far: %v", out)
		}
	}
}

func types(events []recognize.Event) []recognize.EventType {
	out := make([]recognize.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func mic() *audiomock.Capturer {
	return &audiomock.Capturer{Frames: []audio.Frame{
		{Data: make([]byte, 320), SampleRate: 16000, Channels: 1},
		{Data: make([]byte, 320), SampleRate: 16000, Channels: 1},
	}}
}

const (
	interimMsg = `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"ro","confidence":0.3}]}}`
	finalMsg   = `{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"rojo","confidence":0.9}]}}`
)

func TestSession_SingleShotEndsAfterFinal(t *testing.T) {
	t.Parallel()

	endpoint := fakeDeepgram(t, []string{interimMsg, finalMsg}, 0)
	m := mic()
	p, err := New("test-key", m, WithEndpoint(endpoint))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s, err := p.Start(context.Background(), recognize.Config{Language: "es-ES", InterimResults: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := collect(t, s)

	want := []recognize.EventType{recognize.EventStart, recognize.EventResult, recognize.EventResult, recognize.EventEnd}
	if got := types(events); !slices.Equal(got, want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	if events[2].Result.Transcript != "rojo" || !events[2].Result.IsFinal {
		t.Errorf("final result = %+v", events[2].Result)
	}
	if m.CaptureCallCount() != 1 || m.CaptureCalls[0].Format != audio.Recognition {
		t.Errorf("capture calls = %+v", m.CaptureCalls)
	}
}

func TestSession_InterimSuppressedWhenDisabled(t *testing.T) {
	t.Parallel()

	endpoint := fakeDeepgram(t, []string{interimMsg, finalMsg}, 0)
	p, _ := New("test-key", mic(), WithEndpoint(endpoint))
	s, err := p.Start(context.Background(), recognize.Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	want := []recognize.EventType{recognize.EventStart, recognize.EventResult, recognize.EventEnd}
	if got := types(collect(t, s)); !slices.Equal(got, want) {
		t.Errorf("event types = %v, want %v", got, want)
	}
}

func TestSession_ContinuousStop(t *testing.T) {
	t.Parallel()

	endpoint := fakeDeepgram(t, []string{finalMsg}, 0)
	p, _ := New("test-key", mic(), WithEndpoint(endpoint))
	s, err := p.Start(context.Background(), recognize.Config{Continuous: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait for the result before stopping.
	select {
	case ev := <-s.Events():
		if ev.Type != recognize.EventStart {
			t.Fatalf("first event = %v, want start", ev.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no start event")
	}
	select {
	case ev := <-s.Events():
		if ev.Type != recognize.EventResult {
			t.Fatalf("second event = %v, want result", ev.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no result event")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	_ = s.Stop()

	want := []recognize.EventType{recognize.EventEnd}
	if got := types(collect(t, s)); !slices.Equal(got, want) {
		t.Errorf("events after stop = %v, want %v", got, want)
	}
}

func TestSession_NoSpeechTimeout(t *testing.T) {
	t.Parallel()

	endpoint := fakeDeepgram(t, nil, 0)
	p, _ := New("test-key", mic(), WithEndpoint(endpoint), WithNoSpeechTimeout(50*time.Millisecond))
	s, err := p.Start(context.Background(), recognize.Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := collect(t, s)

	want := []recognize.EventType{recognize.EventStart, recognize.EventError, recognize.EventEnd}
	if got := types(events); !slices.Equal(got, want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	if events[1].Code != recognize.CodeNoSpeech || !errors.Is(events[1].Err, recognize.ErrNoSpeech) {
		t.Errorf("error event = %+v", events[1])
	}
}

func TestSession_ServerFailure(t *testing.T) {
	t.Parallel()

	endpoint := fakeDeepgram(t, nil, websocket.StatusInternalError)
	p, _ := New("test-key", mic(), WithEndpoint(endpoint), WithNoSpeechTimeout(0))
	s, err := p.Start(context.Background(), recognize.Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := collect(t, s)

	want := []recognize.EventType{recognize.EventStart, recognize.EventError, recognize.EventEnd}
	if got := types(events); !slices.Equal(got, want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	if events[1].Code != recognize.CodeNetwork {
		t.Errorf("code = %q, want %q", events[1].Code, recognize.CodeNetwork)
	}
}

func TestSession_ContextCancelAborts(t *testing.T) {
	t.Parallel()

	endpoint := fakeDeepgram(t, nil, 0)
	p, _ := New("test-key", mic(), WithEndpoint(endpoint), WithNoSpeechTimeout(0))
	ctx, cancel := context.WithCancel(context.Background())
	s, err := p.Start(ctx, recognize.Config{Continuous: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	events := collect(t, s)

	want := []recognize.EventType{recognize.EventStart, recognize.EventError, recognize.EventEnd}
	if got := types(events); !slices.Equal(got, want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	if events[1].Code != recognize.CodeAborted {
		t.Errorf("code = %q, want %q", events[1].Code, recognize.CodeAborted)
	}
}

func TestStart_Failures(t *testing.T) {
	t.Parallel()

	t.Run("unauthorized", func(t *testing.T) {
		t.Parallel()
		endpoint := fakeDeepgram(t, nil, 0)
		p, _ := New("wrong-key", mic(), WithEndpoint(endpoint))
		if _, err := p.Start(context.Background(), recognize.Config{}); err == nil {
			t.Error("expected dial error")
		}
	})

	t.Run("microphone", func(t *testing.T) {
		t.Parallel()
		endpoint := fakeDeepgram(t, nil, 0)
		p, _ := New("test-key", &audiomock.Capturer{CaptureErr: errors.New("no device")}, WithEndpoint(endpoint))
		if _, err := p.Start(context.Background(), recognize.Config{}); err == nil {
			t.Error("expected capture error")
		}
	})
}

// ---- helpers ----

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: want %q, got %q", field, want, got)
	}
}
