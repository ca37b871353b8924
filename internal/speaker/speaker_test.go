package speaker

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/tutorvoz/internal/profile"
	"github.com/MrWong99/tutorvoz/pkg/kv/memory"
	"github.com/MrWong99/tutorvoz/pkg/provider/synth"
	"github.com/MrWong99/tutorvoz/pkg/provider/synth/mock"
)

var spanishVoices = []synth.Voice{
	{Name: "Jorge", Language: "es-ES"},
	{Name: "Monica", Language: "es-ES"},
}

// recorder collects engine events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func record(e *Engine) *recorder {
	r := &recorder{notify: make(chan struct{}, 64)}
	e.Subscribe(func(ev Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
		select {
		case r.notify <- struct{}{}:
		default:
		}
	})
	return r
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// waitFor blocks until an event matching typ and text has been recorded.
func (r *recorder) waitFor(t *testing.T, typ EventType, text string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, ev := range r.snapshot() {
			if ev.Type == typ && ev.Text == text {
				return
			}
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %s %q; got %+v", typ, text, r.snapshot())
		}
	}
}

func waitSpoke(t *testing.T, p *mock.Provider, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for p.SpeakCallCount() < n {
		select {
		case <-p.Spoke():
		case <-deadline:
			t.Fatalf("timed out waiting for %d Speak calls; got %d", n, p.SpeakCallCount())
		}
	}
}

func newEngine(t *testing.T, p synth.Provider) (*Engine, *profile.Store) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	store := profile.NewStore(memory.New())
	return New(ctx, p, store, WithLogger(slog.New(slog.DiscardHandler))), store
}

func TestEngine_NilProvider(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, nil)
	r := record(e)

	e.Speak(context.Background(), "hola", Options{})
	e.SpeakSegmented(context.Background(), "hola. adiós", 0)
	e.Pause()
	e.Resume()
	e.Stop()

	if e.Supported() {
		t.Error("Supported() = true, want false")
	}
	if e.Speaking() {
		t.Error("Speaking() = true, want false")
	}
	if _, ok := e.Selected(); ok {
		t.Error("Selected() reported a voice")
	}
	if len(e.ListVoices(context.Background())) != 0 {
		t.Error("ListVoices not empty")
	}
	if evs := r.snapshot(); len(evs) != 0 {
		t.Errorf("events = %+v, want none", evs)
	}
}

func TestEngine_SpeakUsesSelectedVoiceAndProfile(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{VoicesResult: spanishVoices}
	e, _ := newEngine(t, p)
	r := record(e)

	if sel, ok := e.Selected(); !ok || sel.Name != "Monica" {
		t.Fatalf("Selected() = %+v, %v; want Monica", sel, ok)
	}

	e.Speak(context.Background(), "hola", Options{})
	r.waitFor(t, EventEnd, "hola")

	got := p.SpeakCalls[0].Utterance
	want := synth.Utterance{Text: "hola", Voice: "Monica", Language: "es-ES", Rate: 0.9, Pitch: 1.1, Volume: 0.8}
	if got != want {
		t.Errorf("utterance = %+v, want %+v", got, want)
	}
	if e.Speaking() {
		t.Error("still speaking after end")
	}
}

func TestEngine_SpeakOverrides(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{VoicesResult: spanishVoices}
	e, _ := newEngine(t, p)
	r := record(e)

	rate, pitch, volume := 5.0, -1.0, 0.5
	e.Speak(context.Background(), "hi", Options{Rate: &rate, Pitch: &pitch, Volume: &volume, Language: "en-GB"})
	r.waitFor(t, EventEnd, "hi")

	got := p.SpeakCalls[0].Utterance
	if got.Rate != profile.MaxRate || got.Pitch != profile.MinPitch || got.Volume != 0.5 || got.Language != "en-GB" {
		t.Errorf("utterance = %+v", got)
	}
}

func TestEngine_SpeakWithEffect(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{VoicesResult: spanishVoices}
	e, _ := newEngine(t, p)
	r := record(e)

	e.SpeakWithEffect(context.Background(), "¡bravo!", EffectExcited)
	r.waitFor(t, EventEnd, "¡bravo!")

	got := p.SpeakCalls[0].Utterance
	if got.Rate != 1.0 || got.Pitch != 1.1 || got.Volume != 0.8 {
		t.Errorf("utterance = %+v, want excited preset with profile volume", got)
	}
}

func TestEngine_SkipsWhenDisabledOrBlank(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{VoicesResult: spanishVoices}
	e, store := newEngine(t, p)

	e.Speak(context.Background(), "   ", Options{})
	store.SetEnabled(context.Background(), false)
	e.Speak(context.Background(), "hola", Options{})
	e.SpeakSegmented(context.Background(), "uno. dos.", 0)

	time.Sleep(20 * time.Millisecond)
	if n := p.SpeakCallCount(); n != 0 {
		t.Errorf("Speak calls = %d, want 0", n)
	}
}

func TestEngine_PreemptedUtteranceNeverEnds(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{VoicesResult: spanishVoices, Hold: true}
	e, _ := newEngine(t, p)
	r := record(e)

	e.Speak(context.Background(), "primero", Options{})
	e.Speak(context.Background(), "segundo", Options{})

	select {
	case <-p.SpeakCalls[0].Ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("first utterance was not cancelled")
	}

	if !p.Finish() {
		t.Fatal("nothing held")
	}
	r.waitFor(t, EventEnd, "segundo")

	for _, ev := range r.snapshot() {
		if ev.Text == "primero" && ev.Type != EventStart {
			t.Errorf("preempted utterance emitted %s", ev.Type)
		}
	}
}

func TestEngine_ProviderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("device busy")
	p := &mock.Provider{VoicesResult: spanishVoices, SpeakErr: boom}
	e, _ := newEngine(t, p)
	r := record(e)

	e.Speak(context.Background(), "hola", Options{})
	r.waitFor(t, EventError, "hola")

	evs := r.snapshot()
	if !errors.Is(evs[len(evs)-1].Err, boom) {
		t.Errorf("error = %v, want %v", evs[len(evs)-1].Err, boom)
	}
	if e.Speaking() {
		t.Error("Speaking() = true after failure")
	}
}

func TestEngine_PlaybackError(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{VoicesResult: spanishVoices, Hold: true}
	e, _ := newEngine(t, p)
	r := record(e)

	e.Speak(context.Background(), "hola", Options{})
	p.Fail(errors.New("audio device lost"))
	r.waitFor(t, EventError, "hola")
}

func TestEngine_SpeakAndWait(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		end     func(p *mock.Provider)
		wantErr bool
	}{
		{"finished", func(p *mock.Provider) { p.Finish() }, false},
		{"failed", func(p *mock.Provider) { p.Fail(errors.New("audio device lost")) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &mock.Provider{VoicesResult: spanishVoices, Hold: true}
			e, _ := newEngine(t, p)

			done := make(chan error, 1)
			go func() { done <- e.SpeakAndWait(context.Background(), "Hola", Options{}) }()
			waitSpoke(t, p, 1)

			select {
			case err := <-done:
				t.Fatalf("SpeakAndWait returned %v before the utterance ended", err)
			case <-time.After(20 * time.Millisecond):
			}

			tt.end(p)
			select {
			case err := <-done:
				if (err != nil) != tt.wantErr {
					t.Errorf("SpeakAndWait() error = %v, wantErr %v", err, tt.wantErr)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("SpeakAndWait did not return")
			}
		})
	}
}

func TestEngine_SpeakAndWaitPreempted(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{VoicesResult: spanishVoices, Hold: true}
	e, _ := newEngine(t, p)

	done := make(chan error, 1)
	go func() { done <- e.SpeakAndWait(context.Background(), "Hola", Options{}) }()
	waitSpoke(t, p, 1)
	e.Stop()

	select {
	case err := <-done:
		if err == nil {
			t.Error("SpeakAndWait() = nil for a stopped utterance")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SpeakAndWait did not return after Stop")
	}
}

func TestEngine_SpeakAndWaitUnavailable(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, nil)
	if err := e.SpeakAndWait(context.Background(), "Hola", Options{}); err == nil {
		t.Error("SpeakAndWait() = nil without a provider")
	}
}

func TestEngine_SegmentedChainsOnEnd(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{VoicesResult: spanishVoices, Hold: true}
	e, _ := newEngine(t, p)
	r := record(e)

	e.SpeakSegmented(context.Background(), "Hola. ¿Cómo estás? ¡Muy bien!", 5*time.Millisecond)
	waitSpoke(t, p, 1)

	// The next segment waits for the end event, not for a timer.
	time.Sleep(50 * time.Millisecond)
	if n := p.SpeakCallCount(); n != 1 {
		t.Fatalf("Speak calls before first end = %d, want 1", n)
	}

	p.Finish()
	waitSpoke(t, p, 2)
	p.Finish()
	waitSpoke(t, p, 3)
	p.Finish()
	r.waitFor(t, EventEnd, "¡Muy bien")

	if got, want := p.Texts(), []string{"Hola", "¿Cómo estás", "¡Muy bien"}; !slices.Equal(got, want) {
		t.Errorf("texts = %q, want %q", got, want)
	}
}

func TestEngine_SpeakSegmentedAndWait(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{VoicesResult: spanishVoices, Hold: true}
	e, _ := newEngine(t, p)

	done := make(chan error, 1)
	go func() { done <- e.SpeakSegmentedAndWait(context.Background(), "Uno. Dos.", time.Millisecond) }()

	waitSpoke(t, p, 1)
	p.Finish()
	waitSpoke(t, p, 2)
	select {
	case err := <-done:
		t.Fatalf("SpeakSegmentedAndWait returned %v before the last sentence ended", err)
	case <-time.After(20 * time.Millisecond):
	}
	p.Finish()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("SpeakSegmentedAndWait() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SpeakSegmentedAndWait did not return")
	}
	if got, want := p.Texts(), []string{"Uno", "Dos"}; !slices.Equal(got, want) {
		t.Errorf("texts = %q, want %q", got, want)
	}
}

func TestEngine_SpeakSegmentedAndWaitStopped(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{VoicesResult: spanishVoices, Hold: true}
	e, _ := newEngine(t, p)

	done := make(chan error, 1)
	go func() { done <- e.SpeakSegmentedAndWait(context.Background(), "Uno. Dos.", time.Millisecond) }()
	waitSpoke(t, p, 1)
	e.Stop()

	select {
	case err := <-done:
		if err == nil {
			t.Error("SpeakSegmentedAndWait() = nil for a stopped chain")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SpeakSegmentedAndWait did not return after Stop")
	}
	if n := p.SpeakCallCount(); n != 1 {
		t.Errorf("Speak calls = %d, want 1", n)
	}
}

func TestEngine_StopAbortsChain(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{VoicesResult: spanishVoices, Hold: true}
	e, _ := newEngine(t, p)
	r := record(e)

	e.SpeakSegmented(context.Background(), "uno. dos. tres.", time.Millisecond)
	waitSpoke(t, p, 1)
	if !e.Speaking() {
		t.Fatal("Speaking() = false during first segment")
	}

	e.Stop()
	e.Stop()

	time.Sleep(50 * time.Millisecond)
	if n := p.SpeakCallCount(); n != 1 {
		t.Errorf("Speak calls after Stop = %d, want 1", n)
	}
	if e.Speaking() {
		t.Error("Speaking() = true after Stop")
	}
	for _, ev := range r.snapshot() {
		if ev.Type != EventStart {
			t.Errorf("stopped utterance emitted %s", ev.Type)
		}
	}
}

func TestEngine_SpeakPreemptsChain(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{VoicesResult: spanishVoices, Hold: true}
	e, _ := newEngine(t, p)
	r := record(e)

	e.SpeakSegmented(context.Background(), "uno. dos.", time.Millisecond)
	waitSpoke(t, p, 1)
	e.Speak(context.Background(), "otra cosa", Options{})
	waitSpoke(t, p, 2)
	p.Finish()
	r.waitFor(t, EventEnd, "otra cosa")

	time.Sleep(30 * time.Millisecond)
	if got, want := p.Texts(), []string{"uno", "otra cosa"}; !slices.Equal(got, want) {
		t.Errorf("texts = %q, want %q", got, want)
	}
}

func TestEngine_SetEnabledFalseStops(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{VoicesResult: spanishVoices, Hold: true}
	e, store := newEngine(t, p)

	e.Speak(context.Background(), "hola", Options{})
	e.SetEnabled(context.Background(), false)

	if e.Speaking() {
		t.Error("Speaking() = true after disabling")
	}
	if store.Current().Enabled {
		t.Error("profile still enabled")
	}
	select {
	case <-p.SpeakCalls[0].Ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("utterance not cancelled")
	}
}

func TestEngine_PauseResume(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{VoicesResult: spanishVoices, Hold: true}
	e, _ := newEngine(t, p)

	e.Pause()
	if p.PauseCalls != 0 {
		t.Fatalf("Pause while idle reached provider")
	}

	e.Speak(context.Background(), "hola", Options{})
	e.Pause()
	e.Pause()
	e.Resume()
	e.Resume()

	if p.PauseCalls != 1 || p.ResumeCalls != 1 {
		t.Errorf("PauseCalls = %d, ResumeCalls = %d; want 1, 1", p.PauseCalls, p.ResumeCalls)
	}
}

func TestEngine_ReselectsOnProfileChange(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{VoicesResult: []synth.Voice{
		{Name: "Pablo", Language: "es-ES"},
		{Name: "Monica", Language: "es-ES"},
	}}
	e, store := newEngine(t, p)

	if sel, _ := e.Selected(); sel.Name != "Monica" {
		t.Fatalf("initial selection = %q, want Monica", sel.Name)
	}
	store.SetGender(context.Background(), profile.GenderMale)
	if sel, _ := e.Selected(); sel.Name != "Pablo" {
		t.Errorf("selection after gender change = %q, want Pablo", sel.Name)
	}
}

func TestEngine_ReselectsOnCatalogueChange(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	e, _ := newEngine(t, p)

	if _, ok := e.Selected(); ok {
		t.Fatal("voice selected from an empty catalogue")
	}
	p.SetVoices(spanishVoices)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if sel, ok := e.Selected(); ok && sel.Name == "Monica" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("engine did not pick up the new catalogue")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := e.ListVoices(context.Background()); len(got) != 2 {
		t.Errorf("ListVoices = %+v", got)
	}
}
