package espeak

import (
	"context"
	"errors"
	"os/exec"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/tutorvoz/pkg/provider/synth"
)

const voicesTable = `Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  en-us           --/M      English_(America)  gmw/en-US            (en 3)
 5  es              --/M      Spanish_(Spain)    roa/es
 5  es-419          --/F      Spanish_(Latin_America) roa/es-419      (es-mx 6)
`

func TestParseVoices(t *testing.T) {
	t.Parallel()

	entries, err := parseVoices(strings.NewReader(voicesTable), "f3")
	if err != nil {
		t.Fatalf("parseVoices: %v", err)
	}

	want := []voiceEntry{
		{synth.Voice{Name: "English (America) male", Language: "en-us"}, "en-us"},
		{synth.Voice{Name: "English (America) female", Language: "en-us"}, "en-us+f3"},
		{synth.Voice{Name: "Spanish (Spain) male", Language: "es"}, "es"},
		{synth.Voice{Name: "Spanish (Spain) female", Language: "es"}, "es+f3"},
		{synth.Voice{Name: "Spanish (Latin America) female", Language: "es-419"}, "es-419"},
	}
	if !slices.Equal(entries, want) {
		t.Errorf("parseVoices =\n%v\nwant\n%v", entries, want)
	}
}

func TestParseVoices_NoVariant(t *testing.T) {
	t.Parallel()

	entries, err := parseVoices(strings.NewReader(voicesTable), "")
	if err != nil {
		t.Fatalf("parseVoices: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("len = %d, want 3", len(entries))
	}
}

func TestArgs(t *testing.T) {
	t.Parallel()

	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.ids["Spanish (Spain) female"] = "es+f3"

	tests := []struct {
		name string
		u    synth.Utterance
		want []string
	}{
		{
			name: "catalogue voice",
			u:    synth.Utterance{Voice: "Spanish (Spain) female", Rate: 0.9, Pitch: 1.1, Volume: 0.8},
			want: []string{"-v", "es+f3", "-s", "158", "-p", "55", "-a", "80", "-b", "1", "--stdin"},
		},
		{
			name: "language fallback",
			u:    synth.Utterance{Language: "es-ES", Rate: 1, Pitch: 1, Volume: 1},
			want: []string{"-v", "es-es", "-s", "175", "-p", "50", "-a", "100", "-b", "1", "--stdin"},
		},
		{
			name: "clamped",
			u:    synth.Utterance{Voice: "custom", Rate: 0.1, Pitch: 2, Volume: 0},
			want: []string{"-v", "custom", "-s", "80", "-p", "99", "-a", "0", "-b", "1", "--stdin"},
		},
		{
			name: "no voice no language",
			u:    synth.Utterance{Rate: 2, Pitch: 0, Volume: 1},
			want: []string{"-s", "350", "-p", "0", "-a", "100", "-b", "1", "--stdin"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := p.args(tt.u); !slices.Equal(got, tt.want) {
				t.Errorf("args = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_BadCommand(t *testing.T) {
	t.Parallel()

	if _, err := New(WithCommand("")); err == nil {
		t.Error("expected error for empty command")
	}
	if _, err := New(WithCommand(`espeak-ng "unterminated`)); err == nil {
		t.Error("expected error for unterminated quote")
	}
}

func drain(t *testing.T, ch <-chan synth.Event) []synth.Event {
	t.Helper()
	var out []synth.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
}

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func TestSpeak_Success(t *testing.T) {
	t.Parallel()
	requireBinary(t, "true")

	p, err := New(WithCommand("true"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := p.Speak(context.Background(), synth.Utterance{Text: "hola", Rate: 1, Pitch: 1, Volume: 1})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	events := drain(t, ch)
	if len(events) != 2 || events[0].Type != synth.EventStart || events[1].Type != synth.EventEnd {
		t.Errorf("events = %v, want [start end]", events)
	}
}

func TestSpeak_ProcessFailure(t *testing.T) {
	t.Parallel()
	requireBinary(t, "false")

	p, err := New(WithCommand("false"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := p.Speak(context.Background(), synth.Utterance{Text: "hola"})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	events := drain(t, ch)
	if len(events) != 2 || events[1].Type != synth.EventError || events[1].Err == nil {
		t.Errorf("events = %v, want [start error]", events)
	}
}

func TestSpeak_Cancel(t *testing.T) {
	t.Parallel()
	requireBinary(t, "sh")

	p, err := New(WithCommand(`sh -c 'exec sleep 10' sh`))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.Speak(ctx, synth.Utterance{Text: "hola"})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	cancel()
	events := drain(t, ch)
	if len(events) != 2 || events[1].Type != synth.EventError || !errors.Is(events[1].Err, context.Canceled) {
		t.Errorf("events = %v, want [start error(canceled)]", events)
	}
}

func TestSpeak_StartFailure(t *testing.T) {
	t.Parallel()

	p, err := New(WithCommand("/nonexistent/espeak-ng-binary"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Speak(context.Background(), synth.Utterance{Text: "hola"}); err == nil {
		t.Error("expected start error")
	}
}
