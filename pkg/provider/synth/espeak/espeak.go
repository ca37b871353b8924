// Package espeak provides a synth.Provider that speaks through the
// espeak-ng command line synthesiser.
//
// Every utterance runs one espeak-ng process which plays the audio on the
// default output device. The catalogue is read from "espeak-ng --voices";
// each platform voice is listed twice, once as reported and once with a
// female variant applied, so gender preferences can be honoured even though
// espeak-ng voices themselves are gender-neutral.
//
// The command is parsed with shell quoting rules, so a wrapper such as
// "pw-play-wrap espeak-ng" or an absolute path with arguments is accepted.
package espeak

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/MrWong99/tutorvoz/pkg/provider/synth"
)

const (
	defaultCommand = "espeak-ng"
	defaultVariant = "f3"

	baseWPM       = 175
	minWPM        = 80
	maxWPM        = 450
	basePitch     = 50
	maxPitch      = 99
	baseAmplitude = 100
	maxAmplitude  = 200
)

// Option is a functional option for [New].
type Option func(*Provider)

// WithCommand sets the synthesiser command line. Default: "espeak-ng".
func WithCommand(command string) Option {
	return func(p *Provider) {
		p.command = command
	}
}

// WithFemaleVariant sets the espeak-ng variant appended to voices for the
// female entries of the catalogue. Default: "f3". An empty variant disables
// the extra entries.
func WithFemaleVariant(variant string) Option {
	return func(p *Provider) {
		p.variant = variant
	}
}

// Provider implements synth.Provider on top of espeak-ng.
type Provider struct {
	command string
	variant string
	argv    []string

	mu  sync.Mutex
	ids map[string]string // display name → espeak-ng voice identifier
}

// New parses the configured command line and returns a Provider.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		command: defaultCommand,
		variant: defaultVariant,
		ids:     make(map[string]string),
	}
	for _, o := range opts {
		o(p)
	}
	argv, err := shellwords.NewParser().Parse(p.command)
	if err != nil {
		return nil, fmt.Errorf("espeak: parse command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("espeak: command is empty")
	}
	p.argv = argv
	return p, nil
}

// Voices runs "<command> --voices" and parses its table.
func (p *Provider) Voices(ctx context.Context) ([]synth.Voice, error) {
	cmd := p.cmd(ctx, "--voices")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("espeak: list voices: %w", err)
	}
	entries, err := parseVoices(bytes.NewReader(out), p.variant)
	if err != nil {
		return nil, fmt.Errorf("espeak: list voices: %w", err)
	}

	voices := make([]synth.Voice, 0, len(entries))
	p.mu.Lock()
	for _, e := range entries {
		p.ids[e.voice.Name] = e.id
		voices = append(voices, e.voice)
	}
	p.mu.Unlock()
	return voices, nil
}

// Speak starts one espeak-ng process for u. Cancelling ctx kills the
// process and reports the context error.
func (p *Provider) Speak(ctx context.Context, u synth.Utterance) (<-chan synth.Event, error) {
	cmd := p.cmd(ctx, p.args(u)...)
	cmd.Stdin = strings.NewReader(u.Text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("espeak: start: %w", err)
	}

	events := make(chan synth.Event, 2)
	events <- synth.Event{Type: synth.EventStart}
	go func() {
		defer close(events)
		err := cmd.Wait()
		switch {
		case ctx.Err() != nil:
			events <- synth.Event{Type: synth.EventError, Err: ctx.Err()}
		case err != nil:
			msg := strings.TrimSpace(stderr.String())
			events <- synth.Event{Type: synth.EventError, Err: fmt.Errorf("espeak: speak: %w: %s", err, msg)}
		default:
			events <- synth.Event{Type: synth.EventEnd}
		}
	}()
	return events, nil
}

func (p *Provider) cmd(ctx context.Context, extra ...string) *exec.Cmd {
	args := append(append([]string{}, p.argv[1:]...), extra...)
	cmd := exec.CommandContext(ctx, p.argv[0], args...)
	cmd.WaitDelay = time.Second
	return cmd
}

// args maps u onto espeak-ng flags. Scales are linear around the espeak-ng
// defaults (175 wpm, pitch 50, amplitude 100).
func (p *Provider) args(u synth.Utterance) []string {
	var args []string
	if v := p.voiceID(u); v != "" {
		args = append(args, "-v", v)
	}
	args = append(args,
		"-s", strconv.Itoa(scale(u.Rate, baseWPM, minWPM, maxWPM)),
		"-p", strconv.Itoa(scale(u.Pitch, basePitch, 0, maxPitch)),
		"-a", strconv.Itoa(scale(u.Volume, baseAmplitude, 0, maxAmplitude)),
		"-b", "1",
		"--stdin",
	)
	return args
}

func (p *Provider) voiceID(u synth.Utterance) string {
	if u.Voice != "" {
		p.mu.Lock()
		id, ok := p.ids[u.Voice]
		p.mu.Unlock()
		if ok {
			return id
		}
		return u.Voice
	}
	return strings.ToLower(u.Language)
}

func scale(factor float64, base, lo, hi int) int {
	return max(lo, min(hi, int(factor*float64(base)+0.5)))
}

type voiceEntry struct {
	voice synth.Voice
	id    string
}

// parseVoices reads the table printed by "espeak-ng --voices":
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  es              --/M      Spanish_(Spain)    roa/es
func parseVoices(r io.Reader, variant string) ([]voiceEntry, error) {
	var out []voiceEntry
	sc := bufio.NewScanner(r)
	header := true
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if header {
			header = false
			if len(fields) > 0 && strings.EqualFold(fields[0], "pty") {
				continue
			}
		}
		if len(fields) < 4 {
			continue
		}
		lang := fields[1]
		name := strings.ReplaceAll(fields[3], "_", " ")

		gender := ""
		if _, g, ok := strings.Cut(fields[2], "/"); ok {
			switch strings.ToUpper(g) {
			case "M":
				gender = " male"
			case "F":
				gender = " female"
			}
		}
		out = append(out, voiceEntry{
			voice: synth.Voice{Name: name + gender, Language: lang},
			id:    lang,
		})
		if variant != "" && gender != " female" {
			out = append(out, voiceEntry{
				voice: synth.Voice{Name: name + " female", Language: lang},
				id:    lang + "+" + variant,
			})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Ensure Provider implements synth.Provider at compile time.
var _ synth.Provider = (*Provider)(nil)
