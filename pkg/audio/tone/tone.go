// Package tone renders the short feedback chimes the tutor plays after an
// answer (a rising C major arpeggio for success and a falling low buzz for
// errors) and the soft melody looped during music rests.
package tone

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/MrWong99/tutorvoz/pkg/audio"
)

// Waveform selects the oscillator shape.
type Waveform int

const (
	Sine Waveform = iota
	Square
)

// Note is one oscillator voice of a chime.
type Note struct {
	// Frequency in Hz.
	Frequency float64

	// Offset delays the note relative to the start of the chime.
	Offset time.Duration
}

// Chime describes a sequence of notes sharing one gain envelope. Each note
// starts at its offset and decays exponentially from StartGain to EndGain
// over Decay.
type Chime struct {
	Notes     []Note
	Waveform  Waveform
	StartGain float64
	EndGain   float64
	Decay     time.Duration
}

// Success is the correct-answer chime: C5, E5 and G5 100 ms apart.
func Success() Chime {
	return Chime{
		Notes: []Note{
			{Frequency: 523.25},
			{Frequency: 659.25, Offset: 100 * time.Millisecond},
			{Frequency: 783.99, Offset: 200 * time.Millisecond},
		},
		Waveform:  Sine,
		StartGain: 0.3,
		EndGain:   0.01,
		Decay:     300 * time.Millisecond,
	}
}

// Error is the wrong-answer buzz: 200 Hz followed by 150 Hz.
func Error() Chime {
	return Chime{
		Notes: []Note{
			{Frequency: 200},
			{Frequency: 150, Offset: 100 * time.Millisecond},
		},
		Waveform:  Square,
		StartGain: 0.2,
		EndGain:   0.01,
		Decay:     200 * time.Millisecond,
	}
}

// lullabyStep is the spacing of the lullaby's notes.
const lullabyStep = 600 * time.Millisecond

// Lullaby is a slow, quiet sine melody in C major. Each note rings for
// 1.2 s, so neighbouring notes overlap softly.
func Lullaby() Chime {
	freqs := []float64{392.00, 329.63, 392.00, 329.63, 440.00, 392.00, 349.23, 329.63, 293.66, 261.63}
	notes := make([]Note, len(freqs))
	for i, f := range freqs {
		notes[i] = Note{Frequency: f, Offset: time.Duration(i) * lullabyStep}
	}
	return Chime{
		Notes:     notes,
		Waveform:  Sine,
		StartGain: 0.15,
		EndGain:   0.005,
		Decay:     1200 * time.Millisecond,
	}
}

// Length returns the total duration of the chime.
func (c Chime) Length() time.Duration {
	var end time.Duration
	for _, n := range c.Notes {
		end = max(end, n.Offset+c.Decay)
	}
	return end
}

// Render synthesises c as 16-bit PCM in format f. Overlapping notes are
// summed and hard-clipped.
func (c Chime) Render(f audio.Format) []byte {
	if f.SampleRate <= 0 {
		return nil
	}
	channels := max(f.Channels, 1)
	total := int(c.Length().Seconds() * float64(f.SampleRate))
	mix := make([]float64, total)

	decayFrames := int(c.Decay.Seconds() * float64(f.SampleRate))
	ratio := 1.0
	if c.StartGain > 0 && c.EndGain > 0 && decayFrames > 0 {
		ratio = math.Pow(c.EndGain/c.StartGain, 1/float64(decayFrames))
	}

	for _, n := range c.Notes {
		start := int(n.Offset.Seconds() * float64(f.SampleRate))
		gain := c.StartGain
		for i := 0; i < decayFrames && start+i < total; i++ {
			phase := 2 * math.Pi * n.Frequency * float64(i) / float64(f.SampleRate)
			mix[start+i] += gain * c.Waveform.at(phase)
			gain *= ratio
		}
	}

	out := make([]byte, 2*channels*total)
	for i, v := range mix {
		s := int16(math.Round(max(-1, min(1, v)) * math.MaxInt16))
		for ch := range channels {
			binary.LittleEndian.PutUint16(out[2*(i*channels+ch):], uint16(s))
		}
	}
	return out
}

func (w Waveform) at(phase float64) float64 {
	if w == Square {
		if math.Sin(phase) >= 0 {
			return 1
		}
		return -1
	}
	return math.Sin(phase)
}
