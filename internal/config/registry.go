package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/tutorvoz/pkg/audio"
	"github.com/MrWong99/tutorvoz/pkg/provider/recognize"
	"github.com/MrWong99/tutorvoz/pkg/provider/synth"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// RecognizeFactory builds a recognition provider that listens on mic.
type RecognizeFactory func(entry ProviderEntry, mic audio.Capturer) (recognize.Provider, error)

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	synth     map[string]func(ProviderEntry) (synth.Provider, error)
	recognize map[string]RecognizeFactory
	audio     map[string]func(ProviderEntry) (audio.Device, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		synth:     make(map[string]func(ProviderEntry) (synth.Provider, error)),
		recognize: make(map[string]RecognizeFactory),
		audio:     make(map[string]func(ProviderEntry) (audio.Device, error)),
	}
}

// RegisterSynth registers a speech synthesis factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSynth(name string, factory func(ProviderEntry) (synth.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synth[name] = factory
}

// RegisterRecognize registers a speech recognition factory under name.
func (r *Registry) RegisterRecognize(name string, factory RecognizeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognize[name] = factory
}

// RegisterAudio registers a sound card factory under name.
func (r *Registry) RegisterAudio(name string, factory func(ProviderEntry) (audio.Device, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// CreateSynth instantiates the synthesis provider registered under
// entry.Name. Returns [ErrProviderNotRegistered] for unknown names.
func (r *Registry) CreateSynth(entry ProviderEntry) (synth.Provider, error) {
	r.mu.RLock()
	factory, ok := r.synth[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: synth/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateRecognize instantiates the recognition provider registered under
// entry.Name, capturing from mic.
func (r *Registry) CreateRecognize(entry ProviderEntry, mic audio.Capturer) (recognize.Provider, error) {
	r.mu.RLock()
	factory, ok := r.recognize[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognize/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, mic)
}

// CreateAudio instantiates the sound card registered under entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Device, error) {
	r.mu.RLock()
	factory, ok := r.audio[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Option returns entry.Options[key] as a string, or "" when unset or not a
// string.
func (e ProviderEntry) Option(key string) string {
	v, _ := e.Options[key].(string)
	return v
}
