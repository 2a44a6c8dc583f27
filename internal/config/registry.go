package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/nara/pkg/playback"
	"github.com/MrWong99/nara/pkg/provider/llm"
	"github.com/MrWong99/nara/pkg/provider/stt"
	"github.com/MrWong99/nara/pkg/provider/tts"
	"github.com/MrWong99/nara/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// exists for the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type T from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factorySet holds the factories for one provider kind.
type factorySet[T any] struct {
	kind string
	byID map[string]Factory[T]
}

func newFactorySet[T any](kind string) factorySet[T] {
	return factorySet[T]{kind: kind, byID: make(map[string]Factory[T])}
}

func (s factorySet[T]) create(entry ProviderEntry) (T, error) {
	f, ok := s.byID[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q (have %v)", ErrProviderNotRegistered, s.kind, entry.Name, s.names())
	}
	return f(entry)
}

func (s factorySet[T]) names() []string {
	return slices.Sorted(maps.Keys(s.byID))
}

// Registry maps provider names to factories for each provider kind the
// service wires at startup. Registering a name twice replaces the earlier
// factory. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	llm      factorySet[llm.Provider]
	stt      factorySet[stt.Provider]
	tts      factorySet[tts.Provider]
	vad      factorySet[vad.Engine]
	playback factorySet[playback.Adapter]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:      newFactorySet[llm.Provider]("llm"),
		stt:      newFactorySet[stt.Provider]("stt"),
		tts:      newFactorySet[tts.Provider]("tts"),
		vad:      newFactorySet[vad.Engine]("vad"),
		playback: newFactorySet[playback.Adapter]("playback"),
	}
}

func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.byID[name] = f
}

func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.byID[name] = f
}

func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.byID[name] = f
}

func (r *Registry) RegisterVAD(name string, f Factory[vad.Engine]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad.byID[name] = f
}

func (r *Registry) RegisterPlayback(name string, f Factory[playback.Adapter]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playback.byID[name] = f
}

// CreateLLM builds the LLM provider registered under entry.Name. The error
// wraps [ErrProviderNotRegistered] and lists the known names when none is.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(entry)
}

func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(entry)
}

func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.create(entry)
}

func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vad.create(entry)
}

func (r *Registry) CreatePlayback(entry ProviderEntry) (playback.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playback.create(entry)
}

// Names returns the sorted provider names registered for kind ("llm", "stt",
// "tts", "vad" or "playback"). Unknown kinds yield nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case r.llm.kind:
		return r.llm.names()
	case r.stt.kind:
		return r.stt.names()
	case r.tts.kind:
		return r.tts.names()
	case r.vad.kind:
		return r.vad.names()
	case r.playback.kind:
		return r.playback.names()
	}
	return nil
}
