// Package plugin provides the provider registry. STT, TTS, LLM, and VAD
// implementations register themselves by kind and name at init time, and
// the session builder looks them up from configuration.
package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a provider instance from configuration. The returned
// value is cast to the contract for its kind (stt.STT, tts.TTS, llm.LLM,
// or vad.VAD).
type Factory func(cfg map[string]any) (any, error)

// Downloader is implemented by plugins that need model files fetched
// before first use.
type Downloader interface {
	Download() error
}

// Provider kinds.
const (
	KindSTT = "stt"
	KindTTS = "tts"
	KindLLM = "llm"
	KindVAD = "vad"
)

// Plugin is a registered provider with its metadata.
type Plugin struct {
	Kind        string
	Name        string
	Factory     Factory
	Description string
	Downloader  Downloader
}

// Registry manages plugin registration and lookup.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]map[string]*Plugin // [kind][name]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]map[string]*Plugin)}
}

var globalRegistry = NewRegistry()

// Register adds a plugin to the global registry. Typically called from
// init() in provider packages. Panics on duplicate kind/name.
func Register(kind, name string, factory Factory) {
	globalRegistry.Register(kind, name, factory)
}

// RegisterWithMetadata adds a plugin with metadata to the global registry.
// Panics on duplicate kind/name.
func RegisterWithMetadata(p *Plugin) {
	globalRegistry.RegisterWithMetadata(p)
}

// Get retrieves a factory from the global registry.
func Get(kind, name string) (Factory, bool) {
	return globalRegistry.Get(kind, name)
}

// List returns the global registry's plugins of a kind, or all plugins
// when kind is empty.
func List(kind string) []*Plugin {
	return globalRegistry.List(kind)
}

// ListKinds returns the kinds registered in the global registry.
func ListKinds() []string {
	return globalRegistry.ListKinds()
}

// Register adds a plugin to this registry. Panics on duplicate kind/name.
func (r *Registry) Register(kind, name string, factory Factory) {
	r.RegisterWithMetadata(&Plugin{Kind: kind, Name: name, Factory: factory})
}

// RegisterWithMetadata adds a plugin to this registry. Registration happens
// at init time, so a broken registration is a programming error and panics.
func (r *Registry) RegisterWithMetadata(p *Plugin) {
	if p.Kind == "" {
		panic("plugin: kind cannot be empty")
	}
	if p.Name == "" {
		panic("plugin: name cannot be empty")
	}
	if p.Factory == nil {
		panic("plugin: factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.plugins[p.Kind] == nil {
		r.plugins[p.Kind] = make(map[string]*Plugin)
	}
	if _, exists := r.plugins[p.Kind][p.Name]; exists {
		panic(fmt.Sprintf("plugin: %s/%s already registered", p.Kind, p.Name))
	}
	r.plugins[p.Kind][p.Name] = p
}

// Get retrieves a factory from this registry.
func (r *Registry) Get(kind, name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kindMap, ok := r.plugins[kind]
	if !ok {
		return nil, false
	}
	p, ok := kindMap[name]
	if !ok {
		return nil, false
	}
	return p.Factory, true
}

// List returns this registry's plugins of a kind, or all plugins when kind
// is empty, sorted by kind then name.
func (r *Registry) List(kind string) []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Plugin
	for k, kindMap := range r.plugins {
		if kind != "" && k != kind {
			continue
		}
		for _, p := range kindMap {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ListKinds returns this registry's kinds in sorted order.
func (r *Registry) ListKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.plugins))
	for kind := range r.plugins {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Clear removes all plugins from this registry. Primarily for tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = make(map[string]map[string]*Plugin)
}
