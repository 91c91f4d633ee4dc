package plugin

import (
	"reflect"
	"testing"
	"time"

	"github.com/chriscow/callpipe-go/pkg/ai/vad"
)

type mockProvider struct {
	name string
}

func newMockProvider(cfg map[string]any) (any, error) {
	name := "default"
	if n, ok := cfg["name"].(string); ok {
		name = n
	}
	return &mockProvider{name: name}, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(KindSTT, "mock", newMockProvider)

	factory, ok := r.Get(KindSTT, "mock")
	if !ok {
		t.Fatal("expected plugin to be registered")
	}

	instance, err := factory(map[string]any{"name": "test"})
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	mock, ok := instance.(*mockProvider)
	if !ok {
		t.Fatalf("expected mockProvider, got %T", instance)
	}
	if mock.name != "test" {
		t.Errorf("name = %q, want %q", mock.name, "test")
	}

	if _, ok := r.Get(KindSTT, "nonexistent"); ok {
		t.Error("expected lookup miss for unregistered name")
	}
	if _, ok := r.Get("nonexistent", "mock"); ok {
		t.Error("expected lookup miss for unregistered kind")
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(KindSTT, "mock", newMockProvider)

	defer func() {
		if recover() == nil {
			t.Error("expected panic for duplicate registration")
		}
	}()
	r.Register(KindSTT, "mock", newMockProvider)
}

func TestRegistryRejectsBadRegistrations(t *testing.T) {
	cases := []struct {
		desc string
		p    *Plugin
	}{
		{"empty kind", &Plugin{Name: "mock", Factory: newMockProvider}},
		{"empty name", &Plugin{Kind: KindSTT, Factory: newMockProvider}},
		{"nil factory", &Plugin{Kind: KindSTT, Name: "mock"}},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("expected panic for %s", tc.desc)
				}
			}()
			NewRegistry().RegisterWithMetadata(tc.p)
		})
	}
}

func TestRegistryListSortsByKindThenName(t *testing.T) {
	r := NewRegistry()
	r.Register(KindSTT, "openai", newMockProvider)
	r.Register(KindSTT, "fake", newMockProvider)
	r.Register(KindTTS, "openai", newMockProvider)

	all := r.List("")
	want := []struct{ kind, name string }{
		{KindSTT, "fake"},
		{KindSTT, "openai"},
		{KindTTS, "openai"},
	}
	if len(all) != len(want) {
		t.Fatalf("got %d plugins, want %d", len(all), len(want))
	}
	for i, w := range want {
		if all[i].Kind != w.kind || all[i].Name != w.name {
			t.Errorf("plugin %d = %s/%s, want %s/%s", i, all[i].Kind, all[i].Name, w.kind, w.name)
		}
	}

	if got := r.List(KindSTT); len(got) != 2 {
		t.Errorf("stt plugins = %d, want 2", len(got))
	}
	if got := r.List("nonexistent"); len(got) != 0 {
		t.Errorf("nonexistent plugins = %d, want 0", len(got))
	}
}

func TestRegistryListKinds(t *testing.T) {
	r := NewRegistry()
	if kinds := r.ListKinds(); len(kinds) != 0 {
		t.Errorf("expected no kinds initially, got %v", kinds)
	}

	r.Register(KindSTT, "mock", newMockProvider)
	r.Register(KindTTS, "mock", newMockProvider)
	r.Register(KindVAD, "mock", newMockProvider)

	want := []string{KindSTT, KindTTS, KindVAD}
	if got := r.ListKinds(); !reflect.DeepEqual(got, want) {
		t.Errorf("kinds = %v, want %v", got, want)
	}
}

func TestRegistryClear(t *testing.T) {
	r := NewRegistry()
	r.Register(KindSTT, "mock", newMockProvider)
	r.Register(KindTTS, "mock", newMockProvider)

	r.Clear()
	if got := r.List(""); len(got) != 0 {
		t.Errorf("expected empty registry after clear, got %d plugins", len(got))
	}
}

func TestEnergyVADRegistered(t *testing.T) {
	v, err := NewVAD("energy", map[string]any{
		"threshold":   500,
		"min_silence": "300ms",
	})
	if err != nil {
		t.Fatalf("NewVAD: %v", err)
	}
	if v == nil {
		t.Fatal("expected a detector")
	}
	if got := v.Capabilities().MinSilenceDuration; got != 300*time.Millisecond {
		t.Errorf("min silence = %v, want 300ms", got)
	}
	var _ vad.VAD = v
}

func TestNewVADRejectsUnknownName(t *testing.T) {
	if _, err := NewVAD("does-not-exist", nil); err == nil {
		t.Error("expected error for unregistered provider")
	}
}

func TestNewVADRejectsEmptyName(t *testing.T) {
	if _, err := NewVAD("", nil); err == nil {
		t.Error("expected error for empty provider name")
	}
}
