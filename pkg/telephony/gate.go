package telephony

import "sync/atomic"

// AudioGate tracks whether assistant playback is in progress. When
// interruptions are disabled the inbound caller audio is discarded while the
// gate is closed, so the caller cannot talk over the assistant.
type AudioGate interface {
	// SetPlaying marks whether assistant audio is currently being played.
	SetPlaying(playing bool)

	// Playing reports whether assistant audio is currently being played.
	Playing() bool
}

// NewAudioGate creates a gate in the open (not playing) state.
func NewAudioGate() AudioGate { return &defaultGate{} }

type defaultGate struct {
	playing atomic.Bool
}

func (g *defaultGate) SetPlaying(playing bool) { g.playing.Store(playing) }

func (g *defaultGate) Playing() bool { return g.playing.Load() }
