// Package audio provides the PCM chunk type exchanged with speech providers
// and the G.711 mu-law codec used on the telephony leg.
package audio

import (
	"fmt"
	"time"
)

// PCM is a chunk of 16-bit little-endian PCM audio. Providers receive and
// produce PCM; the transport converts to and from the wire encoding.
type PCM struct {
	Data        []byte
	SampleRate  int
	NumChannels int
}

// NewPCM validates that the data length holds whole samples for the given
// channel count.
func NewPCM(data []byte, sampleRate, numChannels int) (PCM, error) {
	if numChannels < 1 {
		return PCM{}, fmt.Errorf("audio: invalid channel count %d", numChannels)
	}
	if len(data)%(2*numChannels) != 0 {
		return PCM{}, fmt.Errorf("audio: data length %d is not a whole number of %d-channel samples", len(data), numChannels)
	}
	return PCM{Data: data, SampleRate: sampleRate, NumChannels: numChannels}, nil
}

// SampleCount returns the number of samples per channel.
func (p PCM) SampleCount() int {
	if p.NumChannels == 0 {
		return 0
	}
	return len(p.Data) / (2 * p.NumChannels)
}

// Duration returns the playback duration of the chunk.
func (p PCM) Duration() time.Duration {
	if p.SampleRate == 0 {
		return 0
	}
	return time.Duration(p.SampleCount()) * time.Second / time.Duration(p.SampleRate)
}

// Clone returns a deep copy of the chunk.
func (p PCM) Clone() PCM {
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	return PCM{Data: data, SampleRate: p.SampleRate, NumChannels: p.NumChannels}
}

// Samples decodes the data into int16 samples (interleaved if multi-channel).
func (p PCM) Samples() []int16 {
	out := make([]int16, len(p.Data)/2)
	for i := range out {
		out[i] = int16(uint16(p.Data[2*i]) | uint16(p.Data[2*i+1])<<8)
	}
	return out
}

// FromSamples encodes int16 samples into a PCM chunk.
func FromSamples(samples []int16, sampleRate, numChannels int) PCM {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[2*i] = byte(s)
		data[2*i+1] = byte(uint16(s) >> 8)
	}
	return PCM{Data: data, SampleRate: sampleRate, NumChannels: numChannels}
}
