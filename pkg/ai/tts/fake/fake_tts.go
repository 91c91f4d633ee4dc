// Package fake provides a deterministic TTS implementation for tests.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/chriscow/callpipe-go/pkg/ai/tts"
	"github.com/chriscow/callpipe-go/pkg/audio"
)

// TTS synthesizes a 440 Hz tone, one 20 ms chunk per word of input text.
type TTS struct {
	// DelayPerChunk slows emission so tests can exercise backpressure and
	// mid-synthesis cancellation.
	DelayPerChunk time.Duration

	mu        sync.Mutex
	abandoned int
	completed int
}

// New creates a fake TTS provider.
func New() *TTS { return &TTS{} }

// Abandoned reports how many synthesis calls were cancelled before finishing.
func (f *TTS) Abandoned() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.abandoned
}

// Completed reports how many synthesis calls ran to completion.
func (f *TTS) Completed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *TTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (<-chan audio.PCM, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sampleRate := req.SampleRate
	if sampleRate == 0 {
		sampleRate = 8000
	}
	chunks := countWords(req.Text)
	if chunks == 0 {
		chunks = 1
	}

	out := make(chan audio.PCM, 4)
	go func() {
		defer close(out)
		samplesPerChunk := sampleRate / 50 // 20ms
		for i := 0; i < chunks; i++ {
			if f.DelayPerChunk > 0 {
				select {
				case <-time.After(f.DelayPerChunk):
				case <-ctx.Done():
					f.markAbandoned()
					return
				}
			}
			samples := make([]int16, samplesPerChunk)
			for j := range samples {
				n := i*samplesPerChunk + j
				samples[j] = int16(0.3 * 32767 * math.Sin(2*math.Pi*440*float64(n)/float64(sampleRate)))
			}
			select {
			case out <- audio.FromSamples(samples, sampleRate, 1):
			case <-ctx.Done():
				f.markAbandoned()
				return
			}
		}
		f.markCompleted()
	}()

	return out, nil
}

func (f *TTS) markAbandoned() {
	f.mu.Lock()
	f.abandoned++
	f.mu.Unlock()
}

func (f *TTS) markCompleted() {
	f.mu.Lock()
	f.completed++
	f.mu.Unlock()
}

func (f *TTS) Capabilities() tts.Capabilities {
	return tts.Capabilities{
		Streaming:   true,
		Voices:      []string{"fake-voice"},
		SampleRates: []int{8000, 16000, 48000},
	}
}

func countWords(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}
