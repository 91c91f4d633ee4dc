package vad

import (
	"context"
	"math"
	"time"

	"github.com/chriscow/callpipe-go/pkg/audio"
)

const (
	// DefaultThreshold is the RMS level above which a chunk counts as speech.
	DefaultThreshold = 300.0

	// DefaultMinSilence is how long the signal must stay below threshold
	// before an utterance is considered finished.
	DefaultMinSilence = 400 * time.Millisecond
)

// Energy is an RMS-threshold voice activity detector. It is the bundled
// default; model-based detection plugs in through the same VAD interface.
type Energy struct {
	threshold  float64
	minSilence time.Duration
}

// NewEnergy creates an energy VAD. Zero values select the defaults.
func NewEnergy(threshold float64, minSilence time.Duration) *Energy {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if minSilence <= 0 {
		minSilence = DefaultMinSilence
	}
	return &Energy{threshold: threshold, minSilence: minSilence}
}

func (e *Energy) Detect(ctx context.Context, chunks <-chan audio.PCM) (<-chan Event, error) {
	out := make(chan Event, 8)

	go func() {
		defer close(out)
		speaking := false
		var silence time.Duration

		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-chunks:
				if !ok {
					return
				}
				if rms(chunk) >= e.threshold {
					silence = 0
					if !speaking {
						speaking = true
						if !emit(ctx, out, Event{Type: EventSpeechStart, Timestamp: time.Now()}) {
							return
						}
					}
					continue
				}
				if !speaking {
					continue
				}
				silence += chunk.Duration()
				if silence >= e.minSilence {
					speaking = false
					silence = 0
					if !emit(ctx, out, Event{Type: EventSpeechEnd, Timestamp: time.Now()}) {
						return
					}
				}
			}
		}
	}()

	return out, nil
}

func (e *Energy) Capabilities() Capabilities {
	return Capabilities{
		SampleRates:        []int{8000, 16000, 48000},
		MinSilenceDuration: e.minSilence,
	}
}

func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func rms(chunk audio.PCM) float64 {
	samples := chunk.Samples()
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
