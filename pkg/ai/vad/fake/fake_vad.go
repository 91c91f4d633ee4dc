// Package fake provides a scripted VAD implementation for tests.
package fake

import (
	"context"

	"github.com/chriscow/callpipe-go/pkg/ai/vad"
	"github.com/chriscow/callpipe-go/pkg/audio"
)

// VAD replays a scripted event for every N consumed chunks. Tests drive
// speech boundaries deterministically without real signal analysis.
type VAD struct {
	script []vad.EventType
	every  int
}

// New creates a fake VAD that emits the scripted events in order, one per
// `every` consumed chunks.
func New(every int, script ...vad.EventType) *VAD {
	if every < 1 {
		every = 1
	}
	return &VAD{script: script, every: every}
}

func (f *VAD) Detect(ctx context.Context, chunks <-chan audio.PCM) (<-chan vad.Event, error) {
	out := make(chan vad.Event, len(f.script)+1)

	go func() {
		defer close(out)
		consumed := 0
		next := 0
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-chunks:
				if !ok {
					return
				}
				consumed++
				if next < len(f.script) && consumed%f.every == 0 {
					select {
					case out <- vad.Event{Type: f.script[next]}:
						next++
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}

func (f *VAD) Capabilities() vad.Capabilities {
	return vad.Capabilities{SampleRates: []int{8000, 16000, 48000}}
}
