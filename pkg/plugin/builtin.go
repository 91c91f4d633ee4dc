package plugin

import (
	"fmt"
	"time"

	"github.com/chriscow/callpipe-go/pkg/ai/vad"
)

// The energy detector ships with the framework, so it registers here rather
// than in a separate plugin package.
func init() {
	RegisterWithMetadata(&Plugin{
		Kind:        KindVAD,
		Name:        "energy",
		Factory:     newEnergyVAD,
		Description: "RMS energy voice-activity detector",
	})
}

func newEnergyVAD(cfg map[string]any) (any, error) {
	var threshold float64
	switch v := cfg["threshold"].(type) {
	case nil:
	case float64:
		threshold = v
	case int:
		threshold = float64(v)
	default:
		return nil, fmt.Errorf("threshold must be a number, got %T", v)
	}

	var minSilence time.Duration
	if v, ok := cfg["min_silence"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("min_silence must be a duration string, got %T", v)
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("min_silence: %w", err)
		}
		minSilence = d
	}

	return vad.NewEnergy(threshold, minSilence), nil
}
