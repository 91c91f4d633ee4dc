// Package silero provides voice-activity detection backed by the Silero
// ONNX model. The ONNX path requires the silero build tag and a local
// onnxruntime library; without the tag the plugin registers a factory that
// reports how to enable it.
package silero

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// ModelFileName is the expected ONNX model file name.
	ModelFileName = "silero_vad.onnx"

	// DefaultThreshold is the speech probability above which a window
	// counts as speech.
	DefaultThreshold = 0.5

	// DefaultMinSilence is how long the probability must stay below
	// threshold before the utterance is considered finished.
	DefaultMinSilence = 400 * time.Millisecond
)

// defaultModelPath resolves where the model file lives. Override the base
// directory with CALLPIPE_MODEL_PATH.
func defaultModelPath() string {
	base := os.Getenv("CALLPIPE_MODEL_PATH")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".callpipe", "models")
	}
	return filepath.Join(base, ModelFileName)
}
