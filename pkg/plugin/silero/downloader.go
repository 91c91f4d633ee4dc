package silero

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

// modelURL is the published Silero VAD model.
const modelURL = "https://github.com/snakers4/silero-vad/raw/master/src/silero_vad/data/silero_vad.onnx"

// ModelDownloader fetches the Silero VAD model file.
type ModelDownloader struct{}

// Download fetches the model if it is not already present.
func (d *ModelDownloader) Download() error {
	modelPath := defaultModelPath()

	if _, err := os.Stat(modelPath); err == nil {
		slog.Info("silero model already present", slog.String("path", modelPath))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(modelPath), 0o755); err != nil {
		return fmt.Errorf("silero: create model directory: %w", err)
	}

	slog.Info("downloading silero model", slog.String("url", modelURL), slog.String("path", modelPath))

	resp, err := http.Get(modelURL)
	if err != nil {
		return fmt.Errorf("silero: download model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("silero: download model: HTTP %d", resp.StatusCode)
	}

	// Write to a temp file first so a failed download never leaves a
	// truncated model behind.
	tmp, err := os.CreateTemp(filepath.Dir(modelPath), ModelFileName+".tmp")
	if err != nil {
		return fmt.Errorf("silero: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("silero: write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("silero: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), modelPath); err != nil {
		return fmt.Errorf("silero: install model: %w", err)
	}

	slog.Info("silero model downloaded", slog.String("path", modelPath))
	return nil
}
