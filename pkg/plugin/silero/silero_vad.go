//go:build silero

package silero

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/chriscow/callpipe-go/pkg/ai/vad"
	"github.com/chriscow/callpipe-go/pkg/audio"
	"github.com/chriscow/callpipe-go/pkg/plugin"
)

// speechWindows is how many consecutive speech windows confirm a speech
// start. One window of noise should not trigger barge-in.
const speechWindows = 2

var ortOnce sync.Once
var ortErr error

// ensureOrtEnv initializes the onnxruntime environment exactly once. The
// shared library location comes from ONNXRUNTIME_LIB when set.
func ensureOrtEnv() error {
	ortOnce.Do(func() {
		if lib := os.Getenv("ONNXRUNTIME_LIB"); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// Config configures the Silero detector.
type Config struct {
	Threshold  float32
	SampleRate int
	ModelPath  string
	MinSilence time.Duration
}

// Detector runs the Silero VAD model over fixed-size windows of the input
// stream.
type Detector struct {
	threshold  float32
	sampleRate int
	windowSize int
	minSilence time.Duration
	modelPath  string
}

// New creates a Silero detector. The model file must exist; callers that
// want a fallback should catch the error and use the energy detector.
func New(cfg Config) (*Detector, error) {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 8000
	}
	if cfg.MinSilence <= 0 {
		cfg.MinSilence = DefaultMinSilence
	}
	modelPath := cfg.ModelPath
	if modelPath == "" {
		modelPath = defaultModelPath()
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("silero: model not found at %s (run the model download first): %w", modelPath, err)
	}
	if err := ensureOrtEnv(); err != nil {
		return nil, fmt.Errorf("silero: initialize onnxruntime: %w", err)
	}

	return &Detector{
		threshold:  cfg.Threshold,
		sampleRate: cfg.SampleRate,
		windowSize: cfg.SampleRate * 32 / 1000, // 32ms windows
		minSilence: cfg.MinSilence,
		modelPath:  modelPath,
	}, nil
}

// Detect consumes audio chunks and emits speech boundary events. Each call
// owns its own inference session; sessions are not safe for concurrent use.
func (d *Detector) Detect(ctx context.Context, chunks <-chan audio.PCM) (<-chan vad.Event, error) {
	sess, err := d.newSession()
	if err != nil {
		return nil, err
	}

	out := make(chan vad.Event, 8)
	go func() {
		defer close(out)
		defer sess.destroy()

		var (
			window     = make([]float32, 0, d.windowSize)
			speaking   bool
			speechRun  int
			silence    time.Duration
			windowTime = time.Duration(d.windowSize) * time.Second / time.Duration(d.sampleRate)
		)

		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-chunks:
				if !ok {
					if speaking {
						emit(ctx, out, vad.Event{Type: vad.EventSpeechEnd, Timestamp: time.Now()})
					}
					return
				}
				for _, s := range chunk.Samples() {
					window = append(window, float32(s)/32768.0)
					if len(window) < d.windowSize {
						continue
					}

					prob, err := sess.infer(window)
					window = window[:0]
					if err != nil {
						emit(ctx, out, vad.Event{Type: vad.EventError, Err: err})
						return
					}

					if prob >= d.threshold {
						silence = 0
						speechRun++
						if !speaking && speechRun >= speechWindows {
							speaking = true
							if !emit(ctx, out, vad.Event{Type: vad.EventSpeechStart, Timestamp: time.Now()}) {
								return
							}
						}
						continue
					}

					speechRun = 0
					if !speaking {
						continue
					}
					silence += windowTime
					if silence >= d.minSilence {
						speaking = false
						silence = 0
						if !emit(ctx, out, vad.Event{Type: vad.EventSpeechEnd, Timestamp: time.Now()}) {
							return
						}
					}
				}
			}
		}
	}()
	return out, nil
}

// Capabilities reports the detector's tuning.
func (d *Detector) Capabilities() vad.Capabilities {
	return vad.Capabilities{
		SampleRates:        []int{8000, 16000},
		MinSpeechDuration:  time.Duration(speechWindows*d.windowSize) * time.Second / time.Duration(d.sampleRate),
		MinSilenceDuration: d.minSilence,
	}
}

type session struct {
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	session *ort.Session[float32]
}

func (d *Detector) newSession() (*session, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(d.windowSize)))
	if err != nil {
		return nil, fmt.Errorf("silero: create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("silero: create output tensor: %w", err)
	}
	sess, err := ort.NewSession[float32](d.modelPath,
		[]string{"input"}, []string{"output"},
		[]*ort.Tensor[float32]{input}, []*ort.Tensor[float32]{output})
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("silero: load model %s: %w", d.modelPath, err)
	}
	return &session{input: input, output: output, session: sess}, nil
}

func (s *session) infer(window []float32) (float32, error) {
	copy(s.input.GetData(), window)
	if err := s.session.Run(); err != nil {
		return 0, fmt.Errorf("silero: inference: %w", err)
	}
	return s.output.GetData()[0], nil
}

func (s *session) destroy() {
	s.session.Destroy()
	s.input.Destroy()
	s.output.Destroy()
}

func emit(ctx context.Context, out chan<- vad.Event, ev vad.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func newSileroVAD(cfg map[string]any) (any, error) {
	config := Config{}
	if v, ok := cfg["threshold"].(float64); ok {
		config.Threshold = float32(v)
	}
	if v, ok := cfg["sample_rate"].(int); ok {
		config.SampleRate = v
	}
	if v, ok := cfg["model_path"].(string); ok {
		config.ModelPath = v
	}
	if v, ok := cfg["min_silence"].(string); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("min_silence: %w", err)
		}
		config.MinSilence = d
	}

	det, err := New(config)
	if err != nil {
		// The model detector is an upgrade, not a requirement. Fall back
		// to the energy detector so a missing model file never blocks a
		// deployment.
		slog.Warn("silero unavailable, falling back to energy detector", slog.String("error", err.Error()))
		return vad.NewEnergy(0, config.MinSilence), nil
	}
	return det, nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindVAD,
		Name:        "silero",
		Factory:     newSileroVAD,
		Description: "Silero VAD model with energy fallback",
		Downloader:  &ModelDownloader{},
	})
}
