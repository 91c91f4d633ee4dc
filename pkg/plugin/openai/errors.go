// Package openai provides OpenAI-backed providers: GPT chat completion,
// Whisper transcription, and speech synthesis.
package openai

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscow/callpipe-go/pkg/ai"
)

// classify maps an OpenAI API error onto the framework's error taxonomy.
// Auth and not-found failures will not succeed on retry; rate limits,
// server errors, and transport failures might.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403 || apiErr.HTTPStatusCode == 404:
			return ai.Fatal(err)
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return ai.Recoverable(err)
		default:
			return ai.Fatal(err)
		}
	}

	// Anything else is a transport-level failure worth retrying.
	return ai.Recoverable(err)
}

func newClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}
