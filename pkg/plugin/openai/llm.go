package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscow/callpipe-go/pkg/ai/llm"
)

// LLM implements chat completion using the OpenAI API.
type LLM struct {
	client *openai.Client
	model  string
}

// LLMConfig configures the OpenAI chat provider.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string // default: gpt-4o-mini
}

// NewLLM creates an OpenAI chat completion provider.
func NewLLM(cfg LLMConfig) (*LLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &LLM{client: newClient(cfg.APIKey, cfg.BaseURL), model: model}, nil
}

// Chat performs a blocking completion request.
func (l *LLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	resp, err := l.client.CreateChatCompletion(ctx, l.buildRequest(req, false))
	if err != nil {
		return llm.ChatResponse{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("openai: completion returned no choices")
	}
	choice := resp.Choices[0]
	return llm.ChatResponse{
		Message: llm.Message{
			Role:    llm.Role(choice.Message.Role),
			Content: choice.Message.Content,
		},
		TokensUsed:   resp.Usage.TotalTokens,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// ChatStream starts a streamed completion.
func (l *LLM) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.Delta, error) {
	stream, err := l.client.CreateChatCompletionStream(ctx, l.buildRequest(req, true))
	if err != nil {
		return nil, classify(err)
	}

	out := make(chan llm.Delta, 16)
	go func() {
		defer close(out)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				send(ctx, out, llm.Delta{Done: true})
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					err = ctx.Err()
				} else {
					err = classify(err)
				}
				send(ctx, out, llm.Delta{Err: err})
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if content := resp.Choices[0].Delta.Content; content != "" {
				if !send(ctx, out, llm.Delta{Content: content}) {
					return
				}
			}
		}
	}()
	return out, nil
}

// Capabilities reports streaming support.
func (l *LLM) Capabilities() llm.Capabilities {
	return llm.Capabilities{Streaming: true}
}

func (l *LLM) buildRequest(req llm.ChatRequest, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}
	return openai.ChatCompletionRequest{
		Model:       l.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

func send(ctx context.Context, out chan<- llm.Delta, d llm.Delta) bool {
	select {
	case out <- d:
		return true
	case <-ctx.Done():
		return false
	}
}
