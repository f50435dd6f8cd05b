package generate

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// LocalGenerator talks to an OpenAI-compatible chat endpoint (a local model
// server such as Ollama's or vLLM's OpenAI-compatibility layer), the
// "local-chat" provider slot of spec §4.7.
type LocalGenerator struct {
	client openai.Client
	model  string
}

func NewLocalGenerator(baseURL, model string) *LocalGenerator {
	opts := []option.RequestOption{option.WithAPIKey("local")}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &LocalGenerator{client: openai.NewClient(opts...), model: model}
}

func (g *LocalGenerator) pickModel(model string) string {
	if model != "" {
		return model
	}
	return g.model
}

func (g *LocalGenerator) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       g.pickModel(req.Model),
		Messages:    chatMessages(req),
		Temperature: openai.Float(DefaultTemperature),
		MaxTokens:   openai.Int(DefaultMaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("generate: local-chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate: local-chat: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *LocalGenerator) Stream(ctx context.Context, req Request) (<-chan Delta, error) {
	stream := g.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:       g.pickModel(req.Model),
		Messages:    chatMessages(req),
		Temperature: openai.Float(DefaultTemperature),
		MaxTokens:   openai.Int(DefaultMaxTokens),
	})

	out := make(chan Delta)
	go func() {
		defer close(out)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				out <- Delta{Text: text}
			}
		}
		if err := stream.Err(); err != nil {
			out <- Delta{Err: fmt.Errorf("generate: local-chat stream: %w", err)}
		}
	}()
	return out, nil
}

func chatMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, openai.UserMessage(req.UserPrompt))
	return msgs
}
