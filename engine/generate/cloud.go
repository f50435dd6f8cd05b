package generate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// cloudMaxRetries and cloudBackoff implement spec §4.7's cloud-chat retry
// policy: up to three retries on connect/timeout errors only, with
// exponential backoff 1s, 2s, 4s. HTTP errors (4xx/5xx responses that did
// reach the server) are never retried.
const cloudMaxRetries = 3

var cloudBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// CloudGenerator talks to Anthropic's Messages API, the "cloud-chat"
// provider slot of spec §4.7, without tool-calling, extended thinking, or
// prompt caching — none of which this Generator needs.
type CloudGenerator struct {
	sdk   anthropic.Client
	model string
}

func NewCloudGenerator(apiKey, model string) *CloudGenerator {
	return &CloudGenerator{
		sdk:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		model: model,
	}
}

func (g *CloudGenerator) pickModel(model string) string {
	if model != "" {
		return model
	}
	return g.model
}

func (g *CloudGenerator) Complete(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.pickModel(req.Model)),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt))},
		MaxTokens:   DefaultMaxTokens,
		Temperature: anthropic.Float(DefaultTemperature),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	var resp *anthropic.Message
	err := withRetry(ctx, func() error {
		r, callErr := g.sdk.Messages.New(ctx, params)
		if callErr != nil {
			return callErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate: cloud-chat: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}
	return text, nil
}

func (g *CloudGenerator) Stream(ctx context.Context, req Request) (<-chan Delta, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.pickModel(req.Model)),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt))},
		MaxTokens:   DefaultMaxTokens,
		Temperature: anthropic.Float(DefaultTemperature),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	out := make(chan Delta)
	go func() {
		defer close(out)
		// Streaming calls are not retried: a connect/timeout failure mid-stream
		// would have already delivered partial deltas the caller may have used.
		stream := g.sdk.Messages.NewStreaming(ctx, params)
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if td, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && td.Text != "" {
					out <- Delta{Text: td.Text}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- Delta{Err: fmt.Errorf("generate: cloud-chat stream: %w", err)}
		}
	}()
	return out, nil
}

// withRetry runs fn up to cloudMaxRetries extra times when it fails with a
// connect or timeout error, sleeping per cloudBackoff between attempts.
// Any other error (including HTTP error responses) returns immediately.
func withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cloudMaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isConnectOrTimeout(lastErr) || attempt == cloudMaxRetries {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cloudBackoff[attempt]):
		}
	}
	return lastErr
}

func isConnectOrTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout() || isConnectOrTimeout(urlErr.Err)
	}
	return false
}
