// Package openai provides a summarization provider backed by the OpenAI
// chat completions API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/voxlabel/voxlabel/pkg/provider/summarize"
)

// systemPrompt frames the summarization task for the model.
const systemPrompt = "You summarize meeting and call transcripts. " +
	"Attribute statements to the speaker names given in the transcript. " +
	"Be concise and factual; do not invent information."

// Provider implements summarize.Provider using the OpenAI chat API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI summarization Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Summarize implements summarize.Provider.
func (p *Provider) Summarize(ctx context.Context, req summarize.Request) (string, error) {
	if len(req.Utterances) == 0 {
		return "", fmt.Errorf("openai: transcript must not be empty")
	}

	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(buildPrompt(req)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// buildPrompt renders the resolved transcript and task constraints as a
// single user message.
func buildPrompt(req summarize.Request) string {
	var b strings.Builder
	b.WriteString("Summarize the following transcript.\n")
	if req.Instructions != "" {
		b.WriteString("Instructions: ")
		b.WriteString(req.Instructions)
		b.WriteString("\n")
	}
	if req.MaxWords > 0 {
		fmt.Fprintf(&b, "Keep the summary under %d words.\n", req.MaxWords)
	}
	b.WriteString("\nTranscript:\n")
	for _, u := range req.Utterances {
		fmt.Fprintf(&b, "%s: %s\n", u.Speaker, u.Text)
	}
	return b.String()
}
