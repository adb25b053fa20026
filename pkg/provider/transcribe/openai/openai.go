// Package openai provides a transcription provider backed by the OpenAI
// audio API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxlabel/voxlabel/pkg/provider/transcribe"
)

// defaultSpeakerID attributes all text from providers without diarization.
const defaultSpeakerID = "speaker_1"

// Provider implements transcribe.Provider using the OpenAI audio API.
//
// The OpenAI transcription endpoint does not diarize, so the result carries
// a single segment attributed to [defaultSpeakerID]. Downstream labeling
// works the same either way.
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

// New constructs a new OpenAI transcription Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = string(oai.AudioModelWhisper1)
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

// Transcribe implements transcribe.Provider.
func (p *Provider) Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Result, error) {
	if req.Audio == nil {
		return nil, fmt.Errorf("openai: request audio must not be nil")
	}

	filename := req.Filename
	if filename == "" {
		filename = "audio.wav"
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(req.Audio, filename, contentType(filename)),
		Model: oai.AudioModel(p.model),
	}
	if req.Language != "" {
		params.Language = oai.String(req.Language)
	}
	if req.Prompt != "" {
		params.Prompt = oai.String(req.Prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	result := &transcribe.Result{Text: text}
	if text != "" {
		result.Segments = []transcribe.Segment{{
			SpeakerID: defaultSpeakerID,
			Text:      text,
		}}
		result.SpeakerIDs = []string{defaultSpeakerID}
	}
	return result, nil
}

// contentType guesses the MIME type from the filename extension.
func contentType(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(filename, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(filename, ".flac"):
		return "audio/flac"
	case strings.HasSuffix(filename, ".m4a"):
		return "audio/mp4"
	default:
		return "audio/wav"
	}
}
