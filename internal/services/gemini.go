package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"google.golang.org/genai"
)

// Gemini provides an implementation of the controller.Generator interface on top of the Gemini API.
type Gemini struct {
	client *genai.Client

	logger *slog.Logger
}

// NewGemini creates a Gemini client authenticated with apiKey. A non-empty baseURL overrides the API
// endpoint, which is useful for proxies and tests.
func NewGemini(ctx context.Context, apiKey, baseURL string, logger *slog.Logger) (Gemini, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return Gemini{}, fmt.Errorf("error creating gemini client: %w", err)
	}

	return Gemini{
		client: client,
		logger: logger.With(slog.String("module", "gemini")),
	}, nil
}

// GenerateStream issues one streaming generation request with prompt as the only content and yields the
// text of every response chunk in arrival order.
func (g Gemini) GenerateStream(ctx context.Context, model, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range g.client.Models.GenerateContentStream(ctx, model, genai.Text(prompt), nil) {
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				yield("", fmt.Errorf("error receiving response: %w", err))
				return
			}

			text := resp.Text()
			g.logger.Debug("Received chunk", slog.Int("len", len(text)))
			if !yield(text, nil) {
				return
			}
		}
	}
}
