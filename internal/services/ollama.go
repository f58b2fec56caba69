package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// Ollama provides an implementation of the controller.Generator interface for a local Ollama server. It
// needs no API key.
type Ollama struct {
	host string

	client *api.Client
}

// NewOllama creates a new Ollama instance for the server at host. An empty host falls back to the
// OLLAMA_HOST environment variable or the default local address.
func NewOllama(host string) (Ollama, error) {
	if host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return Ollama{}, fmt.Errorf("error creating ollama client: %w", err)
		}
		return Ollama{client: client}, nil
	}

	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	return Ollama{
		host:   host,
		client: api.NewClient(u, &http.Client{}),
	}, nil
}

// GenerateStream streams the reply of model to a single user message.
func (o Ollama) GenerateStream(ctx context.Context, model, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		t := true
		req := api.ChatRequest{
			Model: model,
			Messages: []api.Message{
				{
					Role:    "user",
					Content: prompt,
				},
			},
			Stream: &t,
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			if !yield(res.Message.Content, nil) {
				cancel()
				// Stop the client from calling back into a finished loop.
				return context.Canceled
			}
			return nil
		}); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
		}
	}
}
