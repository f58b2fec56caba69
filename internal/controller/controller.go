// Package controller drives a single prompt submission cycle of a page: it validates the prompt, sets the
// busy UI state, streams the generated response into the output region and always restores the UI when
// the stream ends or fails.
package controller

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/MegaGrindStone/promptstream/internal/models"
)

// DefaultModel is the model identifier used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

const errLoggerKey = "err"

var (
	// ErrMissingElements is returned by New when one or more UI surfaces are absent.
	ErrMissingElements = errors.New("missing elements")
	// ErrMissingConfiguration is returned by New when the API key is absent.
	ErrMissingConfiguration = errors.New("missing configuration")
	// ErrGenerationFailed wraps any failure of the generator during a submission cycle. It never leaves
	// the controller except through Err.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrEmptyPrompt is returned by Submit when the trimmed prompt is empty. Nothing changed.
	ErrEmptyPrompt = errors.New("empty prompt")
	// ErrBusy is returned by Submit while the submit control is disabled. Nothing changed.
	ErrBusy = errors.New("submission in progress")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("controller closed")
)

// Generator is a streaming text-generation client. The returned sequence is finite, single-pass, and may
// yield an error at any point, including before the first chunk.
type Generator interface {
	GenerateStream(ctx context.Context, model, prompt string) iter.Seq2[string, error]
}

// GeneratorFunc builds a Generator from an API key.
type GeneratorFunc func(apiKey string) (Generator, error)

// Renderer turns markdown into markup that is safe to render.
type Renderer interface {
	Render(markdown string) (template.HTML, error)
}

// Config is the startup configuration of a controller.
type Config struct {
	APIKey string
	// APIKeyEnv names the environment variable the key is read from, quoted in the configuration error.
	APIKeyEnv string
	// KeyOptional is set for providers that work without a key.
	KeyOptional bool
	Model       string
	Messages    models.Messages
	// Guidance renders the configuration error explanation. When nil the explanation is shown escaped.
	Guidance Renderer
}

// Controller orchestrates the request/response cycle of one page session and the UI feedback around it.
type Controller struct {
	elements  Elements
	model     string
	messages  models.Messages
	generator Generator

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	response strings.Builder
	lastErr  error
	closed   bool

	logger *slog.Logger
}

// New initializes a controller bound to the submit event of elements.Form.
//
// When a surface is missing, the error is reported in the output region if it exists and logged, and
// ErrMissingElements is returned. When the API key is missing, the input and submit control are disabled,
// the configuration guidance is rendered into the output region and ErrMissingConfiguration is returned.
// In both cases the form is left unbound, so no request can ever be issued.
func New(elements Elements, cfg Config, newGenerator GeneratorFunc, logger *slog.Logger) (*Controller, error) {
	logger = logger.With(slog.String("module", "controller"))

	if !elements.complete() {
		logger.Error("One or more required elements could not be found")
		if elements.Output != nil {
			elements.Output.SetText(cfg.Messages.MissingElements)
			elements.Output.SetErrorStyle(true)
		}
		return nil, ErrMissingElements
	}

	if cfg.APIKey == "" && !cfg.KeyOptional {
		logger.Error("API key is missing", slog.String("env", cfg.APIKeyEnv))
		elements.Input.SetDisabled(true)
		elements.Submit.SetDisabled(true)
		elements.Submit.SetLabel(cfg.Messages.ConfigErrorLabel)
		elements.Output.SetHTML(guidanceHTML(cfg, logger))
		elements.Output.SetErrorStyle(true)
		return nil, ErrMissingConfiguration
	}

	gen, err := newGenerator(cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		elements:  elements,
		model:     model,
		messages:  cfg.Messages,
		generator: gen,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		logger:    logger,
	}
	elements.Form.Bind(c.Submit)

	return c, nil
}

func guidanceHTML(cfg Config, logger *slog.Logger) template.HTML {
	md := fmt.Sprintf(cfg.Messages.ConfigErrorGuidance, cfg.APIKeyEnv)
	if cfg.Guidance != nil {
		h, err := cfg.Guidance.Render(md)
		if err == nil {
			return h
		}
		logger.Warn("Failed to render configuration guidance", slog.String(errLoggerKey, err.Error()))
	}
	return template.HTML("<pre>" + template.HTMLEscapeString(md) + "</pre>")
}

// Submit handles the submit event with the raw input value. An empty prompt after trimming is a no-op and
// returns ErrEmptyPrompt; a submission while the submit control is disabled returns ErrBusy.
//
// Otherwise the busy state is applied before Submit returns, and the request runs in its own goroutine.
// The returned channel is closed once the UI has settled back to idle. ctx only carries values; the
// request is cancelled by Close, not by ctx.
func (c *Controller) Submit(ctx context.Context, value string) (<-chan struct{}, error) {
	prompt := strings.TrimSpace(value)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.elements.Submit.Disabled() {
		c.mu.Unlock()
		return nil, ErrBusy
	}

	c.elements.Loader.SetHidden(false)
	c.elements.Submit.SetDisabled(true)
	c.elements.Output.SetText("")
	c.elements.Output.SetErrorStyle(false)
	c.response.Reset()
	c.lastErr = nil
	c.transition(StateSubmitting)
	c.mu.Unlock()

	reqCtx := context.WithoutCancel(ctx)
	reqCtx, cancel := context.WithCancel(reqCtx)
	stop := context.AfterFunc(c.ctx, cancel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer stop()
		defer cancel()
		c.run(reqCtx, prompt)
	}()

	return done, nil
}

func (c *Controller) run(ctx context.Context, prompt string) {
	defer c.settle()

	c.logger.Debug("Issuing generation request", slog.String("model", c.model), slog.Int("promptLen", len(prompt)))

	var err error
	for chunk, cerr := range c.generator.GenerateStream(ctx, c.model, prompt) {
		if cerr != nil {
			err = cerr
			break
		}
		c.mu.Lock()
		if c.state == StateSubmitting {
			c.transition(StateDisplaying)
		}
		c.response.WriteString(chunk)
		c.elements.Output.AppendText(chunk)
		c.mu.Unlock()
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err == nil {
		return
	}

	c.logger.Error("Error from generator", slog.String("model", c.model), slog.String(errLoggerKey, err.Error()))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	c.transition(StateError)
	c.elements.Output.SetText(c.messages.GenerationFailed)
	c.elements.Output.SetErrorStyle(true)
}

// settle hides the busy indicator and re-enables the submit control. It runs on every exit path of run.
func (c *Controller) settle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.elements.Loader.SetHidden(true)
	c.elements.Submit.SetDisabled(false)
	c.transition(StateIdle)
}

func (c *Controller) transition(to State) {
	c.logger.Debug("State transition", slog.String("from", c.state.String()), slog.String("to", to.String()))
	c.state = to
}

// State returns the current UI state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Response returns the text accumulated from the chunks of the current or last cycle.
func (c *Controller) Response() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.response.String()
}

// Err returns the failure of the last cycle, wrapping ErrGenerationFailed, or nil if it succeeded.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close unbinds the form and abandons an in-flight request. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.elements.Form.Bind(nil)
	c.cancel()
}
