package controller_test

import (
	"context"
	"errors"
	"html/template"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MegaGrindStone/promptstream/internal/controller"
	"github.com/MegaGrindStone/promptstream/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeForm struct {
	mu sync.Mutex
	fn controller.SubmitFunc
}

type fakeControl struct {
	mu       sync.Mutex
	disabled bool
	label    string
}

type fakeRegion struct {
	mu      sync.Mutex
	text    string
	html    template.HTML
	errored bool
	writes  int
}

type fakeIndicator struct {
	mu     sync.Mutex
	hidden bool
	shown  int
}

type mockGenerator struct {
	mu      sync.Mutex
	calls   []string
	models  []string
	chunks  []string
	err     error
	release chan struct{}
}

type page struct {
	form   *fakeForm
	input  *fakeControl
	submit *fakeControl
	output *fakeRegion
	loader *fakeIndicator
}

func newPage() page {
	return page{
		form:   &fakeForm{},
		input:  &fakeControl{label: "input"},
		submit: &fakeControl{label: "Generate"},
		output: &fakeRegion{},
		loader: &fakeIndicator{hidden: true},
	}
}

func (p page) elements() controller.Elements {
	return controller.Elements{
		Form:   p.form,
		Input:  p.input,
		Submit: p.submit,
		Output: p.output,
		Loader: p.loader,
	}
}

func testConfig() controller.Config {
	return controller.Config{
		APIKey:    "test-key",
		APIKeyEnv: "API_KEY",
		Messages:  models.MessagesFor(models.LocaleEnglish),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newController(t *testing.T, p page, gen *mockGenerator) *controller.Controller {
	t.Helper()
	c, err := controller.New(p.elements(), testConfig(), func(key string) (controller.Generator, error) {
		require.Equal(t, "test-key", key)
		return gen, nil
	}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("submission cycle did not settle")
	}
}

func TestSubmitStreamsChunksInOrder(t *testing.T) {
	p := newPage()
	gen := &mockGenerator{chunks: []string{"Hi", " there", "!"}}
	c := newController(t, p, gen)

	done, err := p.form.submit(context.Background(), "Hello")
	require.NoError(t, err)
	waitDone(t, done)

	require.Equal(t, []string{"Hello"}, gen.calls)
	require.Equal(t, []string{controller.DefaultModel}, gen.models)
	require.Equal(t, "Hi there!", p.output.text)
	require.Equal(t, "Hi there!", c.Response())
	require.False(t, p.output.errored)
	require.True(t, p.loader.hidden)
	require.Equal(t, 1, p.loader.shown)
	require.False(t, p.submit.disabled)
	require.Equal(t, controller.StateIdle, c.State())
	require.NoError(t, c.Err())
}

func TestSubmitTrimsPrompt(t *testing.T) {
	p := newPage()
	gen := &mockGenerator{chunks: []string{"ok"}}
	newController(t, p, gen)

	done, err := p.form.submit(context.Background(), "  \tTell me a joke \n")
	require.NoError(t, err)
	waitDone(t, done)

	require.Equal(t, []string{"Tell me a joke"}, gen.calls)
}

func TestSubmitEmptyPromptIsNoop(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t "} {
		p := newPage()
		p.output.text = "previous"
		gen := &mockGenerator{chunks: []string{"unused"}}
		newController(t, p, gen)

		done, err := p.form.submit(context.Background(), input)
		require.ErrorIs(t, err, controller.ErrEmptyPrompt)
		require.Nil(t, done)

		require.Empty(t, gen.calls)
		require.Equal(t, "previous", p.output.text)
		require.Zero(t, p.output.writes)
		require.Zero(t, p.loader.shown)
		require.False(t, p.submit.disabled)
	}
}

func TestSubmitFailure(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
	}{
		{name: "rejects immediately"},
		{name: "fails after one chunk", chunks: []string{"partial"}},
		{name: "fails after several chunks", chunks: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPage()
			gen := &mockGenerator{chunks: tt.chunks, err: errors.New("boom")}
			c := newController(t, p, gen)

			done, err := p.form.submit(context.Background(), "Test")
			require.NoError(t, err)
			waitDone(t, done)

			require.Equal(t, testConfig().Messages.GenerationFailed, p.output.text)
			require.True(t, p.output.errored)
			require.True(t, p.loader.hidden)
			require.False(t, p.submit.disabled)
			require.Equal(t, controller.StateIdle, c.State())
			require.ErrorIs(t, c.Err(), controller.ErrGenerationFailed)
			require.NotContains(t, p.output.text, "boom")
		})
	}
}

func TestSubmitClearsErrorStyleOnRetry(t *testing.T) {
	p := newPage()
	gen := &mockGenerator{err: errors.New("unavailable")}
	c := newController(t, p, gen)

	done, err := p.form.submit(context.Background(), "first")
	require.NoError(t, err)
	waitDone(t, done)
	require.True(t, p.output.errored)

	gen.setResult([]string{"second answer"}, nil)
	done, err = p.form.submit(context.Background(), "second")
	require.NoError(t, err)
	waitDone(t, done)

	require.False(t, p.output.errored)
	require.Equal(t, "second answer", p.output.text)
	require.NoError(t, c.Err())
}

func TestSubmitWhileBusy(t *testing.T) {
	p := newPage()
	gen := &mockGenerator{chunks: []string{"slow"}, release: make(chan struct{})}
	newController(t, p, gen)

	done, err := p.form.submit(context.Background(), "one")
	require.NoError(t, err)

	require.True(t, p.submit.isDisabled())
	require.False(t, p.loader.isHidden())

	_, err = p.form.submit(context.Background(), "two")
	require.ErrorIs(t, err, controller.ErrBusy)

	close(gen.release)
	waitDone(t, done)

	require.Equal(t, []string{"one"}, gen.callsSnapshot())
	require.Equal(t, "slow", p.output.text)
	require.False(t, p.submit.disabled)
}

func TestCloseAbandonsRequest(t *testing.T) {
	p := newPage()
	gen := &mockGenerator{chunks: []string{"never"}, release: make(chan struct{})}
	c := newController(t, p, gen)

	done, err := p.form.submit(context.Background(), "hello")
	require.NoError(t, err)

	c.Close()
	waitDone(t, done)

	require.True(t, p.loader.hidden)
	require.False(t, p.submit.disabled)

	_, err = c.Submit(context.Background(), "again")
	require.ErrorIs(t, err, controller.ErrClosed)
	require.Nil(t, p.form.bound())
}

func TestNewMissingElements(t *testing.T) {
	p := newPage()
	elements := p.elements()
	elements.Loader = nil

	c, err := controller.New(elements, testConfig(), func(string) (controller.Generator, error) {
		t.Fatal("generator must not be built")
		return nil, nil
	}, discardLogger())
	require.ErrorIs(t, err, controller.ErrMissingElements)
	require.Nil(t, c)

	require.Equal(t, testConfig().Messages.MissingElements, p.output.text)
	require.Nil(t, p.form.bound())
}

func TestNewMissingElementsWithoutOutput(t *testing.T) {
	p := newPage()
	elements := p.elements()
	elements.Output = nil

	_, err := controller.New(elements, testConfig(), nil, discardLogger())
	require.ErrorIs(t, err, controller.ErrMissingElements)
	require.Zero(t, p.output.writes)
	require.Nil(t, p.form.bound())
}

func TestNewMissingConfiguration(t *testing.T) {
	p := newPage()
	cfg := testConfig()
	cfg.APIKey = ""
	cfg.Messages = models.MessagesFor(models.LocaleDutch)

	c, err := controller.New(p.elements(), cfg, func(string) (controller.Generator, error) {
		t.Fatal("generator must not be built")
		return nil, nil
	}, discardLogger())
	require.ErrorIs(t, err, controller.ErrMissingConfiguration)
	require.Nil(t, c)

	require.True(t, p.input.disabled)
	require.True(t, p.submit.disabled)
	require.Equal(t, "Configuratie Fout", p.submit.label)
	require.True(t, p.output.errored)
	require.Contains(t, string(p.output.html), "API_KEY")
	require.Contains(t, string(p.output.html), "API Sleutel ontbreekt")
	require.Nil(t, p.form.bound())
}

func TestNewMissingConfigurationUsesRenderer(t *testing.T) {
	p := newPage()
	cfg := testConfig()
	cfg.APIKey = ""
	cfg.Guidance = upperRenderer{}

	_, err := controller.New(p.elements(), cfg, nil, discardLogger())
	require.ErrorIs(t, err, controller.ErrMissingConfiguration)
	require.True(t, strings.HasPrefix(string(p.output.html), "<div>**ERROR: API KEY IS MISSING.**"))
}

func TestNewKeyOptional(t *testing.T) {
	p := newPage()
	cfg := testConfig()
	cfg.APIKey = ""
	cfg.KeyOptional = true
	cfg.Model = "llama3.2"

	gen := &mockGenerator{chunks: []string{"local"}}
	c, err := controller.New(p.elements(), cfg, func(string) (controller.Generator, error) {
		return gen, nil
	}, discardLogger())
	require.NoError(t, err)
	defer c.Close()

	done, err := p.form.submit(context.Background(), "hi")
	require.NoError(t, err)
	waitDone(t, done)

	require.Equal(t, []string{"llama3.2"}, gen.models)
	require.Equal(t, "local", p.output.text)
}

func TestNewGeneratorError(t *testing.T) {
	p := newPage()
	_, err := controller.New(p.elements(), testConfig(), func(string) (controller.Generator, error) {
		return nil, errors.New("bad key format")
	}, discardLogger())
	require.Error(t, err)
	require.Nil(t, p.form.bound())
}

type upperRenderer struct{}

func (upperRenderer) Render(md string) (template.HTML, error) {
	return template.HTML("<div>" + strings.ToUpper(md) + "</div>"), nil
}

func (f *fakeForm) Bind(fn controller.SubmitFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
}

func (f *fakeForm) bound() controller.SubmitFunc {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fn
}

func (f *fakeForm) submit(ctx context.Context, value string) (<-chan struct{}, error) {
	fn := f.bound()
	if fn == nil {
		return nil, errors.New("form is not bound")
	}
	return fn(ctx, value)
}

func (c *fakeControl) SetDisabled(disabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = disabled
}

func (c *fakeControl) Disabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

func (c *fakeControl) isDisabled() bool { return c.Disabled() }

func (c *fakeControl) SetLabel(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.label = label
}

func (r *fakeRegion) SetText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = text
	r.html = ""
	r.writes++
}

func (r *fakeRegion) AppendText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text += text
	r.writes++
}

func (r *fakeRegion) SetHTML(html template.HTML) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.html = html
	r.text = ""
	r.writes++
}

func (r *fakeRegion) SetErrorStyle(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errored = on
}

func (i *fakeIndicator) SetHidden(hidden bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.hidden = hidden
	if !hidden {
		i.shown++
	}
}

func (i *fakeIndicator) isHidden() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.hidden
}

func (m *mockGenerator) GenerateStream(ctx context.Context, model, prompt string) iter.Seq2[string, error] {
	m.mu.Lock()
	m.calls = append(m.calls, prompt)
	m.models = append(m.models, model)
	chunks, err, release := m.chunks, m.err, m.release
	m.mu.Unlock()

	return func(yield func(string, error) bool) {
		if release != nil {
			select {
			case <-release:
			case <-ctx.Done():
				return
			}
		}
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	}
}

func (m *mockGenerator) setResult(chunks []string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks, m.err = chunks, err
}

func (m *mockGenerator) callsSnapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
