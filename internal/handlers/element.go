package handlers

import (
	"context"
	"html/template"
	"sync"

	"github.com/MegaGrindStone/promptstream/internal/controller"
	"github.com/MegaGrindStone/promptstream/internal/models"
)

// element is the server-side model of one UI surface of a page. Every mutation is recorded, so the page
// can be rendered from it, and mirrored to the browser as a patch.
type element struct {
	id      string
	publish func(models.Patch)

	mu       sync.Mutex
	text     string
	html     template.HTML
	label    string
	disabled bool
	hidden   bool
	errored  bool
	onSubmit controller.SubmitFunc
}

// elementView is a snapshot of an element used by the templates.
type elementView struct {
	Text     string
	HTML     template.HTML
	Label    string
	Disabled bool
	Hidden   bool
	Errored  bool
}

func newElement(id string, publish func(models.Patch)) *element {
	return &element{
		id:      id,
		publish: publish,
	}
}

func (e *element) Bind(fn controller.SubmitFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onSubmit = fn
}

func (e *element) submitFunc() controller.SubmitFunc {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onSubmit
}

func (e *element) submit(ctx context.Context, value string) (<-chan struct{}, error) {
	fn := e.submitFunc()
	if fn == nil {
		return nil, errNotBound
	}
	return fn(ctx, value)
}

func (e *element) SetDisabled(disabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disabled = disabled
	e.publish(models.Patch{Target: e.id, Op: models.PatchOpDisabled, Flag: disabled})
}

func (e *element) Disabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disabled
}

func (e *element) SetLabel(label string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.label = label
	e.publish(models.Patch{Target: e.id, Op: models.PatchOpLabel, Text: label})
}

func (e *element) SetText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
	e.html = ""
	e.publish(models.Patch{Target: e.id, Op: models.PatchOpText, Text: text})
}

func (e *element) AppendText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text += text
	e.publish(models.Patch{Target: e.id, Op: models.PatchOpAppend, Text: text})
}

func (e *element) SetHTML(html template.HTML) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = ""
	e.html = html
	e.publish(models.Patch{Target: e.id, Op: models.PatchOpHTML, Text: string(html)})
}

func (e *element) SetErrorStyle(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errored = on
	e.publish(models.Patch{Target: e.id, Op: models.PatchOpError, Flag: on})
}

func (e *element) SetHidden(hidden bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hidden = hidden
	e.publish(models.Patch{Target: e.id, Op: models.PatchOpHidden, Flag: hidden})
}

func (e *element) view() elementView {
	if e == nil {
		return elementView{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return elementView{
		Text:     e.text,
		HTML:     e.html,
		Label:    e.label,
		Disabled: e.disabled,
		Hidden:   e.hidden,
		Errored:  e.errored,
	}
}
