package controller

import (
	"context"
	"html/template"
)

// SubmitFunc handles the submit event of a bound form. value is the raw value of the text input at the
// time of the event.
type SubmitFunc func(ctx context.Context, value string) (<-chan struct{}, error)

// Form is the surface whose submit event drives the controller.
type Form interface {
	// Bind routes the submit event to fn. Passing nil unbinds the form.
	Bind(fn SubmitFunc)
}

// Control is an interactive element, the text input or the submit control.
type Control interface {
	SetDisabled(disabled bool)
	Disabled() bool
	SetLabel(label string)
}

// Region is the output region where responses and errors are displayed.
type Region interface {
	SetText(text string)
	AppendText(text string)
	// SetHTML replaces the region content with markup that is already safe to render.
	SetHTML(html template.HTML)
	SetErrorStyle(on bool)
}

// Indicator is the busy indicator.
type Indicator interface {
	SetHidden(hidden bool)
}

// Elements groups the five surfaces the controller binds to. A nil field means the surface could not be
// resolved on the page.
type Elements struct {
	Form   Form
	Input  Control
	Submit Control
	Output Region
	Loader Indicator
}

func (e Elements) complete() bool {
	return e.Form != nil && e.Input != nil && e.Submit != nil && e.Output != nil && e.Loader != nil
}
