package models

// Element ids of the UI surfaces the page must expose. The page template is expected to carry every one of
// them, the controller refuses to bind otherwise.
const (
	ElementForm   = "prompt-form"
	ElementInput  = "prompt-input"
	ElementSubmit = "generate-button"
	ElementOutput = "response-container"
	ElementLoader = "loader"
)

// RequiredElements lists the ids in the order they are reported when missing.
var RequiredElements = []string{
	ElementForm,
	ElementInput,
	ElementSubmit,
	ElementOutput,
	ElementLoader,
}

// PatchOp is the kind of DOM mutation carried by a Patch.
type PatchOp string

const (
	// PatchOpText replaces the text content of the target.
	PatchOpText PatchOp = "text"
	// PatchOpAppend appends Text to the text content of the target.
	PatchOpAppend PatchOp = "append"
	// PatchOpHTML replaces the inner HTML of the target. Text must already be safe to render.
	PatchOpHTML PatchOp = "html"
	// PatchOpDisabled sets the disabled property of the target to Flag.
	PatchOpDisabled PatchOp = "disabled"
	// PatchOpHidden toggles the hidden class of the target to Flag.
	PatchOpHidden PatchOp = "hidden"
	// PatchOpLabel replaces the label of a control.
	PatchOpLabel PatchOp = "label"
	// PatchOpError toggles the error styling of the target to Flag.
	PatchOpError PatchOp = "error"
)

// Patch is a single mutation of one element of a page, sent to the browser as JSON over SSE.
type Patch struct {
	Target string  `json:"target"`
	Op     PatchOp `json:"op"`
	Text   string  `json:"text,omitempty"`
	Flag   bool    `json:"flag,omitempty"`
}
