package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/promptstream/internal/controller"
	"github.com/MegaGrindStone/promptstream/internal/models"
)

// HandlePrompts forwards the submit event of a page's form to its controller. It expects the form fields
// "session_id" and "prompt". The response is sent as soon as the submission is accepted; the generated
// text reaches the browser as patches over SSE.
//
// Status codes: 202 accepted, 204 empty prompt (nothing happened), 404 unknown session, 409 a submission
// is still in flight, 410 the session was closed, 503 the form is not bound because initialization failed.
func (m Main) HandlePrompts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.FormValue("session_id")
	s, ok := m.session(sessionID)
	if !ok {
		m.logger.Error("Unknown page session", slog.String("session", sessionID))
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}

	form, ok := s.elements[models.ElementForm]
	if !ok {
		http.Error(w, "Page is not ready", http.StatusServiceUnavailable)
		return
	}

	_, err := form.submit(r.Context(), r.FormValue("prompt"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, controller.ErrEmptyPrompt):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, controller.ErrBusy):
		http.Error(w, "Submission in progress", http.StatusConflict)
	case errors.Is(err, controller.ErrClosed):
		http.Error(w, "Session closed", http.StatusGone)
	case errors.Is(err, errNotBound):
		http.Error(w, "Page is not ready", http.StatusServiceUnavailable)
	default:
		m.logger.Error("Failed to submit prompt",
			slog.String("session", sessionID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleCloseSession tears down a page session. Browsers call it with a beacon when the page is hidden,
// which abandons any in-flight request of that page.
func (m Main) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.FormValue("session_id")
	if !m.removeSession(sessionID) {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}
	m.logger.Debug("Closed page session", slog.String("session", sessionID))
	w.WriteHeader(http.StatusNoContent)
}
