package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/MegaGrindStone/promptstream/internal/models"
)

type homePageData struct {
	SessionID string

	Input  elementView
	Submit elementView
	Output elementView
	Loader elementView
}

// HandleHome serves the prompt page. Every load starts a new page session whose controller is initialized
// before rendering, so configuration and missing-element errors are part of the first paint.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.pruneSessions(time.Now())
	s := m.newSession()

	data := homePageData{
		SessionID: s.id,
		Input:     s.elements[models.ElementInput].view(),
		Submit:    s.elements[models.ElementSubmit].view(),
		Output:    s.elements[models.ElementOutput].view(),
		Loader:    s.elements[models.ElementLoader].view(),
	}

	w.Header().Set("Cache-Control", "no-store")
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to render home page", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// HandleSSE subscribes the browser to the patches of its page session. The session is selected with the
// "session_id" query parameter and is kept alive for as long as the stream stays open.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	if s, ok := m.subscribe(r.URL.Query().Get("session_id")); ok {
		defer m.unsubscribe(s)
	}
	m.sseSrv.ServeHTTP(w, r)
}

// HandleHealth reports liveness.
func (m Main) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		m.logger.Error("Failed to write response", slog.String(errLoggerKey, err.Error()))
	}
}
