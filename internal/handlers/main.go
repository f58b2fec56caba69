package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MegaGrindStone/promptstream"
	"github.com/MegaGrindStone/promptstream/internal/controller"
	"github.com/MegaGrindStone/promptstream/internal/models"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

// Config holds what Main needs to initialize a controller for every page session.
type Config struct {
	Controller   controller.Config
	NewGenerator controller.GeneratorFunc
	// SessionTTL is how long a page session may stay idle before it is torn down. Zero uses one hour.
	SessionTTL time.Duration
	// Templates overrides the embedded template filesystem.
	Templates fs.FS
}

// Main serves the prompt page. It keeps one page session per loaded page, each holding the element model
// of the page and the controller bound to it, and mirrors element mutations to the browser over SSE.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	ids       map[string]bool

	cfg Config

	mu       *sync.Mutex
	sessions map[string]*pageSession

	logger *slog.Logger
}

type pageSession struct {
	id       string
	elements map[string]*element
	ctrl     *controller.Controller
	initErr  error
	lastSeen time.Time
	// subscribers counts the open event streams of the page. A page with a live stream is never pruned.
	subscribers int
}

var patchSSEType = sse.Type("patch")

var errNotBound = errors.New("form is not bound")

const (
	errLoggerKey = "err"

	defaultSessionTTL = time.Hour
)

// NewMain creates a new Main instance. It parses the page templates, discovers which element ids the home
// page declares and configures the SSE server so that each browser subscribes to its own page topic.
func NewMain(cfg Config, logger *slog.Logger) (Main, error) {
	tfs := cfg.Templates
	if tfs == nil {
		tfs = promptstream.TemplateFS
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}

	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		tfs,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	ids, err := elementIDs(tmpl)
	if err != nil {
		return Main{}, err
	}

	m := Main{
		templates: tmpl,
		ids:       ids,
		cfg:       cfg,
		mu:        &sync.Mutex{},
		sessions:  make(map[string]*pageSession),
		logger:    logger.With(slog.String("module", "main")),
	}
	m.sseSrv = &sse.Server{
		OnSession: func(s *sse.Session) (sse.Subscription, bool) {
			// Every client gets the default topic for shutdown notices, plus its own page topic.
			sessionID := s.Req.URL.Query().Get("session_id")
			if !m.hasSession(sessionID) {
				http.Error(s.Res, "Unknown session", http.StatusNotFound)
				return sse.Subscription{}, false
			}
			// Send the headers right away, browsers only report the stream as open once they arrive.
			if err := s.Flush(); err != nil {
				m.logger.Error("Failed to open event stream",
					slog.String("session", sessionID),
					slog.String(errLoggerKey, err.Error()))
				return sse.Subscription{}, false
			}

			return sse.Subscription{
				Client:      s,
				LastEventID: s.LastEventID,
				Topics:      []string{sse.DefaultTopic, pageTopic(sessionID)},
			}, true
		},
	}

	return m, nil
}

func pageTopic(sessionID string) string {
	return fmt.Sprintf("page-%s", sessionID)
}

// newSession creates a page session, resolves its elements and initializes its controller. Initialization
// failures are kept on the session; the page still renders so the user sees them.
func (m Main) newSession() *pageSession {
	s := &pageSession{
		id:       uuid.New().String(),
		elements: make(map[string]*element),
		lastSeen: time.Now(),
	}
	publish := m.publisher(s.id)
	for _, id := range models.RequiredElements {
		if m.ids[id] {
			s.elements[id] = newElement(id, publish)
		}
	}
	// A freshly loaded page starts with the busy indicator hidden.
	if l, ok := s.elements[models.ElementLoader]; ok {
		l.hidden = true
	}

	logger := m.logger.With(slog.String("session", s.id))
	s.ctrl, s.initErr = controller.New(s.controllerElements(), m.cfg.Controller, m.cfg.NewGenerator, logger)
	if s.initErr != nil {
		logger.Error("Failed to initialize controller", slog.String(errLoggerKey, s.initErr.Error()))
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	return s
}

// controllerElements converts the resolved elements to the controller's surfaces, leaving absent ones nil.
func (s *pageSession) controllerElements() controller.Elements {
	var es controller.Elements
	if e, ok := s.elements[models.ElementForm]; ok {
		es.Form = e
	}
	if e, ok := s.elements[models.ElementInput]; ok {
		es.Input = e
	}
	if e, ok := s.elements[models.ElementSubmit]; ok {
		es.Submit = e
	}
	if e, ok := s.elements[models.ElementOutput]; ok {
		es.Output = e
	}
	if e, ok := s.elements[models.ElementLoader]; ok {
		es.Loader = e
	}
	return es
}

func (s *pageSession) close() {
	if s.ctrl != nil {
		s.ctrl.Close()
	}
}

func (m Main) publisher(sessionID string) func(models.Patch) {
	topic := pageTopic(sessionID)
	return func(p models.Patch) {
		data, err := json.Marshal(p)
		if err != nil {
			m.logger.Error("Failed to marshal patch",
				slog.String("patch", fmt.Sprintf("%+v", p)),
				slog.String(errLoggerKey, err.Error()))
			return
		}

		msg := sse.Message{
			Type: patchSSEType,
		}
		msg.AppendData(string(data))
		if err := m.sseSrv.Publish(&msg, topic); err != nil {
			m.logger.Error("Failed to publish patch",
				slog.String("session", sessionID),
				slog.String(errLoggerKey, err.Error()))
		}
	}
}

func (m Main) hasSession(id string) bool {
	if id == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

// session returns the page session with id and marks it as seen.
func (m Main) session(id string) (*pageSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.lastSeen = time.Now()
	}
	return s, ok
}

// subscribe marks the page session with id as having one more open event stream.
func (m Main) subscribe(id string) (*pageSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.subscribers++
		s.lastSeen = time.Now()
	}
	return s, ok
}

func (m Main) unsubscribe(s *pageSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.subscribers--
	s.lastSeen = time.Now()
}

func (m Main) removeSession(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.close()
	}
	return ok
}

// pruneSessions tears down page sessions without an open event stream that have been idle for longer than
// the configured TTL.
func (m Main) pruneSessions(now time.Time) {
	var expired []*pageSession

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.subscribers == 0 && now.Sub(s.lastSeen) > m.cfg.SessionTTL {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.logger.Debug("Pruning idle page session", slog.String("session", s.id))
		s.close()
	}
}

// Shutdown gracefully terminates the Main instance. It tears down every page session, broadcasts a close
// message to all connected clients and waits up to 5 seconds for connections to terminate. After the
// timeout, any remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*pageSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	clear(m.sessions)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}

	e := &sse.Message{Type: sse.Type("closePage")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
