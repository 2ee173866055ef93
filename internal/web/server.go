// Package web serves a drill session in the browser. One server owns one
// session: every handler mutates the engine and the database under a single
// mutex and answers with a fresh render of the page, so the browser and the
// engine can never disagree about whose turn it is.
package web

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/conorfennell/drillhash/internal/domain"
	"github.com/conorfennell/drillhash/internal/engine"
	"github.com/conorfennell/drillhash/internal/session"
	"github.com/conorfennell/drillhash/internal/storage"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

// Answer control modes. Binary hides the Hard and Easy buttons so every
// review is a plain pass or fail.
const (
	ControlsFull   = "full"
	ControlsBinary = "binary"
)

var errUnknownAction = errors.New("unknown action")

// Options tunes how the drill pages render.
type Options struct {
	AnswerControls string
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	mu        sync.Mutex
	eng       *engine.Engine
	db        *storage.DB
	opts      Options
	router    chi.Router
	templates *template.Template
	done      chan struct{}
	doneOnce  sync.Once
}

// NewServer creates and configures a server around a started session.
func NewServer(eng *engine.Engine, db *storage.DB, opts Options) (*Server, error) {
	tpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		eng:       eng,
		db:        db,
		opts:      opts,
		templates: tpl,
		done:      make(chan struct{}),
	}
	s.routes()
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Done is closed when the user closes the session from the browser.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Completed reports whether the session ran to completion (or was ended
// deliberately). The drill command uses this to pick its exit code.
func (s *Server) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Phase() == session.PhaseCompleted
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/", s.handleDrill)
	r.Post("/action", s.handleAction)
	r.Get("/progress", s.handleProgress)

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		// The static tree is embedded at build time.
		panic(err)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	s.router = r
}

// handleDrill renders the current card, or the completed view once the
// queue is empty.
func (s *Server) handleDrill(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data, err := s.page()
	s.mu.Unlock()

	if err != nil {
		slog.Error("failed to build drill page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.render(w, "page", data)
}

// handleAction applies one form action and answers with the page that
// follows it. Out-of-sequence actions, like grading a face-down card from a
// stale tab, are logged and answered with the current page unchanged.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	action := r.PostFormValue("action")

	s.mu.Lock()
	err := s.apply(action, time.Now())
	data, pageErr := s.page()
	s.mu.Unlock()

	switch {
	case err == nil:
	case errors.Is(err, errUnknownAction):
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	case errors.Is(err, session.ErrInvalidState):
		slog.Warn("ignored out-of-sequence action", "action", action)
	default:
		slog.Error("failed to apply action", "action", action, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if pageErr != nil {
		slog.Error("failed to build drill page", "error", pageErr)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.render(w, "page", data)
}

// handleProgress renders the progress fragment on its own.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data, err := s.page()
	s.mu.Unlock()

	if err != nil {
		slog.Error("failed to build progress fragment", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.render(w, "progress", data)
}

// apply dispatches one action token. Callers hold the mutex.
func (s *Server) apply(action string, now time.Time) error {
	switch action {
	case "reveal":
		return s.eng.Reveal()
	case "forgot", "hard", "good", "easy":
		return s.applyGrade(action, now)
	case "undo":
		return s.applyUndo()
	case "end":
		s.eng.EndSession()
		return nil
	case "finish":
		s.doneOnce.Do(func() { close(s.done) })
		return nil
	default:
		return errUnknownAction
	}
}

// applyGrade advances the session and persists the outcome. The engine is
// the source of truth; the database writes follow it.
func (s *Server) applyGrade(token string, now time.Time) error {
	id, err := s.eng.CurrentID()
	if err != nil {
		return err
	}
	if err := s.eng.Grade(token, now); err != nil {
		return err
	}

	state, ok := s.eng.StateOf(id)
	if !ok {
		return fmt.Errorf("graded card %s has no memory state", id)
	}
	if err := s.db.SaveState(id, state); err != nil {
		return err
	}
	grade, err := domain.ParseGrade(token)
	if err != nil {
		return err
	}
	return s.db.InsertReview(domain.ReviewLog{CardID: id, Grade: grade, ReviewedAt: now})
}

// applyUndo takes back the latest grade in the engine, then mirrors the
// restore into the database: prior state written back, newest review row
// removed. After Undo the restored card is at the front of the queue.
func (s *Server) applyUndo() error {
	if err := s.eng.Undo(); err != nil {
		return err
	}
	id, err := s.eng.CurrentID()
	if err != nil {
		return err
	}
	state, ok := s.eng.StateOf(id)
	if !ok {
		return fmt.Errorf("restored card %s has no memory state", id)
	}
	if err := s.db.SaveState(id, state); err != nil {
		return err
	}
	return s.db.DeleteLastReview(id)
}

// pageData is the render model shared by the full page and the progress
// fragment.
type pageData struct {
	Completed bool
	Deck      string
	Front     template.HTML
	Back      template.HTML
	Revealed  bool
	Total     int
	Reviewed  int
	Remaining int
	Percent   int
	CanUndo   bool
	Binary    bool
}

// page snapshots the engine into render data. Callers hold the mutex.
func (s *Server) page() (pageData, error) {
	data := pageData{
		Total:     s.eng.TotalCards(),
		Reviewed:  s.eng.ReviewedCards(),
		Remaining: s.eng.RemainingCards(),
		Percent:   int(s.eng.Progress() * 100),
		CanUndo:   s.eng.ReviewedCards() > 0,
		Binary:    s.opts.AnswerControls == ControlsBinary,
	}
	if s.eng.Phase() != session.PhaseActive {
		data.Completed = true
		return data, nil
	}

	deck, err := s.eng.CurrentDeck()
	if err != nil {
		return data, err
	}
	front, err := s.eng.CurrentFront()
	if err != nil {
		return data, err
	}
	data.Deck = deck
	data.Front, err = renderMarkdown(front)
	if err != nil {
		return data, err
	}

	data.Revealed = s.eng.IsRevealed()
	if data.Revealed {
		back, err := s.eng.CurrentBack()
		if err != nil {
			return data, err
		}
		data.Back, err = renderMarkdown(back)
		if err != nil {
			return data, err
		}
	}
	return data, nil
}

func (s *Server) render(w http.ResponseWriter, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("failed to render template", "template", name, "error", err)
	}
}
