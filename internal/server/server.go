package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"flashbox/internal/alert"
	"flashbox/internal/model"
	"flashbox/internal/session"
	"flashbox/internal/view"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Options tunes the HTTP server.
type Options struct {
	AlertKey     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	sessions *session.Manager
	renderer *view.Renderer
	logger   *zap.Logger
	opts     Options
	router   *mux.Router
	server   *http.Server
}

func NewServer(sessions *session.Manager, renderer *view.Renderer, logger *zap.Logger, opts Options) *Server {
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 15 * time.Second
	}
	s := &Server{
		sessions: sessions,
		renderer: renderer,
		logger:   logger,
		opts:     opts,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.logRequests)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	app := s.router.NewRoute().Subrouter()
	app.Use(s.sessions.Middleware)

	app.HandleFunc("/", s.handleIndex).Methods("GET")
	app.HandleFunc("/alerts", s.handleAdd).Methods("POST")

	api := app.PathPrefix("/api/alerts").Subrouter()
	api.HandleFunc("", s.handleList).Methods("GET")
	api.HandleFunc("", s.handleCreate).Methods("POST")
	api.HandleFunc("", s.handleDelete).Methods("DELETE")
	api.HandleFunc("/take", s.handleTake).Methods("POST")
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start launches the HTTP server
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	s.logger.Info("Web server listening", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// alerts returns the alert store of the request's session.
func (s *Server) alerts(r *http.Request) *alert.Store {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		// routes() always installs the session middleware in front of app handlers
		panic("server: request without session")
	}
	return alert.NewStore(sess, alert.WithKey(s.opts.AlertKey), alert.WithLogger(s.logger))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"Title": "Flashbox",
	}

	// Render fully before writing so a failing template never leaves a
	// half-sent page behind the error.
	var buf bytes.Buffer
	if err := s.renderer.Render(r.Context(), &buf, s.alerts(r), "layout", data); err != nil {
		s.logger.Error("Template error", zap.Error(err))
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	text := r.FormValue("text")
	if text == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	typ := model.Type(r.FormValue("type"))
	if typ == "" {
		typ = model.TypeInfo
	}

	var opts []alert.SetOption
	if subject := r.FormValue("subject"); subject != "" {
		opts = append(opts, alert.WithSubject(subject))
	}
	if r.FormValue("block") != "" {
		opts = append(opts, alert.Block())
	}

	st := s.alerts(r)
	var err error
	if args := r.Form["arg"]; len(args) > 0 {
		values := make([]any, len(args))
		for i, a := range args {
			values[i] = a
		}
		err = st.SetWithPositional(r.Context(), typ, text, values, opts...)
	} else {
		err = st.Set(r.Context(), typ, text, opts...)
	}
	if err != nil {
		s.logger.Error("Failed to queue alert", zap.Error(err))
		http.Error(w, "Failed to save", http.StatusInternalServerError)
		return
	}

	// Redirect back home
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func requestTypes(r *http.Request) []model.Type {
	raw := r.URL.Query()["type"]
	types := make([]model.Type, 0, len(raw))
	for _, t := range raw {
		if t != "" {
			types = append(types, model.Type(t))
		}
	}
	return types
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alerts(r).Get(r.Context(), requestTypes(r)...)
	if err != nil {
		s.logger.Error("Failed to list alerts", zap.Error(err))
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alerts(r).GetOnce(r.Context(), requestTypes(r)...)
	if err != nil {
		s.logger.Error("Failed to take alerts", zap.Error(err))
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.alerts(r).Delete(r.Context(), requestTypes(r)...); err != nil {
		s.logger.Error("Failed to delete alerts", zap.Error(err))
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createRequest struct {
	Type    model.Type        `json:"type"`
	Text    string            `json:"text"`
	Subject string            `json:"subject"`
	Block   bool              `json:"block"`
	Values  map[string]string `json:"values"`
	Args    []any             `json:"args"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	for i, a := range req.Args {
		req.Args[i] = numberArg(a)
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if len(req.Values) > 0 && len(req.Args) > 0 {
		http.Error(w, "values and args are mutually exclusive", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = model.TypeInfo
	}

	var opts []alert.SetOption
	if req.Subject != "" {
		opts = append(opts, alert.WithSubject(req.Subject))
	}
	if req.Block {
		opts = append(opts, alert.Block())
	}

	st := s.alerts(r)
	var err error
	switch {
	case len(req.Values) > 0:
		err = st.SetWithTemplate(r.Context(), req.Type, req.Text, req.Values, opts...)
	case len(req.Args) > 0:
		err = st.SetWithPositional(r.Context(), req.Type, req.Text, req.Args, opts...)
	default:
		err = st.Set(r.Context(), req.Type, req.Text, opts...)
	}
	if err != nil {
		s.logger.Error("Failed to queue alert", zap.Error(err))
		http.Error(w, "Failed to save", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// numberArg turns a decoded JSON number into int64 when it is integral so
// that %d verbs format it, and into float64 otherwise.
func numberArg(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
