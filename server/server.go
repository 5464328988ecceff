package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/relay"
	"github.com/hupe1980/agentrelay/render"
	"github.com/hupe1980/agentrelay/stream"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// DefaultArtifactRoute is where stored artifacts are served.
const DefaultArtifactRoute = "/screenshots/"

// Starter starts one relay run per instruction. *relay.Runner implements it.
type Starter interface {
	Start(ctx context.Context, instruction string) (*relay.Invocation, error)
}

// Options holds configuration overrides passed to New().
type Options struct {
	// Title is shown on the index page.
	Title string
	// ArtifactDir is served read-only under ArtifactRoute. Empty disables the route.
	ArtifactDir string
	// ArtifactRoute defaults to DefaultArtifactRoute.
	ArtifactRoute string
	// MaxFormBytes limits the size of the instruction form. Defaults to 1 MiB.
	MaxFormBytes int64
	// Normalize defaults to render.Normalize.
	Normalize render.Func
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Server is the HTTP surface of the bridge.
type Server struct {
	starter Starter
	opts    Options
	logger  logging.Logger
	handler http.Handler
}

// New creates a Server dispatching instructions to starter.
func New(starter Starter, optFns ...func(o *Options)) *Server {
	opts := Options{
		Title:         "Agent Relay",
		ArtifactRoute: DefaultArtifactRoute,
		MaxFormBytes:  1 << 20,
		Normalize:     render.Normalize,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		starter: starter,
		opts:    opts,
		logger:  logging.Component(opts.Logger, "server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", s.handleRun)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if opts.ArtifactDir != "" {
		mux.Handle("GET "+opts.ArtifactRoute, artifactHandler(opts.ArtifactRoute, opts.ArtifactDir))
	}

	s.handler = chain(
		requestID(),
		accessLog(s.logger),
		recoverPanic(s.logger),
	)(mux)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Title  string
		Action string
	}{Title: s.opts.Title, Action: "/"}
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("server.index.render_failed", "error", err)
	}
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}

	instruction := strings.TrimSpace(r.PostForm.Get("instruction"))
	if instruction == "" {
		http.Error(w, relay.ErrEmptyInstruction.Error(), http.StatusBadRequest)
		return
	}

	inv, err := s.starter.Start(r.Context(), instruction)
	if err != nil {
		if errors.Is(err, relay.ErrEmptyInstruction) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("server.run.start_failed", "error", err)
		http.Error(w, "failed to start run", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Invocation-ID", inv.ID)
	w.WriteHeader(http.StatusOK)

	if err := stream.Write(w, stream.Fragments(inv.Channel(), s.opts.Normalize)); err != nil {
		s.logger.Warn("server.run.client_gone", "invocation_id", inv.ID, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if a, ok := s.starter.(interface{ Active() int }); ok {
		body["active_runs"] = a.Active()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// artifactHandler serves stored artifacts without directory listings.
func artifactHandler(route, dir string) http.Handler {
	files := http.StripPrefix(route, http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, r)
	})
}
