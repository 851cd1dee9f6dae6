package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/google/uuid"

	"quiz-agent/internal/application/port/input"
	"quiz-agent/internal/application/port/output"
	"quiz-agent/internal/domain/entity"
)

type Config struct {
	Addr          string
	Budget        time.Duration
	MaxConcurrent int

	// Expected inbound credential. Empty fields disable the check.
	Email  string
	Secret string
}

func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		Budget:        3 * time.Minute,
		MaxConcurrent: 2,
	}
}

// Server accepts quiz chain requests and dispatches them to background
// solver runs. Requests return as soon as the run is admitted; each chain
// then races its own deadline.
type Server struct {
	runner input.ChainRunner
	cfg    Config
	log    output.LoggerPort

	// Slots bound concurrent chains. Each chain owns a browser process, so
	// admission control has to happen here rather than in the runner.
	slots chan struct{}
}

func NewServer(runner input.ChainRunner, cfg Config, log output.LoggerPort) *Server {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 3 * time.Minute
	}
	return &Server{
		runner: runner,
		cfg:    cfg,
		log:    log,
		slots:  make(chan struct{}, cfg.MaxConcurrent),
	}
}

func (s *Server) Router() http.Handler {
	requestLogger := httplog.NewLogger("quiz-agent", httplog.Options{
		JSON:    true,
		Concise: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(requestLogger))
	r.Use(middleware.Recoverer)

	r.Post("/quiz", s.startQuiz)
	r.Get("/health", s.health)
	r.Get("/healthz", s.health)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type startQuizRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

func (s *Server) startQuiz(w http.ResponseWriter, r *http.Request) {
	var req startQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Secret = strings.TrimSpace(req.Secret)
	req.URL = strings.TrimSpace(req.URL)

	if req.Email == "" || req.Secret == "" || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email, secret and url are required"})
		return
	}
	if u, err := url.Parse(req.URL); err != nil || u.Scheme == "" || u.Host == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url must be absolute"})
		return
	}
	if s.cfg.Email != "" && (req.Email != s.cfg.Email || req.Secret != s.cfg.Secret) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid credentials"})
		return
	}

	select {
	case s.slots <- struct{}{}:
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "all solver slots busy"})
		return
	}

	task := entity.ChainTask{
		ID:       uuid.New().String(),
		StartURL: req.URL,
		Credential: entity.Credential{
			Email:  req.Email,
			Secret: req.Secret,
		},
		Deadline: time.Now().Add(s.cfg.Budget),
	}

	// The chain outlives the HTTP request; it runs against its own deadline,
	// not the request context.
	go func() {
		defer func() { <-s.slots }()

		result := s.runner.Run(context.Background(), task)
		log := s.log.WithField("task_id", task.ID)
		if result.LastError != nil {
			log.Warn("chain finished",
				"outcome", result.Outcome,
				"links_completed", result.LinksCompleted,
				"error", result.LastError.Error())
			return
		}
		log.Info("chain finished",
			"outcome", result.Outcome,
			"links_completed", result.LinksCompleted)
	}()

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "accepted",
		"task_id": task.ID,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	s.log.Info("http server listening", "addr", s.cfg.Addr)
	return server.ListenAndServe()
}
