// Package api exposes the embedding engine over HTTP: computing embeddings,
// placing features onto an existing layout, projecting new samples, and
// reading stored coordinates back for rendering.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/TomKellyGenetics/swne/internal/auth"
	"github.com/TomKellyGenetics/swne/internal/config"
	"github.com/TomKellyGenetics/swne/internal/storage"
)

// Server routes embedding API requests.
type Server struct {
	router   *chi.Mux
	repo     storage.EmbeddingRepository
	auth     *auth.Service
	logger   *log.Logger
	defaults config.EmbedConfig
}

// ServerConfig wires the server's collaborators.
type ServerConfig struct {
	Repo     storage.EmbeddingRepository
	Auth     *auth.Service
	Logger   *log.Logger
	Defaults config.EmbedConfig
}

// NewServer creates a configured server with routes registered.
func NewServer(cfg ServerConfig) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		router:   r,
		repo:     cfg.Repo,
		auth:     cfg.Auth,
		logger:   logger,
		defaults: cfg.Defaults,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		// Stateless reporting utility, no stored embedding involved.
		r.Post("/features/summary", s.handleSummarizeFeatures)

		r.Group(func(r chi.Router) {
			if s.auth != nil {
				r.Use(auth.Middleware(s.auth))
			}

			r.Route("/embeddings", func(r chi.Router) {
				r.Get("/", s.handleListEmbeddings)
				r.Post("/", s.handleCreateEmbedding)
				r.Get("/{embeddingID}", s.handleGetEmbedding)
				r.Delete("/{embeddingID}", s.handleDeleteEmbedding)

				r.Post("/{embeddingID}/features", s.handleEmbedFeatures)
				r.Post("/{embeddingID}/project", s.handleProjectSamples)
				r.Post("/{embeddingID}/similar", s.handleFindSimilar)
			})
		})
	})
}

// Run starts the HTTP listener.
func (s *Server) Run(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
