// Package api exposes a small local HTTP interface to inspect the gateway and
// queue work on its sensors.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/mbalug7/go-tarts/pkg/config"
	"github.com/mbalug7/go-tarts/pkg/tarts"
)

// Controller runs work on the goroutine that owns the library
type Controller interface {
	Do(ctx context.Context, fn func(lib *tarts.Lib) error) error
	// RemoveSensor detaches the sensor and forgets its stored record
	RemoveSensor(ctx context.Context, id string) error
}

type Server struct {
	cfg    config.APIConfig
	ctrl   Controller
	router chi.Router
	server *http.Server
}

func NewServer(cfg config.APIConfig, ctrl Controller) *Server {
	obj := &Server{
		cfg:    cfg,
		ctrl:   ctrl,
		router: chi.NewRouter(),
	}
	obj.setupRoutes()
	obj.server = &http.Server{
		Addr:         cfg.Listen,
		Handler:      obj.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return obj
}

func (obj *Server) setupRoutes() {
	obj.router.Use(middleware.RequestID)
	obj.router.Use(middleware.RealIP)
	obj.router.Use(requestLogger)
	obj.router.Use(middleware.Recoverer)
	if len(obj.cfg.CORSOrigins) > 0 {
		obj.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: obj.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	obj.router.Get("/healthz", obj.handleHealth)
	obj.router.Get("/gateways", obj.handleListGateways)
	obj.router.Get("/sensors/{id}", obj.handleGetSensor)

	obj.router.Group(func(r chi.Router) {
		if obj.cfg.JWTSecret != "" {
			r.Use(bearerAuth([]byte(obj.cfg.JWTSecret)))
		}
		r.Post("/gateways/{id}/reform", obj.handleReform)
		r.Post("/sensors/{id}/configurations/request", obj.handleRequestConfigurations)
		r.Post("/sensors/{id}/control", obj.handleControl)
		r.Delete("/sensors/{id}", obj.handleRemoveSensor)
	})
}

func (obj *Server) Handler() http.Handler {
	return obj.router
}

// ListenAndServe blocks until the server is shut down
func (obj *Server) ListenAndServe() error {
	log.Info().Str("listen", obj.cfg.Listen).Msg("api listening")
	if err := obj.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (obj *Server) Shutdown(ctx context.Context) error {
	return obj.server.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("api request")
	})
}
