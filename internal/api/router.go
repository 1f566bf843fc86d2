// Package api exposes the ledger over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/app"
)

// ActorHeader carries the acting user, trusted as opaque.
const ActorHeader = "X-Actor"

// Handler serves the ledger routes.
type Handler struct {
	app    *app.App
	logger *zap.Logger
}

// NewHandler creates a Handler over a.
func NewHandler(a *app.App) *Handler {
	return &Handler{app: a, logger: a.Logger.Named("api")}
}

// NewRouter creates the chi router with middleware and every route.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", ActorHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/imports", h.handleImport)

	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.handleListAccounts)
		r.Get("/{code}", h.handleGetAccount)
		r.Post("/{code}/activate", h.handleSetActive(true))
		r.Post("/{code}/deactivate", h.handleSetActive(false))
	})

	r.Route("/journal-entries", func(r chi.Router) {
		r.Post("/", h.handlePostEntry)
		r.Get("/", h.handleListEntries)
		r.Get("/{ref}", h.handleGetEntry)
		r.Put("/{ref}/lines", h.handleAmendLines)
		r.Post("/{ref}/reverse", h.handleReverse)
	})

	r.Get("/balances", h.handleBalances)

	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
