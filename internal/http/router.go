package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"realtime-commerce-assistant/internal/app"
	"realtime-commerce-assistant/internal/models"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, r *http.Request) {
		if err := application.Ready(r.Context()); err != nil {
			http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Handle("/ws", NewGateway(application))

		r.Get("/catalog", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"skus": application.Catalog.SKUs()})
		})
		r.Get("/catalog/{sku}", func(w http.ResponseWriter, r *http.Request) {
			p, ok := application.Catalog.Lookup(chi.URLParam(r, "sku"))
			if !ok {
				writeJSON(w, http.StatusNotFound, ErrorBody{Code: "unknown_sku", Message: "no such product"})
				return
			}
			writeJSON(w, http.StatusOK, p)
		})

		r.Get("/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
			msgs, err := application.History.Messages(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, ErrorBody{Code: "history_unavailable", Message: err.Error()})
				return
			}
			if msgs == nil {
				msgs = []models.Message{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
		})
		r.Delete("/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
			if err := application.History.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
				writeJSON(w, http.StatusInternalServerError, ErrorBody{Code: "history_unavailable", Message: err.Error()})
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
