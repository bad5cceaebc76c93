package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
	"github.com/randalmurphal/eventbus/pkg/eventbus/store"
)

const (
	defaultDeliveryLimit = 50
	maxDeliveryLimit     = 1000
)

// admin serves health, registry and delivery views of a running daemon.
type admin struct {
	dispatcher *eventbus.Dispatcher
	deliveries store.Querier
	handlers   store.DefinitionLister
	counter    *auditCounter
	metrics    http.Handler
	logger     *slog.Logger
}

func (a *admin) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/topics", a.topics)
	r.Get("/handlers", a.liveHandlers)
	r.Get("/handlers/stored", a.storedHandlers)
	r.Get("/deliveries", a.listDeliveries)
	r.Get("/counts", a.counts)
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics)
	}
	return r
}

func (a *admin) topics(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{"topics": a.dispatcher.ListTopics()})
}

// liveHandlers lists the handlers registered in this process.
func (a *admin) liveHandlers(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{"handlers": a.dispatcher.Definitions()})
}

// storedHandlers lists the handler catalogue kept by the store, which may
// include handlers of other processes.
func (a *admin) storedHandlers(w http.ResponseWriter, r *http.Request) {
	if a.handlers == nil {
		a.writeError(w, http.StatusNotFound, "no store lists handler definitions")
		return
	}
	defs, err := a.handlers.Definitions(r.Context())
	if err != nil {
		a.logger.Error("list handler definitions failed", slog.String("error", err.Error()))
		a.writeError(w, http.StatusInternalServerError, "list handler definitions failed")
		return
	}
	if defs == nil {
		defs = []eventbus.HandlerDefinition{}
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"handlers": defs})
}

func (a *admin) counts(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.counter.Snapshot())
}

func (a *admin) listDeliveries(w http.ResponseWriter, r *http.Request) {
	if a.deliveries == nil {
		a.writeError(w, http.StatusNotFound, "no queryable store configured")
		return
	}

	limit := defaultDeliveryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			a.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxDeliveryLimit)
	}

	recs, err := a.deliveries.Deliveries(r.Context(), limit)
	if err != nil {
		a.logger.Error("list deliveries failed", slog.String("error", err.Error()))
		a.writeError(w, http.StatusInternalServerError, "list deliveries failed")
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"deliveries": recs})
}

func (a *admin) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("encode response failed", slog.String("error", err.Error()))
	}
}

func (a *admin) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}
