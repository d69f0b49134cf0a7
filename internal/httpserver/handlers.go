package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"campaignd/internal/domain"
	"campaignd/internal/observability"
	"campaignd/internal/util"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, campaignID string) (domain.DispatchSummary, error)
	Analytics(ctx context.Context, campaignID string) (domain.AnalyticsSnapshot, error)
}

type Queue interface {
	EnqueueCampaign(ctx context.Context, campaignID string, requestedAt time.Time) error
}

type API struct {
	Svc Dispatcher
	// Queue is optional; /enqueue is only routed when it is set.
	Queue Queue
}

func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/v1/campaigns/{id}/dispatch", a.handleDispatch).Methods(http.MethodPost)
	r.HandleFunc("/v1/campaigns/{id}/analytics", a.handleAnalytics).Methods(http.MethodGet)
	if a.Queue != nil {
		r.HandleFunc("/v1/campaigns/{id}/enqueue", a.handleEnqueue).Methods(http.MethodPost)
	}
}

func (a *API) handleDispatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}

	sum, err := a.Svc.Dispatch(r.Context(), id)
	var re *domain.ResolutionError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sum)
	case errors.As(err, &re):
		// the campaign did reach a terminal status; report it
		writeJSON(w, http.StatusBadGateway, sum)
	case errors.Is(err, domain.ErrCampaignNotFound):
		http.Error(w, ErrNotFound, http.StatusNotFound)
	case errors.Is(err, domain.ErrCampaignBusy):
		http.Error(w, ErrBusy, http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, ErrConflict, http.StatusConflict)
	default:
		slog.Error("dispatch failed", "err", err, "campaign_id", id)
		http.Error(w, ErrDependency, http.StatusBadGateway)
	}
}

func (a *API) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	now := util.NowUTC()
	if err := a.Queue.EnqueueCampaign(r.Context(), id, now); err != nil {
		observability.Enqueues.WithLabelValues("error").Inc()
		slog.Error("enqueue campaign failed", "err", err, "campaign_id", id)
		http.Error(w, ErrEnqueue, http.StatusBadGateway)
		return
	}
	observability.Enqueues.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusAccepted, map[string]any{"campaignId": id, "requestedAt": now})
}

func (a *API) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := a.Svc.Analytics(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrCampaignNotFound) {
			http.Error(w, ErrNotFound, http.StatusNotFound)
			return
		}
		slog.Error("get analytics failed", "err", err, "campaign_id", id)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
