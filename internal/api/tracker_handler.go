package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/match-gateway/internal/api/shared"
	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/service/startracker"
)

// TrackerService is the star tracker surface the handlers use.
type TrackerService interface {
	IDs(ctx context.Context, a startracker.Actor, rel domain.Relation) ([]string, error)
	Add(ctx context.Context, a startracker.Actor, rel domain.Relation, targetID string) (bool, error)
	Remove(ctx context.Context, a startracker.Actor, rel domain.Relation, targetID string) (bool, error)
	Matches(ctx context.Context, a startracker.Actor, query url.Values) ([]startracker.Record, error)
}

var _ TrackerService = (*startracker.Service)(nil)

// TrackerHandler serves match listings and follow/contact sets.
type TrackerHandler struct {
	tracker TrackerService
	logger  *slog.Logger
}

// NewTrackerHandler creates a TrackerHandler.
func NewTrackerHandler(tracker TrackerService, logger *slog.Logger) *TrackerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackerHandler{tracker: tracker, logger: logger.With("component", "tracker_handler")}
}

// Matches handles GET /api/{role}/{role_id}/matches. Query parameters are
// passed to the match backend.
func (h *TrackerHandler) Matches(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	records, err := h.tracker.Matches(r.Context(), actor, r.URL.Query())
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondOK(w, r, records)
}

// List handles GET /api/{role}/{role_id}/{relation}.
func (h *TrackerHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, rel, err := relationRequest(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	ids, err := h.tracker.IDs(r.Context(), actor, rel)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondOK(w, r, RelationListResponse{Relation: rel, IDs: ids})
}

// Add handles PUT /api/{role}/{role_id}/{relation}/{target_id}.
func (h *TrackerHandler) Add(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.tracker.Add)
}

// Remove handles DELETE /api/{role}/{role_id}/{relation}/{target_id}.
func (h *TrackerHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.tracker.Remove)
}

type relationChange func(ctx context.Context, a startracker.Actor, rel domain.Relation, targetID string) (bool, error)

func (h *TrackerHandler) change(w http.ResponseWriter, r *http.Request, apply relationChange) {
	actor, rel, err := relationRequest(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	target := chi.URLParam(r, "target_id")
	changed, err := apply(r.Context(), actor, rel, target)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondOK(w, r, RelationResponse{TargetID: target, Changed: changed})
}

func relationRequest(r *http.Request) (startracker.Actor, domain.Relation, error) {
	actor, err := actorFromRequest(r)
	if err != nil {
		return startracker.Actor{}, "", err
	}
	rel, err := domain.ParseRelation(chi.URLParam(r, "relation"))
	if err != nil {
		return startracker.Actor{}, "", err
	}
	return actor, rel, nil
}
