package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/thenexusengine/tne_vpaid/internal/storage"
	"github.com/thenexusengine/tne_vpaid/internal/vpaid"
	"github.com/thenexusengine/tne_vpaid/pkg/logger"
)

// CreativeAdmin is the store surface the admin API manages
type CreativeAdmin interface {
	List(ctx context.Context) ([]*storage.Creative, error)
	Get(ctx context.Context, id string) (*storage.Creative, error)
	Create(ctx context.Context, c *storage.Creative) error
	Archive(ctx context.Context, id string) error
}

// CreativeRequest is the request body for registering a creative
type CreativeRequest struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	AdParameters    string  `json:"ad_parameters"`
	Variant         string  `json:"variant"`
	Skippable       bool    `json:"skippable"`
	DurationSeconds float64 `json:"duration_seconds"`
	ClickThrough    string  `json:"click_through,omitempty"`
}

// CreativeListResponse is the response for listing creatives
type CreativeListResponse struct {
	Creatives []*storage.Creative `json:"creatives"`
	Count     int                 `json:"count"`
}

// CreativeAdminHandler handles creative management via API
type CreativeAdminHandler struct {
	store CreativeAdmin
}

// NewCreativeAdminHandler creates a new creative admin handler. A nil store
// answers every call with 503.
func NewCreativeAdminHandler(store CreativeAdmin) *CreativeAdminHandler {
	return &CreativeAdminHandler{store: store}
}

// Register adds the admin routes to mux
// Routes:
//
//	GET    /admin/creatives       - List active creatives
//	GET    /admin/creatives/{id}  - Get one creative
//	POST   /admin/creatives       - Register a creative
//	DELETE /admin/creatives/{id}  - Archive a creative
func (h *CreativeAdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/creatives", h.available(h.list))
	mux.HandleFunc("GET /admin/creatives/{id}", h.available(h.get))
	mux.HandleFunc("POST /admin/creatives", h.available(h.create))
	mux.HandleFunc("DELETE /admin/creatives/{id}", h.available(h.archive))
}

func (h *CreativeAdminHandler) available(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.store == nil {
			sendError(w, http.StatusServiceUnavailable, "database_unavailable", "Creative management requires a database connection")
			return
		}
		next(w, r)
	}
}

func (h *CreativeAdminHandler) list(w http.ResponseWriter, r *http.Request) {
	creatives, err := h.store.List(r.Context())
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to list creatives")
		sendError(w, http.StatusInternalServerError, "database_error", "Failed to retrieve creatives")
		return
	}
	if creatives == nil {
		creatives = []*storage.Creative{}
	}

	sendJSON(w, http.StatusOK, CreativeListResponse{Creatives: creatives, Count: len(creatives)})
}

func (h *CreativeAdminHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	c, err := h.store.Get(r.Context(), id)
	if err != nil {
		logger.Log.Error().Err(err).Str("creative_id", id).Msg("Failed to get creative")
		sendError(w, http.StatusInternalServerError, "database_error", "Failed to retrieve creative")
		return
	}
	if c == nil {
		sendError(w, http.StatusNotFound, "not_found", "Creative not found: "+id)
		return
	}

	sendJSON(w, http.StatusOK, c)
}

func (h *CreativeAdminHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreativeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	if req.ID == "" {
		sendError(w, http.StatusBadRequest, "missing_id", "Creative ID is required")
		return
	}
	if req.AdParameters == "" {
		sendError(w, http.StatusBadRequest, "missing_ad_parameters", "ad_parameters is required")
		return
	}
	if req.DurationSeconds < 0 {
		sendError(w, http.StatusBadRequest, "invalid_duration", "duration_seconds must not be negative")
		return
	}
	if req.Variant == "" {
		req.Variant = vpaid.Linear.String()
	}

	c := &storage.Creative{
		ID:              req.ID,
		Name:            req.Name,
		AdParameters:    req.AdParameters,
		Variant:         req.Variant,
		Skippable:       req.Skippable,
		DurationSeconds: req.DurationSeconds,
		ClickThrough:    req.ClickThrough,
	}

	err := h.store.Create(r.Context(), c)
	switch {
	case errors.Is(err, vpaid.ErrCreativeParse):
		sendError(w, http.StatusBadRequest, "creative_parse_error", err.Error())
		return
	case errors.Is(err, storage.ErrInvalidVariant):
		sendError(w, http.StatusBadRequest, "invalid_variant", err.Error())
		return
	case errors.Is(err, storage.ErrCreativeExists):
		sendError(w, http.StatusConflict, "already_exists", "Creative already exists: "+req.ID)
		return
	case err != nil:
		logger.Log.Error().Err(err).Str("creative_id", req.ID).Msg("Failed to create creative")
		sendError(w, http.StatusInternalServerError, "database_error", "Failed to create creative")
		return
	}

	logger.Log.Info().
		Str("creative_id", c.ID).
		Str("variant", c.Variant).
		Msg("Creative registered via API")

	sendJSON(w, http.StatusCreated, c)
}

func (h *CreativeAdminHandler) archive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.store.Archive(r.Context(), id)
	if errors.Is(err, storage.ErrCreativeNotFound) {
		sendError(w, http.StatusNotFound, "not_found", "Creative not found: "+id)
		return
	}
	if err != nil {
		logger.Log.Error().Err(err).Str("creative_id", id).Msg("Failed to archive creative")
		sendError(w, http.StatusInternalServerError, "database_error", "Failed to archive creative")
		return
	}

	logger.Log.Info().Str("creative_id", id).Msg("Creative archived via API")
	w.WriteHeader(http.StatusNoContent)
}
