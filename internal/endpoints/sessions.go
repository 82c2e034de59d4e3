// Package endpoints provides the HTTP host bridge for hosted VPAID sessions
package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/thenexusengine/tne_vpaid/internal/session"
	"github.com/thenexusengine/tne_vpaid/internal/vpaid"
	"github.com/thenexusengine/tne_vpaid/pkg/logger"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HandshakeRequest is the host's version negotiation call
type HandshakeRequest struct {
	Version string `json:"version"`
}

// HandshakeResponse carries the protocol version the bridge speaks
type HandshakeResponse struct {
	Version string `json:"version"`
}

// CreateSessionRequest describes a session to open. Either CreativeID or
// AdParameters must be set.
type CreateSessionRequest struct {
	CreativeID   string  `json:"creative_id,omitempty"`
	AdParameters string  `json:"ad_parameters,omitempty"`
	Variant      string  `json:"variant,omitempty"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	ViewMode     string  `json:"view_mode,omitempty"`
	Bitrate      int     `json:"bitrate,omitempty"`
	Skippable    *bool   `json:"skippable,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
	ClickThrough string  `json:"click_through,omitempty"`
}

// ResizeRequest is the body of a resize call
type ResizeRequest struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	ViewMode string `json:"view_mode,omitempty"`
}

// VolumeRequest is the body of a volume call
type VolumeRequest struct {
	Volume *float64 `json:"volume"`
}

// TimeUpdateRequest reports the remote player's media clock
type TimeUpdateRequest struct {
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
}

// EventsResponse lists a session's journal
type EventsResponse struct {
	SessionID string          `json:"session_id"`
	Events    []EventResponse `json:"events"`
	Count     int             `json:"count"`
}

// EventResponse is one journaled dispatch
type EventResponse struct {
	Event string `json:"event"`
	Args  []any  `json:"args,omitempty"`
	At    string `json:"at"`
}

// operations maps bridge operation names onto adapter calls that take no
// arguments. Out-of-turn calls are absorbed by the adapter.
var operations = map[string]func(a *vpaid.Adapter){
	"start":    (*vpaid.Adapter).Start,
	"pause":    (*vpaid.Adapter).Pause,
	"resume":   (*vpaid.Adapter).Resume,
	"stop":     (*vpaid.Adapter).Stop,
	"skip":     (*vpaid.Adapter).Skip,
	"expand":   (*vpaid.Adapter).Expand,
	"collapse": (*vpaid.Adapter).Collapse,
	"click":    (*vpaid.Adapter).Click,
	"ended":    (*vpaid.Adapter).OnMediaEnded,
}

// SessionHandler maps host protocol calls onto hosted sessions
type SessionHandler struct {
	manager *session.Manager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(manager *session.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// Register adds the bridge routes to mux
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/handshake", h.handshake)
	mux.HandleFunc("POST /v1/sessions", h.create)
	mux.HandleFunc("GET /v1/sessions/{id}", h.get)
	mux.HandleFunc("GET /v1/sessions/{id}/events", h.events)
	mux.HandleFunc("POST /v1/sessions/{id}/resize", h.resize)
	mux.HandleFunc("POST /v1/sessions/{id}/volume", h.volume)
	mux.HandleFunc("POST /v1/sessions/{id}/timeupdate", h.timeUpdate)
	mux.HandleFunc("POST /v1/sessions/{id}/{op}", h.operation)
}

func (h *SessionHandler) handshake(w http.ResponseWriter, r *http.Request) {
	var req HandshakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}

	logger.FromContext(r.Context()).Debug().
		Str("host_version", req.Version).
		Str("version", vpaid.ProtocolVersion).
		Msg("Handshake")

	sendJSON(w, http.StatusOK, HandshakeResponse{Version: vpaid.ProtocolVersion})
}

// create opens a session and initializes its adapter
func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}

	if req.CreativeID == "" && req.AdParameters == "" {
		sendError(w, http.StatusBadRequest, "missing_creative", "creative_id or ad_parameters is required")
		return
	}
	if req.Width < 0 || req.Height < 0 {
		sendError(w, http.StatusBadRequest, "invalid_size", "width and height must not be negative")
		return
	}
	variant, ok := vpaid.ParseVariant(req.Variant)
	if !ok {
		sendError(w, http.StatusBadRequest, "invalid_variant", "Unknown variant: "+req.Variant)
		return
	}
	viewMode := vpaid.ViewModeNormal
	if req.ViewMode != "" {
		if viewMode, ok = vpaid.ParseViewMode(req.ViewMode); !ok {
			sendError(w, http.StatusBadRequest, "invalid_view_mode", "Unknown view mode: "+req.ViewMode)
			return
		}
	}

	s, err := h.manager.Create(r.Context(), session.Params{
		CreativeID:   req.CreativeID,
		AdParameters: req.AdParameters,
		Variant:      variant,
		Width:        req.Width,
		Height:       req.Height,
		ViewMode:     viewMode,
		Bitrate:      req.Bitrate,
		Skippable:    req.Skippable,
		Duration:     req.Duration,
		ClickThrough: req.ClickThrough,
	})
	switch {
	case err == nil:
	case errors.Is(err, vpaid.ErrCreativeParse):
		sendError(w, http.StatusBadRequest, "creative_parse_error", err.Error())
		return
	case errors.Is(err, session.ErrCreativeNotFound):
		sendError(w, http.StatusNotFound, "creative_not_found", "Creative not found")
		return
	default:
		logger.FromContext(r.Context()).Error().Err(err).Str("creative_id", req.CreativeID).Msg("Failed to create session")
		sendError(w, http.StatusInternalServerError, "session_error", "Failed to create session")
		return
	}

	sendJSON(w, http.StatusCreated, s.View())
}

func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	sendJSON(w, http.StatusOK, s.View())
}

func (h *SessionHandler) events(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entries, err := h.manager.Events(r.Context(), id)
	if errors.Is(err, session.ErrSessionNotFound) {
		sendError(w, http.StatusNotFound, "not_found", "Session not found")
		return
	}
	if err != nil {
		ctx := logger.WithSessionID(r.Context(), id)
		logger.FromContext(ctx).Error().Err(err).Msg("Failed to read journal")
		sendError(w, http.StatusInternalServerError, "journal_error", "Failed to read session events")
		return
	}

	events := make([]EventResponse, 0, len(entries))
	for _, e := range entries {
		events = append(events, EventResponse{
			Event: string(e.Event),
			Args:  e.Args,
			At:    e.At.UTC().Format(time.RFC3339Nano),
		})
	}
	sendJSON(w, http.StatusOK, EventsResponse{SessionID: id, Events: events, Count: len(events)})
}

// operation handles the argument-free host calls. Misuse still answers 200
// with the unchanged view.
func (h *SessionHandler) operation(w http.ResponseWriter, r *http.Request) {
	op, known := operations[r.PathValue("op")]
	if !known {
		sendError(w, http.StatusNotFound, "unknown_operation", "Unknown operation: "+r.PathValue("op"))
		return
	}
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	sendJSON(w, http.StatusOK, s.Do(op))
}

func (h *SessionHandler) resize(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req ResizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	if req.Width < 0 || req.Height < 0 {
		sendError(w, http.StatusBadRequest, "invalid_size", "width and height must not be negative")
		return
	}
	viewMode := vpaid.ViewModeNormal
	if req.ViewMode != "" {
		if viewMode, ok = vpaid.ParseViewMode(req.ViewMode); !ok {
			sendError(w, http.StatusBadRequest, "invalid_view_mode", "Unknown view mode: "+req.ViewMode)
			return
		}
	}

	sendJSON(w, http.StatusOK, s.Do(func(a *vpaid.Adapter) {
		a.Resize(req.Width, req.Height, viewMode)
	}))
}

func (h *SessionHandler) volume(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req VolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	if req.Volume == nil {
		sendError(w, http.StatusBadRequest, "missing_volume", "volume is required")
		return
	}

	sendJSON(w, http.StatusOK, s.Do(func(a *vpaid.Adapter) {
		a.SetVolume(*req.Volume)
	}))
}

func (h *SessionHandler) timeUpdate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req TimeUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	if req.CurrentTime < 0 {
		sendError(w, http.StatusBadRequest, "invalid_time", "current_time must not be negative")
		return
	}

	sendJSON(w, http.StatusOK, s.TimeUpdate(req.CurrentTime, req.Duration))
}

// lookup resolves the {id} path value, answering 404 itself when absent
func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.manager.Get(r.PathValue("id"))
	if err != nil {
		sendError(w, http.StatusNotFound, "not_found", "Session not found")
		return nil, false
	}
	return s, true
}

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// sendError sends a JSON error response
func sendError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	sendJSON(w, statusCode, ErrorResponse{Error: errorCode, Message: message})
}
