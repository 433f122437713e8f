// Package handler exposes the HTTP API: request submission and reads, the
// action endpoint, the audit query and the websocket subscription endpoint.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/scholarfin/be-fund-requests/internal/apperr"
	"github.com/scholarfin/be-fund-requests/internal/channel"
	"github.com/scholarfin/be-fund-requests/internal/logger"
	"github.com/scholarfin/be-fund-requests/internal/repository"
	"github.com/scholarfin/be-fund-requests/internal/service"
)

// HTTPHandler routes API requests to the services.
type HTTPHandler struct {
	requests  *service.RequestService
	engine    *service.TransitionEngine
	directory service.RoleDirectory
	hub       *channel.Hub
	log       *logger.Logger
}

// NewHTTPHandler creates an HTTPHandler.
func NewHTTPHandler(
	requests *service.RequestService,
	engine *service.TransitionEngine,
	directory service.RoleDirectory,
	hub *channel.Hub,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		requests:  requests,
		engine:    engine,
		directory: directory,
		hub:       hub,
		log:       log,
	}
}

// Router assembles the middleware chain and routes.
func (h *HTTPHandler) Router(jwtSecret string, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(RequestLogger(h.log))
	r.Use(Recovery(h.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-User-ID"},
	}))

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(jwtSecret))

		// The websocket upgrade cannot outlive a request timeout.
		r.Get("/api/v1/ws", h.Subscribe)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(30 * time.Second))
			r.Post("/api/v1/requests", h.CreateRequest)
			r.Get("/api/v1/requests", h.ListRequests)
			r.Get("/api/v1/requests/{id}", h.GetRequest)
			r.Post("/api/v1/requests/{id}/action", h.Action)
			r.Get("/api/v1/requests/{id}/history", h.ListHistory)
		})
	})

	return r
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// CreateRequest submits a new financial request owned by the caller.
func (h *HTTPHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var input service.CreateRequestInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, apperr.InvalidInput("body", "invalid JSON"))
		return
	}
	input.OwnerID = userID(r)

	req, err := h.requests.Create(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// GetRequest returns one request.
func (h *HTTPHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.requests.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ListRequests returns requests filtered by owner and/or status.
func (h *HTTPHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	filter := repository.ListFilter{}

	if owner := r.URL.Query().Get("owner_id"); owner != "" {
		filter.OwnerID = &owner
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := repository.Status(raw)
		if !status.Valid() {
			writeError(w, apperr.InvalidInput("status", "unknown status"))
			return
		}
		filter.Status = &status
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	requests, err := h.requests.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests, "page": page})
}

// actionRequest is the body of the action endpoint.
type actionRequest struct {
	Intent          repository.Intent `json:"intent"`
	ExpectedVersion int64             `json:"expected_version"`
	Remarks         *string           `json:"remarks,omitempty"`
}

// Action applies one approver intent to a request. The role pre-check here is
// the API-boundary half of the defence; the engine repeats it.
func (h *HTTPHandler) Action(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")

	var body actionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.InvalidInput("body", "invalid JSON"))
		return
	}

	actor, err := resolveActor(r, h.directory)
	if err != nil {
		writeError(w, apperr.Wrap(err, apperr.CodeInternal, "failed to resolve actor roles"))
		return
	}

	req, err := h.requests.Get(r.Context(), requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	if role, ok := service.RequiredRole(req.Status); ok && !actor.HasRole(role) {
		writeError(w, apperr.New(apperr.CodeForbidden, "actor does not hold the role for the current stage"))
		return
	}

	result, err := h.engine.AttemptTransition(r.Context(), requestID, actor, body.Intent, body.ExpectedVersion, body.Remarks)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListHistory returns the request's audit ledger in append order.
func (h *HTTPHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.requests.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// ── response helpers ──────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)

	var body errorBody
	body.Error.Kind = string(code)
	body.Error.Message = err.Error()

	writeJSON(w, httpStatus(code), body)
}

func httpStatus(code apperr.Code) int {
	switch code {
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeAlreadyFinal, apperr.CodeStaleState:
		return http.StatusConflict
	case apperr.CodeInvalidRemarks, apperr.CodeInvalidInput:
		return http.StatusUnprocessableEntity
	case apperr.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
