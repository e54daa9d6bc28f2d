package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/royletron/scimit/internal/repository"
	"github.com/royletron/scimit/internal/scim"
)

// Pagination defaults (RFC 7644 §3.4.2.4).
const (
	defaultStartIndex = 1
	defaultCount      = 100
)

// UserHandler handles the /Users SCIM resource endpoints.
type UserHandler struct {
	repo   *repository.Repository
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(repo *repository.Repository, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		repo:   repo,
		logger: logger,
	}
}

// Create handles POST /scim/v2/Users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeSCIMError(w, http.StatusBadRequest, "Invalid request body", scim.TypeInvalidSyntax)
		return
	}

	if userName, _ := doc["userName"].(string); userName == "" {
		writeSCIMError(w, http.StatusBadRequest, "userName is required", scim.TypeInvalidValue)
		return
	}

	user, err := h.repo.CreateUser(r.Context(), doc)
	if err != nil {
		h.handleUserError(w, err)
		return
	}

	h.logger.Info("user_created",
		"user_id", user.ID,
		"user_name", user.UserName,
	)

	w.Header().Set("Location", scim.BasePath+"/Users/"+user.ID)
	writeSCIM(w, http.StatusCreated, scim.FormatUser(user))
}

// Get handles GET /scim/v2/Users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.repo.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleUserError(w, err)
		return
	}
	writeSCIM(w, http.StatusOK, scim.FormatUser(user))
}

// List handles GET /scim/v2/Users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := scim.ParseFilter("userName", query.Get("filter"))
	startIndex, count := pagination(query.Get("startIndex"), query.Get("count"))

	users, total, err := h.repo.FindUsers(r.Context(), filter, startIndex, count)
	if err != nil {
		h.handleUserError(w, err)
		return
	}

	resources := make([]map[string]any, 0, len(users))
	for _, u := range users {
		resources = append(resources, scim.FormatUser(u))
	}
	writeSCIM(w, http.StatusOK, scim.ListResponse(resources, total, startIndex))
}

// Replace handles PUT /scim/v2/Users/{id}.
func (h *UserHandler) Replace(w http.ResponseWriter, r *http.Request) {
	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeSCIMError(w, http.StatusBadRequest, "Invalid request body", scim.TypeInvalidSyntax)
		return
	}

	if userName, _ := doc["userName"].(string); userName == "" {
		writeSCIMError(w, http.StatusBadRequest, "userName is required", scim.TypeInvalidValue)
		return
	}

	user, err := h.repo.ReplaceUser(r.Context(), chi.URLParam(r, "id"), doc)
	if err != nil {
		h.handleUserError(w, err)
		return
	}

	h.logger.Info("user_replaced",
		"user_id", user.ID,
		"version", user.Version,
	)

	writeSCIM(w, http.StatusOK, scim.FormatUser(user))
}

// Patch handles PATCH /scim/v2/Users/{id}.
func (h *UserHandler) Patch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePatch(w, r)
	if !ok {
		return
	}

	user, err := h.repo.PatchUser(r.Context(), chi.URLParam(r, "id"), req.Operations)
	if err != nil {
		h.handleUserError(w, err)
		return
	}

	h.logger.Info("user_patched",
		"user_id", user.ID,
		"operations", len(req.Operations),
		"version", user.Version,
	)

	writeSCIM(w, http.StatusOK, scim.FormatUser(user))
}

// Delete handles DELETE /scim/v2/Users/{id}.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	found, err := h.repo.DeleteUser(r.Context(), id)
	if err != nil {
		h.handleUserError(w, err)
		return
	}
	if !found {
		writeSCIMError(w, http.StatusNotFound, "User not found", "")
		return
	}

	h.logger.Info("user_deleted", "user_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleUserError maps store errors to SCIM responses.
func (h *UserHandler) handleUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		writeSCIMError(w, http.StatusNotFound, "User not found", "")
	case errors.Is(err, repository.ErrUserNameTaken):
		writeSCIMError(w, http.StatusConflict, "userName already exists", scim.TypeUniqueness)
	case errors.Is(err, scim.ErrPathNotFound):
		writeSCIMError(w, http.StatusBadRequest, "Patch path does not exist", scim.TypeInvalidPath)
	default:
		h.logger.Error("internal_error", "error", err)
		writeSCIMError(w, http.StatusInternalServerError, "An internal error occurred", "")
	}
}

// decodePatch parses a PATCH body, writing the SCIM error itself when the
// body is malformed or Operations is missing. An empty Operations array is
// accepted: the batch applies nothing but still bumps the version.
func decodePatch(w http.ResponseWriter, r *http.Request) (*scim.PatchRequest, bool) {
	var req scim.PatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeSCIMError(w, http.StatusBadRequest, "Invalid request body", scim.TypeInvalidSyntax)
		return nil, false
	}
	if req.Operations == nil {
		writeSCIMError(w, http.StatusBadRequest, "Operations must be an array", scim.TypeInvalidSyntax)
		return nil, false
	}
	return &req, true
}

// pagination parses startIndex and count, falling back to the defaults on
// anything unparseable or out of range.
func pagination(startIndexRaw, countRaw string) (int, int) {
	startIndex := defaultStartIndex
	if v, err := strconv.Atoi(startIndexRaw); err == nil && v >= 1 {
		startIndex = v
	}
	count := defaultCount
	if v, err := strconv.Atoi(countRaw); err == nil && v >= 0 {
		count = v
	}
	return startIndex, count
}
