package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/royletron/scimit/internal/model"
	"github.com/royletron/scimit/internal/repository"
	"github.com/royletron/scimit/internal/scim"
)

// GroupHandler handles the /Groups SCIM resource endpoints.
type GroupHandler struct {
	repo   *repository.Repository
	logger *slog.Logger
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(repo *repository.Repository, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{
		repo:   repo,
		logger: logger,
	}
}

// Create handles POST /scim/v2/Groups.
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeSCIMError(w, http.StatusBadRequest, "Invalid request body", scim.TypeInvalidSyntax)
		return
	}

	if displayName, _ := doc["displayName"].(string); displayName == "" {
		writeSCIMError(w, http.StatusBadRequest, "displayName is required", scim.TypeInvalidValue)
		return
	}

	group, err := h.repo.CreateGroup(r.Context(), doc)
	if err != nil {
		h.handleGroupError(w, err)
		return
	}

	h.logger.Info("group_created",
		"group_id", group.ID,
		"display_name", group.DisplayName,
	)

	w.Header().Set("Location", scim.BasePath+"/Groups/"+group.ID)
	h.respond(w, r, http.StatusCreated, group)
}

// Get handles GET /scim/v2/Groups/{id}.
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	group, err := h.repo.GetGroup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleGroupError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, group)
}

// List handles GET /scim/v2/Groups.
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := scim.ParseFilter("displayName", query.Get("filter"))
	startIndex, count := pagination(query.Get("startIndex"), query.Get("count"))

	groups, total, err := h.repo.FindGroups(r.Context(), filter, startIndex, count)
	if err != nil {
		h.handleGroupError(w, err)
		return
	}

	resources := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		members, err := h.repo.GroupMembers(r.Context(), g.ID)
		if err != nil {
			h.handleGroupError(w, err)
			return
		}
		resources = append(resources, scim.FormatGroup(g, members))
	}
	writeSCIM(w, http.StatusOK, scim.ListResponse(resources, total, startIndex))
}

// Replace handles PUT /scim/v2/Groups/{id}.
func (h *GroupHandler) Replace(w http.ResponseWriter, r *http.Request) {
	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeSCIMError(w, http.StatusBadRequest, "Invalid request body", scim.TypeInvalidSyntax)
		return
	}

	if displayName, _ := doc["displayName"].(string); displayName == "" {
		writeSCIMError(w, http.StatusBadRequest, "displayName is required", scim.TypeInvalidValue)
		return
	}

	group, err := h.repo.ReplaceGroup(r.Context(), chi.URLParam(r, "id"), doc)
	if err != nil {
		h.handleGroupError(w, err)
		return
	}

	h.logger.Info("group_replaced",
		"group_id", group.ID,
		"version", group.Version,
	)

	h.respond(w, r, http.StatusOK, group)
}

// Patch handles PATCH /scim/v2/Groups/{id}.
func (h *GroupHandler) Patch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePatch(w, r)
	if !ok {
		return
	}

	group, err := h.repo.PatchGroup(r.Context(), chi.URLParam(r, "id"), req.Operations)
	if err != nil {
		h.handleGroupError(w, err)
		return
	}

	h.logger.Info("group_patched",
		"group_id", group.ID,
		"operations", len(req.Operations),
		"version", group.Version,
	)

	h.respond(w, r, http.StatusOK, group)
}

// Delete handles DELETE /scim/v2/Groups/{id}.
func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	found, err := h.repo.DeleteGroup(r.Context(), id)
	if err != nil {
		h.handleGroupError(w, err)
		return
	}
	if !found {
		writeSCIMError(w, http.StatusNotFound, "Group not found", "")
		return
	}

	h.logger.Info("group_deleted", "group_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// respond resolves the group's memberships and writes the full envelope.
func (h *GroupHandler) respond(w http.ResponseWriter, r *http.Request, status int, group *model.Group) {
	members, err := h.repo.GroupMembers(r.Context(), group.ID)
	if err != nil {
		h.handleGroupError(w, err)
		return
	}
	writeSCIM(w, status, scim.FormatGroup(group, members))
}

// handleGroupError maps store errors to SCIM responses.
func (h *GroupHandler) handleGroupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrGroupNotFound):
		writeSCIMError(w, http.StatusNotFound, "Group not found", "")
	case errors.Is(err, repository.ErrInvalidMember):
		writeSCIMError(w, http.StatusBadRequest, "Group member requires a value", scim.TypeInvalidValue)
	case errors.Is(err, scim.ErrPathNotFound):
		writeSCIMError(w, http.StatusBadRequest, "Patch path does not exist", scim.TypeInvalidPath)
	default:
		h.logger.Error("internal_error", "error", err)
		writeSCIMError(w, http.StatusInternalServerError, "An internal error occurred", "")
	}
}
