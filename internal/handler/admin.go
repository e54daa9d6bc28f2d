package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/royletron/scimit/internal/repository"
)

// adminDumpLimit caps the raw user/group dumps; the admin API is an
// inspection surface, not a paginated one.
const adminDumpLimit = 1000

// AdminHandler serves the operator API: reset, token management, and raw
// resource dumps. These endpoints are unauthenticated and sit outside the
// audit capture.
type AdminHandler struct {
	repo   *repository.Repository
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(repo *repository.Repository, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		repo:   repo,
		logger: logger,
	}
}

// Reset handles POST /api/admin/reset. Clears users, groups (memberships
// cascade), and the audit log. Bearer tokens survive a reset.
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	for _, clear := range []func() error{
		func() error { return h.repo.DeleteAllUsers(ctx) },
		func() error { return h.repo.DeleteAllGroups(ctx) },
		func() error { return h.repo.DeleteAllAuditRecords(ctx) },
	} {
		if err := clear(); err != nil {
			h.writeError(w, err)
			return
		}
	}

	h.logger.Info("data_reset")
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "All data has been reset successfully",
	})
}

// GetToken handles GET /api/admin/token.
func (h *AdminHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.repo.ActiveToken(r.Context())
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveToken) {
			writeJSON(w, http.StatusOK, map[string]any{"token": nil})
			return
		}
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token.Token})
}

// GenerateToken handles POST /api/admin/token/generate. Rotation: every
// existing token is deactivated and a new plaintext token returned.
func (h *AdminHandler) GenerateToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Description string `json:"description"`
	}
	// An empty or absent body means the default description.
	_ = json.NewDecoder(r.Body).Decode(&body)

	token, err := h.repo.RotateToken(r.Context(), body.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info("token_rotated", "description", token.Description)
	writeJSON(w, http.StatusOK, map[string]string{
		"token":   token.Token,
		"message": "New token generated successfully",
	})
}

// GetUsers handles GET /api/admin/users: every stored user with its parsed
// raw document, bypassing the SCIM envelope.
func (h *AdminHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, _, err := h.repo.FindUsers(r.Context(), nil, 1, adminDumpLimit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		doc, _ := u.Document()
		out = append(out, map[string]any{
			"id":           u.ID,
			"userName":     u.UserName,
			"emailPrimary": u.EmailPrimary,
			"active":       u.Active,
			"externalId":   u.ExternalID,
			"createdAt":    u.CreatedAt,
			"updatedAt":    u.UpdatedAt,
			"rawData":      doc,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetGroups handles GET /api/admin/groups: every stored group with its
// memberships and parsed raw document.
func (h *AdminHandler) GetGroups(w http.ResponseWriter, r *http.Request) {
	groups, _, err := h.repo.FindGroups(r.Context(), nil, 1, adminDumpLimit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		members, err := h.repo.GroupMembers(r.Context(), g.ID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		memberOut := make([]map[string]any, 0, len(members))
		for _, m := range members {
			memberOut = append(memberOut, map[string]any{
				"memberId":    m.MemberID,
				"memberType":  m.MemberType,
				"displayName": m.DisplayName,
			})
		}

		doc, _ := g.Document()
		out = append(out, map[string]any{
			"id":          g.ID,
			"displayName": g.DisplayName,
			"externalId":  g.ExternalID,
			"createdAt":   g.CreatedAt,
			"updatedAt":   g.UpdatedAt,
			"members":     memberOut,
			"rawData":     doc,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) writeError(w http.ResponseWriter, err error) {
	h.logger.Error("admin_error", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "An internal error occurred",
	})
}
