package handler

import (
	"net/http"

	"github.com/royletron/scimit/internal/scim"
)

// DiscoveryHandler serves the static SCIM discovery descriptors
// (RFC 7644 §4). The documents never change at runtime.
type DiscoveryHandler struct{}

// NewDiscoveryHandler creates a new DiscoveryHandler.
func NewDiscoveryHandler() *DiscoveryHandler {
	return &DiscoveryHandler{}
}

// ServiceProviderConfig handles GET /scim/v2/ServiceProviderConfig.
func (h *DiscoveryHandler) ServiceProviderConfig(w http.ResponseWriter, r *http.Request) {
	writeSCIM(w, http.StatusOK, map[string]any{
		"schemas":          []string{scim.SchemaServiceProviderConfig},
		"documentationUri": "https://tools.ietf.org/html/rfc7644",
		"patch":            map[string]any{"supported": true},
		"bulk": map[string]any{
			"supported":      false,
			"maxOperations":  0,
			"maxPayloadSize": 0,
		},
		"filter": map[string]any{
			"supported":  true,
			"maxResults": 1000,
		},
		"changePassword": map[string]any{"supported": false},
		"sort":           map[string]any{"supported": false},
		"etag":           map[string]any{"supported": true},
		"authenticationSchemes": []map[string]any{
			{
				"type":        "oauthbearertoken",
				"name":        "OAuth Bearer Token",
				"description": "Authentication scheme using the OAuth Bearer Token",
				"specUri":     "https://tools.ietf.org/html/rfc6750",
				"primary":     true,
			},
		},
	})
}

// Schemas handles GET /scim/v2/Schemas.
func (h *DiscoveryHandler) Schemas(w http.ResponseWriter, r *http.Request) {
	writeSCIM(w, http.StatusOK, map[string]any{
		"schemas":      []string{scim.SchemaListResponse},
		"totalResults": 2,
		"Resources": []map[string]any{
			{
				"id":          scim.SchemaUser,
				"name":        "User",
				"description": "SCIM User Schema",
			},
			{
				"id":          scim.SchemaGroup,
				"name":        "Group",
				"description": "SCIM Group Schema",
			},
		},
	})
}

// ResourceTypes handles GET /scim/v2/ResourceTypes.
func (h *DiscoveryHandler) ResourceTypes(w http.ResponseWriter, r *http.Request) {
	writeSCIM(w, http.StatusOK, map[string]any{
		"schemas":      []string{scim.SchemaListResponse},
		"totalResults": 2,
		"Resources": []map[string]any{
			{
				"schemas":     []string{scim.SchemaResourceType},
				"id":          "User",
				"name":        "User",
				"endpoint":    "/Users",
				"description": "User Account",
				"schema":      scim.SchemaUser,
			},
			{
				"schemas":     []string{scim.SchemaResourceType},
				"id":          "Group",
				"name":        "Group",
				"endpoint":    "/Groups",
				"description": "Group",
				"schema":      scim.SchemaGroup,
			},
		},
	})
}
