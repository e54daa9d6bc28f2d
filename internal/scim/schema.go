// Package scim implements the SCIM 2.0 protocol pieces: the filter grammar,
// the PATCH operation engine, and the resource/error envelopes defined by
// RFC 7643/7644.
package scim

import (
	"strconv"
	"time"

	"github.com/royletron/scimit/internal/model"
)

// Schema URNs.
const (
	SchemaUser                  = "urn:ietf:params:scim:schemas:core:2.0:User"
	SchemaGroup                 = "urn:ietf:params:scim:schemas:core:2.0:Group"
	SchemaServiceProviderConfig = "urn:ietf:params:scim:schemas:core:2.0:ServiceProviderConfig"
	SchemaResourceType          = "urn:ietf:params:scim:schemas:core:2.0:ResourceType"
	SchemaListResponse          = "urn:ietf:params:scim:api:messages:2.0:ListResponse"
	SchemaPatchOp               = "urn:ietf:params:scim:api:messages:2.0:PatchOp"
	SchemaError                 = "urn:ietf:params:scim:api:messages:2.0:Error"
)

// scimType values used in error envelopes (RFC 7644 §3.12).
const (
	TypeUniqueness    = "uniqueness"
	TypeInvalidValue  = "invalidValue"
	TypeInvalidSyntax = "invalidSyntax"
	TypeInvalidPath   = "invalidPath"
)

// BasePath is the mount point of the SCIM surface, used for meta.location
// and member $ref values.
const BasePath = "/scim/v2"

// FormatUser builds the response envelope for a User: the server defaults
// overlaid with the raw submitted document. Raw fields win on conflict
// except the server-managed schemas, id, and meta.
func FormatUser(u *model.User) map[string]any {
	out := map[string]any{
		"userName": u.UserName,
		"active":   u.Active,
	}
	if u.ExternalID != "" {
		out["externalId"] = u.ExternalID
	}
	if doc, err := u.Document(); err == nil {
		for k, v := range doc {
			out[k] = v
		}
	}
	out["schemas"] = []string{SchemaUser}
	out["id"] = u.ID
	out["meta"] = meta("User", BasePath+"/Users/"+u.ID, u.CreatedAt, u.UpdatedAt, u.Version)
	return out
}

// FormatGroup builds the response envelope for a Group, embedding its
// memberships as SCIM member references.
func FormatGroup(g *model.Group, members []*model.GroupMember) map[string]any {
	out := map[string]any{
		"displayName": g.DisplayName,
	}
	if g.ExternalID != "" {
		out["externalId"] = g.ExternalID
	}
	if doc, err := g.Document(); err == nil {
		for k, v := range doc {
			out[k] = v
		}
	}
	if len(members) > 0 {
		refs := make([]map[string]any, 0, len(members))
		for _, m := range members {
			ref := map[string]any{
				"value": m.MemberID,
				"$ref":  BasePath + "/Users/" + m.MemberID,
				"type":  m.MemberType,
			}
			if m.DisplayName != "" {
				ref["display"] = m.DisplayName
			}
			refs = append(refs, ref)
		}
		out["members"] = refs
	}
	out["schemas"] = []string{SchemaGroup}
	out["id"] = g.ID
	out["meta"] = meta("Group", BasePath+"/Groups/"+g.ID, g.CreatedAt, g.UpdatedAt, g.Version)
	return out
}

func meta(resourceType, location string, created, modified time.Time, version int64) map[string]any {
	return map[string]any{
		"resourceType": resourceType,
		"created":      created.UTC().Format(time.RFC3339),
		"lastModified": modified.UTC().Format(time.RFC3339),
		"version":      WeakETag(version),
		"location":     location,
	}
}

// WeakETag renders a metadata version as the weak ETag SCIM uses,
// e.g. `W/"3"`.
func WeakETag(version int64) string {
	return `W/"` + strconv.FormatInt(version, 10) + `"`
}

// ListResponse wraps a page of resources in the SCIM list envelope.
// totalResults counts everything matching the filter, ignoring pagination;
// itemsPerPage is the size of this page.
func ListResponse(resources []map[string]any, totalResults, startIndex int) map[string]any {
	if resources == nil {
		resources = []map[string]any{}
	}
	return map[string]any{
		"schemas":      []string{SchemaListResponse},
		"totalResults": totalResults,
		"startIndex":   startIndex,
		"itemsPerPage": len(resources),
		"Resources":    resources,
	}
}

// Error is the SCIM error envelope. Status is a string per RFC 7644.
type Error struct {
	Schemas  []string `json:"schemas"`
	Status   string   `json:"status"`
	Detail   string   `json:"detail"`
	ScimType string   `json:"scimType,omitempty"`
}

// NewError builds an error envelope for an HTTP status code.
func NewError(status int, detail, scimType string) *Error {
	return &Error{
		Schemas:  []string{SchemaError},
		Status:   strconv.Itoa(status),
		Detail:   detail,
		ScimType: scimType,
	}
}
