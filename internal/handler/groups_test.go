package handler_test

import (
	"net/http"
	"testing"
)

func createUserID(t *testing.T, router http.Handler, userName string) string {
	t.Helper()

	w := do(t, router, http.MethodPost, "/scim/v2/Users", `{"userName":"`+userName+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create user %s: status %d", userName, w.Code)
	}
	return decode(t, w)["id"].(string)
}

func memberValues(t *testing.T, body map[string]any) []string {
	t.Helper()

	raw, ok := body["members"].([]any)
	if !ok {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, m := range raw {
		values = append(values, m.(map[string]any)["value"].(string))
	}
	return values
}

func TestGroupsCreate(t *testing.T) {
	t.Parallel()

	router, _, _ := newServer(t)
	userID := createUserID(t, router, "alice")

	w := do(t, router, http.MethodPost, "/scim/v2/Groups", `{
		"schemas": ["urn:ietf:params:scim:schemas:core:2.0:Group"],
		"displayName": "Engineering",
		"members": [{"value": "`+userID+`", "display": "alice"}]
	}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	body := decode(t, w)
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("id missing in envelope")
	}
	if loc := w.Header().Get("Location"); loc != "/scim/v2/Groups/"+id {
		t.Errorf("Location = %q", loc)
	}

	members := body["members"].([]any)
	if len(members) != 1 {
		t.Fatalf("len(members) = %d, want 1", len(members))
	}
	member := members[0].(map[string]any)
	if member["value"] != userID {
		t.Errorf("member value = %v", member["value"])
	}
	if member["$ref"] != "/scim/v2/Users/"+userID {
		t.Errorf("member $ref = %v", member["$ref"])
	}
}

func TestGroupsCreate_Invalid(t *testing.T) {
	t.Parallel()

	router, _, _ := newServer(t)

	tests := []struct {
		name         string
		body         string
		wantScimType string
	}{
		{"missing displayName", `{"schemas":[]}`, "invalidValue"},
		{"member without value", `{"displayName":"Eng","members":[{"display":"ghost"}]}`, "invalidValue"},
		{"malformed json", `{nope`, "invalidSyntax"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/scim/v2/Groups", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if body := decode(t, w); body["scimType"] != tt.wantScimType {
				t.Errorf("scimType = %v, want %s", body["scimType"], tt.wantScimType)
			}
		})
	}
}

func TestGroupsGetAndList(t *testing.T) {
	t.Parallel()

	router, _, _ := newServer(t)

	for _, name := range []string{"Engineering", "Sales"} {
		if w := do(t, router, http.MethodPost, "/scim/v2/Groups", `{"displayName":"`+name+`"}`); w.Code != http.StatusCreated {
			t.Fatalf("create %s: %d", name, w.Code)
		}
	}

	w := do(t, router, http.MethodGet, "/scim/v2/Groups", "")
	if body := decode(t, w); body["totalResults"] != float64(2) {
		t.Errorf("totalResults = %v", body["totalResults"])
	}

	w = do(t, router, http.MethodGet, `/scim/v2/Groups?filter=displayName+co+%22Eng%22`, "")
	body := decode(t, w)
	if body["totalResults"] != float64(1) {
		t.Fatalf("filtered totalResults = %v", body["totalResults"])
	}
	resource := body["Resources"].([]any)[0].(map[string]any)
	if resource["displayName"] != "Engineering" {
		t.Errorf("displayName = %v", resource["displayName"])
	}

	// Substring matching is case-sensitive.
	w = do(t, router, http.MethodGet, `/scim/v2/Groups?filter=displayName+co+%22eng%22`, "")
	if body := decode(t, w); body["totalResults"] != float64(0) {
		t.Errorf("lowercase co totalResults = %v, want 0", body["totalResults"])
	}

	if w := do(t, router, http.MethodGet, "/scim/v2/Groups/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing group status = %d, want 404", w.Code)
	}
}

func TestGroupsReplace(t *testing.T) {
	t.Parallel()

	router, _, _ := newServer(t)
	aliceID := createUserID(t, router, "alice")
	bobID := createUserID(t, router, "bob")

	created := decode(t, do(t, router, http.MethodPost, "/scim/v2/Groups", `{
		"displayName": "Engineering",
		"members": [{"value": "`+aliceID+`"}]
	}`))
	id := created["id"].(string)

	// A members array in the replacement document swaps the membership.
	w := do(t, router, http.MethodPut, "/scim/v2/Groups/"+id, `{
		"displayName": "Platform",
		"members": [{"value": "`+bobID+`"}]
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["displayName"] != "Platform" {
		t.Errorf("displayName = %v", body["displayName"])
	}
	if got := memberValues(t, body); len(got) != 1 || got[0] != bobID {
		t.Errorf("members = %v, want [%s]", got, bobID)
	}

	// Omitting members leaves the membership alone.
	w = do(t, router, http.MethodPut, "/scim/v2/Groups/"+id, `{"displayName": "Platform"}`)
	if got := memberValues(t, decode(t, w)); len(got) != 1 || got[0] != bobID {
		t.Errorf("members after member-less replace = %v, want [%s]", got, bobID)
	}

	if w := do(t, router, http.MethodPut, "/scim/v2/Groups/missing", `{"displayName":"x"}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", w.Code)
	}
}

func TestGroupsPatch_Members(t *testing.T) {
	t.Parallel()

	router, _, _ := newServer(t)
	aliceID := createUserID(t, router, "alice")
	bobID := createUserID(t, router, "bob")

	created := decode(t, do(t, router, http.MethodPost, "/scim/v2/Groups", `{"displayName":"Engineering"}`))
	id := created["id"].(string)

	w := do(t, router, http.MethodPatch, "/scim/v2/Groups/"+id, `{
		"schemas": ["urn:ietf:params:scim:api:messages:2.0:PatchOp"],
		"Operations": [
			{"op": "add", "path": "members", "value": [{"value": "`+aliceID+`"}, {"value": "`+bobID+`"}]},
			{"op": "remove", "path": "members[value eq \"`+aliceID+`\"]"}
		]
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if got := memberValues(t, body); len(got) != 1 || got[0] != bobID {
		t.Errorf("members = %v, want [%s]", got, bobID)
	}
	if body["meta"].(map[string]any)["version"] != `W/"2"` {
		t.Errorf("version = %v", body["meta"].(map[string]any)["version"])
	}
}

func TestGroupsPatch_DisplayName(t *testing.T) {
	t.Parallel()

	router, _, _ := newServer(t)

	created := decode(t, do(t, router, http.MethodPost, "/scim/v2/Groups", `{"displayName":"Engineering"}`))
	id := created["id"].(string)

	w := do(t, router, http.MethodPatch, "/scim/v2/Groups/"+id, `{
		"Operations": [{"op": "replace", "path": "displayName", "value": "Platform"}]
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["displayName"] != "Platform" {
		t.Errorf("displayName = %v", body["displayName"])
	}
}

func TestGroupsDelete(t *testing.T) {
	t.Parallel()

	router, _, _ := newServer(t)

	created := decode(t, do(t, router, http.MethodPost, "/scim/v2/Groups", `{"displayName":"Engineering"}`))
	id := created["id"].(string)

	if w := do(t, router, http.MethodDelete, "/scim/v2/Groups/"+id, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/scim/v2/Groups/"+id, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}
