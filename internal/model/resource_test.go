package model

import "testing"

func TestDerivePrimaryEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  map[string]any
		want string
	}{
		{
			name: "primary email wins",
			doc: map[string]any{
				"emails": []any{
					map[string]any{"value": "work@example.com", "primary": false},
					map[string]any{"value": "home@example.com", "primary": true},
				},
			},
			want: "home@example.com",
		},
		{
			name: "no primary falls back to userName",
			doc: map[string]any{
				"emails": []any{
					map[string]any{"value": "work@example.com"},
				},
			},
			want: "john",
		},
		{
			name: "no emails falls back to userName",
			doc:  map[string]any{"userName": "john"},
			want: "john",
		},
		{
			name: "primary with empty value falls back",
			doc: map[string]any{
				"emails": []any{
					map[string]any{"primary": true},
				},
			},
			want: "john",
		},
		{
			name: "emails not an array falls back",
			doc:  map[string]any{"emails": "work@example.com"},
			want: "john",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := DerivePrimaryEmail(tt.doc, "john"); got != tt.want {
				t.Errorf("DerivePrimaryEmail = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUser_Document(t *testing.T) {
	t.Parallel()

	u := &User{RawData: `{"userName":"john","active":true}`}
	doc, err := u.Document()
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc["userName"] != "john" {
		t.Errorf("userName = %v, want john", doc["userName"])
	}

	bad := &User{RawData: "{broken"}
	if _, err := bad.Document(); err == nil {
		t.Error("Document on malformed raw data should fail")
	}
}

func TestAuditRecord_Event(t *testing.T) {
	t.Parallel()

	rec := &AuditRecord{
		ID:              7,
		Method:          "POST",
		Path:            "/scim/v2/Users",
		StatusCode:      201,
		Headers:         `{"content-type":"application/scim+json"}`,
		QueryParams:     `{}`,
		RequestBody:     `{"userName":"john"}`,
		ResponseBody:    "plain text, not json",
		ResponseHeaders: `{"content-type":"application/scim+json"}`,
		DurationMs:      12,
	}

	ev := rec.Event()
	if ev.ID != 7 || ev.StatusCode != 201 {
		t.Errorf("scalar fields not carried: %+v", ev)
	}
	if ev.Headers["content-type"] != "application/scim+json" {
		t.Errorf("Headers = %v", ev.Headers)
	}
	body, ok := ev.RequestBody.(map[string]any)
	if !ok || body["userName"] != "john" {
		t.Errorf("RequestBody = %v", ev.RequestBody)
	}
	// Unparseable bodies come back as the raw string, not an error.
	if ev.ResponseBody != "plain text, not json" {
		t.Errorf("ResponseBody = %v", ev.ResponseBody)
	}
}

func TestAuditRecord_Event_EmptyBodies(t *testing.T) {
	t.Parallel()

	rec := &AuditRecord{Headers: "{}", QueryParams: "{}", ResponseHeaders: "{}"}
	ev := rec.Event()
	if ev.RequestBody != nil {
		t.Errorf("RequestBody = %v, want nil", ev.RequestBody)
	}
	if ev.ResponseBody != nil {
		t.Errorf("ResponseBody = %v, want nil", ev.ResponseBody)
	}
}
