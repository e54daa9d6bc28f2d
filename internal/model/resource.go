// Package model defines domain entities for the application.
package model

import (
	"encoding/json"
	"time"
)

// User represents a provisioned SCIM User.
// RawData holds the attribute tree exactly as the IDP submitted it; the
// indexed columns (UserName, EmailPrimary, Active) are derived from it.
type User struct {
	ID           string    `json:"id"`
	ExternalID   string    `json:"externalId,omitempty"`
	UserName     string    `json:"userName"`
	EmailPrimary string    `json:"emailPrimary,omitempty"`
	Active       bool      `json:"active"`
	RawData      string    `json:"-"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Document parses the stored attribute tree.
func (u *User) Document() (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(u.RawData), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Group represents a provisioned SCIM Group.
type Group struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"externalId,omitempty"`
	DisplayName string    `json:"displayName"`
	RawData     string    `json:"-"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Document parses the stored attribute tree.
func (g *Group) Document() (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(g.RawData), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GroupMember is one (group, member) relation. At most one row exists per
// pair; re-adding an existing pair is a no-op.
type GroupMember struct {
	GroupID     string `json:"groupId"`
	MemberID    string `json:"memberId"`
	MemberType  string `json:"memberType"`
	DisplayName string `json:"displayName,omitempty"`
}

// DerivePrimaryEmail extracts the email marked primary from a User document,
// falling back to the userName when none is marked. Display/search
// convenience only, never protocol identity.
func DerivePrimaryEmail(doc map[string]any, userName string) string {
	emails, ok := doc["emails"].([]any)
	if !ok {
		return userName
	}
	for _, e := range emails {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if primary, _ := entry["primary"].(bool); !primary {
			continue
		}
		if value, ok := entry["value"].(string); ok && value != "" {
			return value
		}
	}
	return userName
}
