package model

import "time"

// BearerToken is a credential the SCIM surface accepts. Exactly one token is
// active at a time; rotation deactivates the rest. The token value is stored
// in plaintext so the operator can read it back out of the admin API and
// paste it into an IDP configuration screen.
type BearerToken struct {
	ID          int64      `json:"id"`
	Token       string     `json:"token"`
	Description string     `json:"description"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}
