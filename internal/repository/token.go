package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/royletron/scimit/internal/model"
)

// Common errors for bearer token operations.
var (
	ErrTokenInvalid  = errors.New("invalid or inactive bearer token")
	ErrNoActiveToken = errors.New("no active bearer token")
)

const tokenColumns = "id, token, description, active, created_at, last_used_at"

// EnsureActiveToken generates and stores a bearer token if none is active,
// returning the active token and whether it was created by this call. Runs
// once at boot so a fresh install has a credential to hand to the IDP.
func (r *Repository) EnsureActiveToken(ctx context.Context) (*model.BearerToken, bool, error) {
	existing, err := r.ActiveToken(ctx)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNoActiveToken) {
		return nil, false, err
	}

	token, err := r.insertToken(ctx, "Initial Token")
	if err != nil {
		return nil, false, err
	}
	return token, true, nil
}

// ActiveToken returns the single currently active token.
func (r *Repository) ActiveToken(ctx context.Context) (*model.BearerToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM bearer_tokens WHERE active = 1 LIMIT 1`

	t, err := scanToken(r.readDB.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoActiveToken
		}
		return nil, fmt.Errorf("failed to get active token: %w", err)
	}
	return t, nil
}

// RotateToken deactivates every existing token and activates a freshly
// generated one. The returned token carries the plaintext value for the
// operator to copy.
func (r *Repository) RotateToken(ctx context.Context, description string) (*model.BearerToken, error) {
	if description == "" {
		description = "Generated Token"
	}
	if _, err := r.writeDB.ExecContext(ctx, `UPDATE bearer_tokens SET active = 0`); err != nil {
		return nil, fmt.Errorf("failed to deactivate tokens: %w", err)
	}
	return r.insertToken(ctx, description)
}

// ValidateToken resolves a presented bearer token value against the active
// credential. Unknown and deactivated tokens both return ErrTokenInvalid.
func (r *Repository) ValidateToken(ctx context.Context, value string) (*model.BearerToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM bearer_tokens WHERE token = ? AND active = 1`

	t, err := scanToken(r.readDB.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}
	return t, nil
}

// TouchToken records when a token was last presented.
func (r *Repository) TouchToken(ctx context.Context, id int64) error {
	query := `UPDATE bearer_tokens SET last_used_at = ? WHERE id = ?`
	if _, err := r.writeDB.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	return nil
}

func (r *Repository) insertToken(ctx context.Context, description string) (*model.BearerToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	t := &model.BearerToken{
		Token:       hex.EncodeToString(buf),
		Description: description,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}

	query := `INSERT INTO bearer_tokens (token, description, active, created_at) VALUES (?, ?, 1, ?)`
	result, err := r.writeDB.ExecContext(ctx, query, t.Token, t.Description, t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert token: %w", err)
	}
	if t.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read token id: %w", err)
	}
	return t, nil
}

func scanToken(row interface{ Scan(...any) error }) (*model.BearerToken, error) {
	var (
		t        model.BearerToken
		lastUsed sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Token, &t.Description, &t.Active, &t.CreatedAt, &lastUsed)
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		t.LastUsedAt = &lastUsed.Time
	}
	return &t, nil
}
