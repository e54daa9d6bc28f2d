package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/royletron/scimit/internal/model"
	"github.com/royletron/scimit/internal/scim"
)

// Common errors for user store operations.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUserNameTaken = errors.New("userName already exists")
)

const userColumns = "id, external_id, user_name, email_primary, active, raw_data, meta_version, created_at, updated_at"

// CreateUser inserts a new User built from the submitted document.
// The generated id and version 1 are assigned here; userName uniqueness is
// enforced by the store and surfaces as ErrUserNameTaken.
func (r *Repository) CreateUser(ctx context.Context, doc map[string]any) (*model.User, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal user document: %w", err)
	}

	now := time.Now().UTC()
	userName, _ := doc["userName"].(string)
	u := &model.User{
		ID:           uuid.New().String(),
		UserName:     userName,
		EmailPrimary: model.DerivePrimaryEmail(doc, userName),
		Active:       true,
		RawData:      string(raw),
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	u.ExternalID, _ = doc["externalId"].(string)
	if v, ok := doc["active"]; ok {
		u.Active = truthy(v)
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.writeDB.ExecContext(ctx, query,
		u.ID,
		nullable(u.ExternalID),
		u.UserName,
		nullable(u.EmailPrimary),
		u.Active,
		u.RawData,
		u.Version,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserNameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return u, nil
}

// GetUser retrieves a User by id.
func (r *Repository) GetUser(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	u, err := scanUser(r.readDB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// FindUsers returns one insertion-ordered page of Users plus the total count
// of Users matching the filter, ignoring pagination. startIndex is 1-based.
// A nil filter matches everything.
func (r *Repository) FindUsers(ctx context.Context, filter *scim.Filter, startIndex, count int) ([]*model.User, int, error) {
	where, args := filterClause(filter, "user_name")

	var total int
	if err := r.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users` + where + ` ORDER BY rowid LIMIT ? OFFSET ?`
	rows, err := r.readDB.QueryContext(ctx, query, append(args, count, pageOffset(startIndex))...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating users: %w", err)
	}

	return users, total, nil
}

// ReplaceUser overwrites a User's document, preserving id and createdAt and
// bumping the version by exactly 1. The read-modify-write runs in a single
// immediate transaction on the write pool.
func (r *Repository) ReplaceUser(ctx context.Context, id string, doc map[string]any) (*model.User, error) {
	return r.mutateUser(ctx, id, func(existing *model.User) (map[string]any, error) {
		return doc, nil
	})
}

// PatchUser applies a batch of PATCH operations to a User's document in
// order, with one version bump and updatedAt touch for the whole batch.
// A path navigation failure aborts the batch before anything is written.
func (r *Repository) PatchUser(ctx context.Context, id string, ops []scim.PatchOp) (*model.User, error) {
	return r.mutateUser(ctx, id, func(existing *model.User) (map[string]any, error) {
		doc, err := existing.Document()
		if err != nil {
			return nil, fmt.Errorf("parse stored document: %w", err)
		}
		if err := scim.ApplyUserOps(doc, ops); err != nil {
			return nil, err
		}
		return doc, nil
	})
}

// mutateUser runs a read-modify-write cycle on one User row inside a write
// transaction. change receives the current row and returns the replacement
// document; returning an error aborts without writing.
func (r *Repository) mutateUser(ctx context.Context, id string, change func(*model.User) (map[string]any, error)) (*model.User, error) {
	tx, err := r.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin user mutation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	doc, err := change(existing)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal user document: %w", err)
	}

	updated := *existing
	updated.RawData = string(raw)
	updated.Version = existing.Version + 1
	updated.UpdatedAt = time.Now().UTC()
	if v, ok := doc["userName"].(string); ok && v != "" {
		updated.UserName = v
	}
	if _, ok := doc["externalId"]; ok {
		updated.ExternalID, _ = doc["externalId"].(string)
	}
	if v, ok := doc["active"]; ok {
		updated.Active = truthy(v)
	}
	updated.EmailPrimary = model.DerivePrimaryEmail(doc, updated.UserName)

	query := `
		UPDATE users
		SET external_id = ?, user_name = ?, email_primary = ?, active = ?,
		    raw_data = ?, meta_version = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = tx.ExecContext(ctx, query,
		nullable(updated.ExternalID),
		updated.UserName,
		nullable(updated.EmailPrimary),
		updated.Active,
		updated.RawData,
		updated.Version,
		updated.UpdatedAt,
		updated.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserNameTaken
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit user mutation: %w", err)
	}
	return &updated, nil
}

// DeleteUser removes a User, reporting whether a row existed.
func (r *Repository) DeleteUser(ctx context.Context, id string) (bool, error) {
	result, err := r.writeDB.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAllUsers clears the user table. Admin reset only.
func (r *Repository) DeleteAllUsers(ctx context.Context) error {
	if _, err := r.writeDB.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("failed to delete users: %w", err)
	}
	return nil
}

// scanUser scans a user row from either QueryRow or Rows.
func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var (
		u            model.User
		externalID   sql.NullString
		emailPrimary sql.NullString
	)
	err := row.Scan(
		&u.ID,
		&externalID,
		&u.UserName,
		&emailPrimary,
		&u.Active,
		&u.RawData,
		&u.Version,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.ExternalID = externalID.String
	u.EmailPrimary = emailPrimary.String
	return &u, nil
}

// filterClause converts a parsed filter into a WHERE clause against the
// resource type's canonical column. Contains uses instr rather than LIKE:
// both comparisons are case-sensitive, and SQLite's LIKE is not on ASCII.
func filterClause(filter *scim.Filter, column string) (string, []any) {
	if filter == nil {
		return "", nil
	}
	switch filter.Op {
	case scim.FilterEq:
		return " WHERE " + column + " = ?", []any{filter.Literal}
	case scim.FilterContains:
		return " WHERE instr(" + column + ", ?) > 0", []any{filter.Literal}
	}
	return "", nil
}

func pageOffset(startIndex int) int {
	if startIndex < 1 {
		return 0
	}
	return startIndex - 1
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// truthy mirrors the loose boolean coercion the wire format tolerates:
// IDPs have been seen sending active as a bool, a number, or a string.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case nil:
		return false
	}
	return true
}
