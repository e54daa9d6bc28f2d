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

// Common errors for group store operations.
var (
	ErrGroupNotFound = errors.New("group not found")
	ErrInvalidMember = errors.New("member entry has no value")
)

const groupColumns = "id, external_id, display_name, raw_data, meta_version, created_at, updated_at"

// CreateGroup inserts a new Group built from the submitted document. When
// the document carries a members field, each entry is added as a membership
// side effect. A malformed member midway fails the call but leaves the group
// and the preceding members committed; the protocol offers no bulk rollback
// and callers see the partial state on the next read.
func (r *Repository) CreateGroup(ctx context.Context, doc map[string]any) (*model.Group, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal group document: %w", err)
	}

	now := time.Now().UTC()
	displayName, _ := doc["displayName"].(string)
	g := &model.Group{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		RawData:     string(raw),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	g.ExternalID, _ = doc["externalId"].(string)

	query := `
		INSERT INTO groups (` + groupColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.writeDB.ExecContext(ctx, query,
		g.ID,
		nullable(g.ExternalID),
		g.DisplayName,
		g.RawData,
		g.Version,
		g.CreatedAt,
		g.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	if members, ok := doc["members"]; ok {
		if err := r.addMembers(ctx, g.ID, members); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// GetGroup retrieves a Group by id.
func (r *Repository) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = ?`

	g, err := scanGroup(r.readDB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

// FindGroups returns one insertion-ordered page of Groups plus the total
// count matching the filter, ignoring pagination.
func (r *Repository) FindGroups(ctx context.Context, filter *scim.Filter, startIndex, count int) ([]*model.Group, int, error) {
	where, args := filterClause(filter, "display_name")

	var total int
	if err := r.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM groups"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count groups: %w", err)
	}

	query := `SELECT ` + groupColumns + ` FROM groups` + where + ` ORDER BY rowid LIMIT ? OFFSET ?`
	rows, err := r.readDB.QueryContext(ctx, query, append(args, count, pageOffset(startIndex))...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*model.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating groups: %w", err)
	}

	return groups, total, nil
}

// GroupMembers lists a group's memberships in insertion order.
func (r *Repository) GroupMembers(ctx context.Context, groupID string) ([]*model.GroupMember, error) {
	query := `SELECT group_id, member_id, member_type, display_name FROM group_members WHERE group_id = ? ORDER BY id`
	rows, err := r.readDB.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*model.GroupMember
	for rows.Next() {
		var (
			m       model.GroupMember
			display sql.NullString
		)
		if err := rows.Scan(&m.GroupID, &m.MemberID, &m.MemberType, &display); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.DisplayName = display.String
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

// AddGroupMember records one (group, member) pair. Re-adding an existing
// pair is a no-op. The group must exist; the foreign key enforces it.
func (r *Repository) AddGroupMember(ctx context.Context, groupID string, ref scim.MemberRef) error {
	if ref.Value == "" {
		return ErrInvalidMember
	}
	query := `
		INSERT OR IGNORE INTO group_members (group_id, member_id, member_type, display_name)
		VALUES (?, ?, ?, ?)
	`
	if _, err := r.writeDB.ExecContext(ctx, query, groupID, ref.Value, ref.Type, nullable(ref.Display)); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// RemoveGroupMember removes one (group, member) pair. Removing a pair that
// does not exist is a no-op, not an error.
func (r *Repository) RemoveGroupMember(ctx context.Context, groupID, memberID string) error {
	query := `DELETE FROM group_members WHERE group_id = ? AND member_id = ?`
	if _, err := r.writeDB.ExecContext(ctx, query, groupID, memberID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

func (r *Repository) clearGroupMembers(ctx context.Context, groupID string) error {
	if _, err := r.writeDB.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("failed to clear members: %w", err)
	}
	return nil
}

func (r *Repository) addMembers(ctx context.Context, groupID string, value any) error {
	for _, ref := range scim.MemberRefs(value) {
		if err := r.AddGroupMember(ctx, groupID, ref); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceGroup overwrites a Group's document, preserving id and createdAt
// and bumping the version by exactly 1. An explicit members field, even an
// empty one, fully replaces the current memberships; an absent field leaves
// them untouched.
func (r *Repository) ReplaceGroup(ctx context.Context, id string, doc map[string]any) (*model.Group, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal group document: %w", err)
	}

	tx, err := r.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin group mutation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanGroup(tx.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	updated := *existing
	updated.RawData = string(raw)
	updated.Version = existing.Version + 1
	updated.UpdatedAt = time.Now().UTC()
	if v, ok := doc["displayName"].(string); ok && v != "" {
		updated.DisplayName = v
	}
	if _, ok := doc["externalId"]; ok {
		updated.ExternalID, _ = doc["externalId"].(string)
	}

	query := `
		UPDATE groups
		SET external_id = ?, display_name = ?, raw_data = ?, meta_version = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := tx.ExecContext(ctx, query,
		nullable(updated.ExternalID),
		updated.DisplayName,
		updated.RawData,
		updated.Version,
		updated.UpdatedAt,
		updated.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit group mutation: %w", err)
	}

	if members, ok := doc["members"]; ok {
		if err := r.clearGroupMembers(ctx, id); err != nil {
			return nil, err
		}
		if err := r.addMembers(ctx, id, members); err != nil {
			return nil, err
		}
	}

	return &updated, nil
}

// PatchGroup applies a batch of membership operations in order. Each op
// mutates the membership table as it is applied; the version bump and
// updatedAt touch happen once at the end of the batch. Ops that are not one
// of the recognized member forms are silently ignored.
func (r *Repository) PatchGroup(ctx context.Context, id string, ops []scim.PatchOp) (*model.Group, error) {
	existing, err := r.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}

	for _, op := range ops {
		switch {
		case op.Op == "add" && op.Path == "members":
			if err := r.addMembers(ctx, id, op.Value); err != nil {
				return nil, err
			}
		case op.Op == "remove":
			if memberID, ok := scim.ParseMemberPath(op.Path); ok {
				if err := r.RemoveGroupMember(ctx, id, memberID); err != nil {
					return nil, err
				}
			}
		case op.Op == "replace" && op.Path == "members":
			if err := r.clearGroupMembers(ctx, id); err != nil {
				return nil, err
			}
			if err := r.addMembers(ctx, id, op.Value); err != nil {
				return nil, err
			}
		}
	}

	updated := *existing
	updated.UpdatedAt = time.Now().UTC()

	// RETURNING hands back the stored value, so a concurrent patch between
	// the read above and this bump cannot leave a stale version in the
	// response envelope.
	query := `UPDATE groups SET meta_version = meta_version + 1, updated_at = ? WHERE id = ? RETURNING meta_version`
	if err := r.writeDB.QueryRowContext(ctx, query, updated.UpdatedAt, id).Scan(&updated.Version); err != nil {
		return nil, fmt.Errorf("failed to bump group version: %w", err)
	}

	return &updated, nil
}

// DeleteGroup removes a Group, reporting whether a row existed. Memberships
// cascade with it.
func (r *Repository) DeleteGroup(ctx context.Context, id string) (bool, error) {
	result, err := r.writeDB.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete group: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAllGroups clears groups and memberships. Admin reset only.
func (r *Repository) DeleteAllGroups(ctx context.Context) error {
	if _, err := r.writeDB.ExecContext(ctx, `DELETE FROM groups`); err != nil {
		return fmt.Errorf("failed to delete groups: %w", err)
	}
	if _, err := r.writeDB.ExecContext(ctx, `DELETE FROM group_members`); err != nil {
		return fmt.Errorf("failed to delete members: %w", err)
	}
	return nil
}

// scanGroup scans a group row from either QueryRow or Rows.
func scanGroup(row interface{ Scan(...any) error }) (*model.Group, error) {
	var (
		g          model.Group
		externalID sql.NullString
	)
	err := row.Scan(
		&g.ID,
		&externalID,
		&g.DisplayName,
		&g.RawData,
		&g.Version,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.ExternalID = externalID.String
	return &g, nil
}
