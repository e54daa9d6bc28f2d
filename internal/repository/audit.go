package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/royletron/scimit/internal/model"
)

// ErrAuditRecordNotFound is returned for unknown audit record ids.
var ErrAuditRecordNotFound = errors.New("audit record not found")

const auditColumns = "id, timestamp, method, path, status_code, headers, query_params, request_body, response_body, response_headers, duration_ms, ip_address, user_agent"

// AuditQuery filters the audit history. Zero values mean "no constraint".
type AuditQuery struct {
	Method string
	Status int
	Path   string // substring match
	Limit  int
	Offset int
}

// InsertAuditRecord persists one completed exchange and assigns the
// record's id from the store's monotonic sequence. A record is visible to
// history readers only once this returns.
func (r *Repository) InsertAuditRecord(ctx context.Context, rec *model.AuditRecord) error {
	query := `
		INSERT INTO request_logs (
			timestamp, method, path, status_code, headers, query_params,
			request_body, response_body, response_headers, duration_ms,
			ip_address, user_agent
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.writeDB.ExecContext(ctx, query,
		rec.Timestamp,
		rec.Method,
		rec.Path,
		rec.StatusCode,
		rec.Headers,
		rec.QueryParams,
		nullable(rec.RequestBody),
		nullable(rec.ResponseBody),
		rec.ResponseHeaders,
		rec.DurationMs,
		nullable(rec.IPAddress),
		nullable(rec.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	rec.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read audit record id: %w", err)
	}
	return nil
}

// FindAuditRecords returns records newest first plus the total count
// matching the query, ignoring limit/offset.
func (r *Repository) FindAuditRecords(ctx context.Context, q AuditQuery) ([]*model.AuditRecord, int, error) {
	where := " WHERE 1=1"
	var args []any

	if q.Method != "" {
		where += " AND method = ?"
		args = append(args, q.Method)
	}
	if q.Status != 0 {
		where += " AND status_code = ?"
		args = append(args, q.Status)
	}
	if q.Path != "" {
		where += " AND path LIKE ?"
		args = append(args, "%"+q.Path+"%")
	}

	var total int
	if err := r.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM request_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit records: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + auditColumns + ` FROM request_logs` + where + ` ORDER BY id DESC LIMIT ? OFFSET ?`
	rows, err := r.readDB.QueryContext(ctx, query, append(args, limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []*model.AuditRecord
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating audit records: %w", err)
	}

	return records, total, nil
}

// GetAuditRecord retrieves a single record by id.
func (r *Repository) GetAuditRecord(ctx context.Context, id int64) (*model.AuditRecord, error) {
	query := `SELECT ` + auditColumns + ` FROM request_logs WHERE id = ?`

	rec, err := scanAuditRecord(r.readDB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuditRecordNotFound
		}
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}
	return rec, nil
}

// DeleteAllAuditRecords clears the audit history. Admin reset only.
func (r *Repository) DeleteAllAuditRecords(ctx context.Context) error {
	if _, err := r.writeDB.ExecContext(ctx, `DELETE FROM request_logs`); err != nil {
		return fmt.Errorf("failed to delete audit records: %w", err)
	}
	return nil
}

func scanAuditRecord(row interface{ Scan(...any) error }) (*model.AuditRecord, error) {
	var (
		rec          model.AuditRecord
		requestBody  sql.NullString
		responseBody sql.NullString
		ipAddress    sql.NullString
		userAgent    sql.NullString
	)
	err := row.Scan(
		&rec.ID,
		&rec.Timestamp,
		&rec.Method,
		&rec.Path,
		&rec.StatusCode,
		&rec.Headers,
		&rec.QueryParams,
		&requestBody,
		&responseBody,
		&rec.ResponseHeaders,
		&rec.DurationMs,
		&ipAddress,
		&userAgent,
	)
	if err != nil {
		return nil, err
	}
	rec.RequestBody = requestBody.String
	rec.ResponseBody = responseBody.String
	rec.IPAddress = ipAddress.String
	rec.UserAgent = userAgent.String
	return &rec, nil
}
