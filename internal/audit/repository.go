// Package audit provides access to the login_logs table for
// recording and querying authentication history.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Login types recorded in the log.
const (
	LoginTypeCredentials = "credentials"
	LoginTypeToken       = "token"
	LoginTypePasskey     = "passkey"
)

// LoginLog represents a single authentication event.
type LoginLog struct {
	ID            int64     `json:"id"`
	AccountID     string    `json:"account_id"`
	ApplicationID string    `json:"application_id,omitempty"`
	LoginType     string    `json:"login_type"`
	Succeeded     bool      `json:"succeeded"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Filter controls which login logs to return.
type Filter struct {
	AccountID     string // optional: filter by account
	ApplicationID string // optional: filter by application
	LoginType     string // optional: credentials, token, passkey
	Limit         int    // default 50, max 200
	Offset        int    // pagination offset
}

// ListResult contains the paginated login log results.
type ListResult struct {
	Logs   []LoginLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for login log operations.
type Repository interface {
	Create(ctx context.Context, log *LoginLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository reads and writes login logs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new login log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new login log entry. CreatedAt is generated if zero.
func (r *SQLiteRepository) Create(ctx context.Context, log *LoginLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO login_logs (account_id, application_id, login_type, succeeded, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		log.AccountID, nullableString(log.ApplicationID), log.LoginType,
		boolToInt(log.Succeeded), nullableString(log.Detail),
		log.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting login log: %w", err)
	}

	log.ID, _ = result.LastInsertId() //nolint:errcheck // always succeeds on SQLite

	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// List returns login logs matching the filter, ordered by most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for login log queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.AccountID != "" {
		conditions = append(conditions, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.ApplicationID != "" {
		conditions = append(conditions, "application_id = ?")
		args = append(args, filter.ApplicationID)
	}
	if filter.LoginType != "" {
		conditions = append(conditions, "login_type = ?")
		args = append(args, filter.LoginType)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Get total count.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM login_logs %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting login logs: %w", err)
	}

	// Get paginated results.
	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, account_id, application_id, login_type, succeeded, detail, created_at FROM login_logs %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying login logs: %w", err)
	}
	defer rows.Close()

	var logs []LoginLog
	for rows.Next() {
		var log LoginLog
		var applicationID, detail sql.NullString
		var succeeded int
		var createdAt string

		if err := rows.Scan(&log.ID, &log.AccountID, &applicationID,
			&log.LoginType, &succeeded, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning login log: %w", err)
		}

		log.Succeeded = succeeded != 0
		if applicationID.Valid {
			log.ApplicationID = applicationID.String
		}
		if detail.Valid {
			log.Detail = detail.String
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing login log timestamp %q: %w", createdAt, err)
		}
		log.CreatedAt = t

		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating login logs: %w", err)
	}

	if logs == nil {
		logs = []LoginLog{}
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
