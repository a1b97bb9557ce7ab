package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ApplicationRepository defines the interface for application persistence.
type ApplicationRepository interface {
	Create(ctx context.Context, app *Application) error
	GetByID(ctx context.Context, id string) (*Application, error)
	GetByKey(ctx context.Context, appKey string) (*Application, error)
	List(ctx context.Context) ([]Application, error)
	Update(ctx context.Context, app *Application) error
	Delete(ctx context.Context, id string) error
}

// SQLiteApplicationRepository implements ApplicationRepository using SQLite.
type SQLiteApplicationRepository struct {
	db *sql.DB
}

// NewApplicationRepository creates a new SQLite-backed application repository.
func NewApplicationRepository(db *sql.DB) *SQLiteApplicationRepository {
	return &SQLiteApplicationRepository{db: db}
}

const applicationColumns = "id, app_key, name, badge_url, is_active, created_at, updated_at"

// Create inserts a new application. The ID and AppKey are generated if empty.
func (r *SQLiteApplicationRepository) Create(ctx context.Context, app *Application) error {
	if app.ID == "" {
		app.ID = "app-" + uuid.NewString()[:8]
	}
	if app.AppKey == "" {
		app.AppKey = uuid.NewString()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	app.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	app.UpdatedAt = app.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (id, app_key, name, badge_url, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		app.ID, app.AppKey, app.Name, nullString(app.BadgeURL),
		boolToInt(app.IsActive), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAppKeyExists
		}
		return fmt.Errorf("creating application: %w", err)
	}

	return nil
}

// GetByID retrieves an application by its unique ID.
func (r *SQLiteApplicationRepository) GetByID(ctx context.Context, id string) (*Application, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+applicationColumns+" FROM applications WHERE id = ?", id)
	return scanApplicationFrom(row)
}

// GetByKey retrieves an application by its opaque app key. This is the
// lookup every login and handshake request performs.
func (r *SQLiteApplicationRepository) GetByKey(ctx context.Context, appKey string) (*Application, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+applicationColumns+" FROM applications WHERE app_key = ?", appKey)
	return scanApplicationFrom(row)
}

// List returns all applications ordered by creation date.
func (r *SQLiteApplicationRepository) List(ctx context.Context) ([]Application, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+applicationColumns+" FROM applications ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		a, err := scanApplicationFrom(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating applications: %w", err)
	}

	if apps == nil {
		apps = []Application{}
	}
	return apps, nil
}

// Update modifies an application's mutable fields (name, badge_url, is_active).
func (r *SQLiteApplicationRepository) Update(ctx context.Context, app *Application) error {
	now := time.Now().UTC().Format(time.RFC3339)
	app.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE applications SET name = ?, badge_url = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		app.Name, nullString(app.BadgeURL), boolToInt(app.IsActive), now, app.ID,
	)
	if err != nil {
		return fmt.Errorf("updating application: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrApplicationNotFound
	}
	return nil
}

// Delete removes an application. Whitelist entries cascade via foreign keys.
func (r *SQLiteApplicationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM applications WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting application: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrApplicationNotFound
	}
	return nil
}

// scanApplicationFrom scans an application from any scanner (Row or Rows).
func scanApplicationFrom(s scanner) (*Application, error) {
	var a Application
	var badgeURL sql.NullString
	var isActive int
	var createdAt, updatedAt string

	err := s.Scan(&a.ID, &a.AppKey, &a.Name, &badgeURL, &isActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("scanning application: %w", err)
	}

	a.IsActive = isActive != 0
	if badgeURL.Valid {
		a.BadgeURL = badgeURL.String
	}

	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &a, nil
}
