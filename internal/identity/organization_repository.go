package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrganizationRepository defines the interface for organisation persistence,
// including membership and the per-organisation application whitelist.
type OrganizationRepository interface {
	Create(ctx context.Context, org *Organization) error
	GetByID(ctx context.Context, id string) (*Organization, error)
	List(ctx context.Context) ([]Organization, error)
	Update(ctx context.Context, org *Organization) error
	Delete(ctx context.Context, id string) error

	AddMember(ctx context.Context, orgID, accountID string, role MemberRole) error
	RemoveMember(ctx context.Context, orgID, accountID string) error
	ListMembers(ctx context.Context, orgID string) ([]Member, error)
	GetMembership(ctx context.Context, accountID string) (*Member, error)

	WhitelistApplication(ctx context.Context, orgID, applicationID string) error
	UnwhitelistApplication(ctx context.Context, orgID, applicationID string) error
	ListWhitelistedApplications(ctx context.Context, orgID string) ([]Application, error)
	IsApplicationWhitelisted(ctx context.Context, orgID, applicationID string) (bool, error)
}

// SQLiteOrganizationRepository implements OrganizationRepository using SQLite.
type SQLiteOrganizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository creates a new SQLite-backed organisation repository.
func NewOrganizationRepository(db *sql.DB) *SQLiteOrganizationRepository {
	return &SQLiteOrganizationRepository{db: db}
}

// Create inserts a new organisation. The ID is generated if empty.
func (r *SQLiteOrganizationRepository) Create(ctx context.Context, org *Organization) error {
	if org.ID == "" {
		org.ID = "org-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	org.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	org.UpdatedAt = org.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, whitelist_enforced, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		org.ID, org.Name, boolToInt(org.WhitelistEnforced), now, now,
	)
	if err != nil {
		return fmt.Errorf("creating organization: %w", err)
	}

	return nil
}

// GetByID retrieves an organisation by its unique ID.
func (r *SQLiteOrganizationRepository) GetByID(ctx context.Context, id string) (*Organization, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, whitelist_enforced, created_at, updated_at FROM organizations WHERE id = ?", id)
	return scanOrganizationFrom(row)
}

// List returns all organisations ordered by creation date.
func (r *SQLiteOrganizationRepository) List(ctx context.Context) ([]Organization, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, whitelist_enforced, created_at, updated_at FROM organizations ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		o, err := scanOrganizationFrom(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating organizations: %w", err)
	}

	if orgs == nil {
		orgs = []Organization{}
	}
	return orgs, nil
}

// Update modifies an organisation's mutable fields (name, whitelist_enforced).
func (r *SQLiteOrganizationRepository) Update(ctx context.Context, org *Organization) error {
	now := time.Now().UTC().Format(time.RFC3339)
	org.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET name = ?, whitelist_enforced = ?, updated_at = ? WHERE id = ?`,
		org.Name, boolToInt(org.WhitelistEnforced), now, org.ID,
	)
	if err != nil {
		return fmt.Errorf("updating organization: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrOrganizationNotFound
	}
	return nil
}

// Delete removes an organisation. Memberships and whitelist entries
// cascade via foreign keys.
func (r *SQLiteOrganizationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM organizations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting organization: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrOrganizationNotFound
	}
	return nil
}

// AddMember adds an account to an organisation with the given role.
func (r *SQLiteOrganizationRepository) AddMember(ctx context.Context, orgID, accountID string, role MemberRole) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organization_members (organization_id, account_id, role, created_at)
		 VALUES (?, ?, ?, ?)`,
		orgID, accountID, string(role), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrMemberExists
		}
		return fmt.Errorf("adding member: %w", err)
	}
	return nil
}

// RemoveMember removes an account from an organisation.
func (r *SQLiteOrganizationRepository) RemoveMember(ctx context.Context, orgID, accountID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM organization_members WHERE organization_id = ? AND account_id = ?",
		orgID, accountID,
	)
	if err != nil {
		return fmt.Errorf("removing member: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// ListMembers returns all members of an organisation.
func (r *SQLiteOrganizationRepository) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT organization_id, account_id, role, created_at
		 FROM organization_members WHERE organization_id = ? ORDER BY created_at ASC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		var role, createdAt string
		if err := rows.Scan(&m.OrganizationID, &m.AccountID, &role, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		m.Role = MemberRole(role)
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating members: %w", err)
	}

	if members == nil {
		members = []Member{}
	}
	return members, nil
}

// GetMembership returns an account's organisation membership, or
// ErrMemberNotFound if the account belongs to no organisation.
// Accounts belong to at most one organisation.
func (r *SQLiteOrganizationRepository) GetMembership(ctx context.Context, accountID string) (*Member, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT organization_id, account_id, role, created_at
		 FROM organization_members WHERE account_id = ? LIMIT 1`,
		accountID,
	)

	var m Member
	var role, createdAt string
	err := row.Scan(&m.OrganizationID, &m.AccountID, &role, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("scanning membership: %w", err)
	}
	m.Role = MemberRole(role)
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &m, nil
}

// WhitelistApplication adds an application to an organisation's whitelist.
func (r *SQLiteOrganizationRepository) WhitelistApplication(ctx context.Context, orgID, applicationID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organization_applications (organization_id, application_id, created_at)
		 VALUES (?, ?, ?)`,
		orgID, applicationID, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyWhitelisted
		}
		return fmt.Errorf("whitelisting application: %w", err)
	}
	return nil
}

// UnwhitelistApplication removes an application from an organisation's whitelist.
func (r *SQLiteOrganizationRepository) UnwhitelistApplication(ctx context.Context, orgID, applicationID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM organization_applications WHERE organization_id = ? AND application_id = ?",
		orgID, applicationID,
	)
	if err != nil {
		return fmt.Errorf("unwhitelisting application: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrApplicationNotFound
	}
	return nil
}

// ListWhitelistedApplications returns the applications an organisation
// has approved for member sign-in.
func (r *SQLiteOrganizationRepository) ListWhitelistedApplications(ctx context.Context, orgID string) ([]Application, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.app_key, a.name, a.badge_url, a.is_active, a.created_at, a.updated_at
		 FROM applications a
		 JOIN organization_applications oa ON oa.application_id = a.id
		 WHERE oa.organization_id = ?
		 ORDER BY a.created_at ASC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing whitelisted applications: %w", err)
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
		return nil, fmt.Errorf("iterating whitelisted applications: %w", err)
	}

	if apps == nil {
		apps = []Application{}
	}
	return apps, nil
}

// IsApplicationWhitelisted reports whether an application appears in an
// organisation's whitelist.
func (r *SQLiteOrganizationRepository) IsApplicationWhitelisted(ctx context.Context, orgID, applicationID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM organization_applications WHERE organization_id = ? AND application_id = ?",
		orgID, applicationID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking whitelist: %w", err)
	}
	return count > 0, nil
}

// scanOrganizationFrom scans an organisation from any scanner (Row or Rows).
func scanOrganizationFrom(s scanner) (*Organization, error) {
	var o Organization
	var whitelistEnforced int
	var createdAt, updatedAt string

	err := s.Scan(&o.ID, &o.Name, &whitelistEnforced, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("scanning organization: %w", err)
	}

	o.WhitelistEnforced = whitelistEnforced != 0
	o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	o.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &o, nil
}
