package auth

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/identity-core/internal/audit"
	"github.com/nerrad567/identity-core/internal/identity"
	"github.com/nerrad567/identity-core/internal/infrastructure/config"
	"github.com/nerrad567/identity-core/internal/infrastructure/logging"
)

// testJWTSecret meets the 32-character minimum enforced by config validation.
const testJWTSecret = "test-secret-key-at-least-32-chars!"

// testDB creates a temporary SQLite database with the full identity
// schema applied. The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "auth-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE organizations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			whitelist_enforced INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE accounts (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE COLLATE NOCASE,
			display_name TEXT NOT NULL,
			badge_url TEXT,
			password_hash TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE organization_members (
			organization_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (organization_id, account_id),
			FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE CASCADE,
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE applications (
			id TEXT PRIMARY KEY,
			app_key TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			badge_url TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE organization_applications (
			organization_id TEXT NOT NULL,
			application_id TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (organization_id, application_id),
			FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE CASCADE,
			FOREIGN KEY (application_id) REFERENCES applications(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE refresh_tokens (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			family_id TEXT NOT NULL,
			token_hash TEXT NOT NULL,
			device_info TEXT,
			expires_at TEXT NOT NULL,
			revoked INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE login_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id TEXT NOT NULL,
			application_id TEXT,
			login_type TEXT NOT NULL,
			succeeded INTEGER NOT NULL DEFAULT 1,
			detail TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE,
			FOREIGN KEY (application_id) REFERENCES applications(id) ON DELETE SET NULL
		) STRICT;
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return db
}

// testFixture bundles the repositories and services tests exercise.
type testFixture struct {
	db       *sql.DB
	accounts *identity.SQLiteAccountRepository
	orgs     *identity.SQLiteOrganizationRepository
	apps     *identity.SQLiteApplicationRepository
	tokens   *SQLiteTokenRepository
	logins   *audit.SQLiteRepository
	service  *Service
	gate     *Gate
}

// newTestFixture wires the auth service and gate against a fresh test database.
func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	db := testDB(t)
	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")

	accounts := identity.NewAccountRepository(db)
	orgs := identity.NewOrganizationRepository(db)
	apps := identity.NewApplicationRepository(db)
	tokens := NewTokenRepository(db)
	logins := audit.NewSQLiteRepository(db)

	svc := NewService(ServiceConfig{
		Accounts:        accounts,
		Orgs:            orgs,
		Apps:            apps,
		Tokens:          tokens,
		Logins:          logins,
		Logger:          logger,
		JWTSecret:       testJWTSecret,
		AccessTokenTTL:  15,
		RefreshTokenTTL: 60,
	})

	return &testFixture{
		db:       db,
		accounts: accounts,
		orgs:     orgs,
		apps:     apps,
		tokens:   tokens,
		logins:   logins,
		service:  svc,
		gate:     NewGate(accounts, orgs, apps, testJWTSecret, logger),
	}
}

// createAccount inserts an active account with the given password.
func (f *testFixture) createAccount(t *testing.T, username, password string) *identity.Account {
	t.Helper()

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	account := &identity.Account{
		Username:     username,
		DisplayName:  "Test " + username,
		PasswordHash: hash,
		Status:       identity.StatusActive,
	}
	if err := f.accounts.Create(context.Background(), account); err != nil {
		t.Fatalf("creating account: %v", err)
	}
	return account
}

// createApplication inserts an active application.
func (f *testFixture) createApplication(t *testing.T, name string) *identity.Application {
	t.Helper()

	app := &identity.Application{Name: name, IsActive: true}
	if err := f.apps.Create(context.Background(), app); err != nil {
		t.Fatalf("creating application: %v", err)
	}
	return app
}
