package audit

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the login_logs table.
// Foreign keys are left off so logs can be inserted without parent rows.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "audit-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE login_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id TEXT NOT NULL,
			application_id TEXT,
			login_type TEXT NOT NULL,
			succeeded INTEGER NOT NULL DEFAULT 1,
			detail TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return db
}

func TestCreate(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	log := &LoginLog{
		AccountID:     "acc-1",
		ApplicationID: "app-1",
		LoginType:     LoginTypeCredentials,
		Succeeded:     true,
	}
	if err := repo.Create(ctx, log); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if log.ID == 0 {
		t.Error("Create() did not assign an ID")
	}
	if log.CreatedAt.IsZero() {
		t.Error("Create() did not assign CreatedAt")
	}
}

func TestCreate_NoApplication(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	// A passkey rejection may have no application resolved.
	log := &LoginLog{
		AccountID: "acc-1",
		LoginType: LoginTypePasskey,
		Succeeded: false,
		Detail:    "rejected by approver",
	}
	if err := repo.Create(ctx, log); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result.Logs) != 1 {
		t.Fatalf("len(Logs) = %d, want 1", len(result.Logs))
	}
	got := result.Logs[0]
	if got.ApplicationID != "" {
		t.Errorf("ApplicationID = %q, want empty", got.ApplicationID)
	}
	if got.Succeeded {
		t.Error("Succeeded = true, want false")
	}
	if got.Detail != "rejected by approver" {
		t.Errorf("Detail = %q", got.Detail)
	}
}

// seedLogs inserts n logs for each of the given accounts, alternating
// login type between credentials and token.
func seedLogs(t *testing.T, repo *SQLiteRepository, n int, accounts ...string) {
	t.Helper()
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		for _, acc := range accounts {
			loginType := LoginTypeCredentials
			if i%2 == 1 {
				loginType = LoginTypeToken
			}
			log := &LoginLog{
				AccountID: acc,
				LoginType: loginType,
				Succeeded: true,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}
			if err := repo.Create(ctx, log); err != nil {
				t.Fatalf("seeding log %d for %s: %v", i, acc, err)
			}
		}
	}
}

func TestList_Filters(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()
	seedLogs(t, repo, 4, "acc-alice", "acc-bob")

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
	}{
		{"all", Filter{}, 8},
		{"by account", Filter{AccountID: "acc-alice"}, 4},
		{"by type", Filter{LoginType: LoginTypeCredentials}, 4},
		{"account and type", Filter{AccountID: "acc-bob", LoginType: LoginTypeToken}, 2},
		{"no match", Filter{AccountID: "acc-nobody"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if result.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", result.Total, tt.wantTotal)
			}
			if len(result.Logs) != tt.wantTotal {
				t.Errorf("len(Logs) = %d, want %d", len(result.Logs), tt.wantTotal)
			}
		})
	}
}

func TestList_Ordering(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()
	seedLogs(t, repo, 3, "acc-alice")

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	// Most recent first
	for i := 1; i < len(result.Logs); i++ {
		if result.Logs[i].CreatedAt.After(result.Logs[i-1].CreatedAt) {
			t.Errorf("logs not in descending order at index %d", i)
		}
	}
}

func TestList_Pagination(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()
	seedLogs(t, repo, 5, "acc-alice")

	page1, err := repo.List(ctx, Filter{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page1.Total != 5 || len(page1.Logs) != 2 {
		t.Errorf("page1: total = %d, len = %d, want 5 and 2", page1.Total, len(page1.Logs))
	}

	page3, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page3.Logs) != 1 {
		t.Errorf("page3: len = %d, want 1", len(page3.Logs))
	}

	// Pages do not overlap
	if page1.Logs[0].ID == page3.Logs[0].ID {
		t.Error("pages overlap")
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()
	seedLogs(t, repo, 1, "acc-alice")

	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{"zero defaults", 0, 50},
		{"negative defaults", -5, 50},
		{"over max clamps", 9999, 200},
		{"in range kept", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, Filter{Limit: tt.limit})
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if result.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", result.Limit, tt.wantLimit)
			}
		})
	}
}

func TestList_Empty(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))

	result, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Logs == nil {
		t.Error("Logs should be an empty slice, not nil")
	}
	if result.Total != 0 {
		t.Errorf("Total = %d, want 0", result.Total)
	}
}
