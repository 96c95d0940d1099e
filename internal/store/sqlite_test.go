package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *SQLiteManifestStore {
	t.Helper()
	s, err := NewSQLiteManifestStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteManifestStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPlan(id string, created time.Time) Plan {
	return Plan{
		ID:           id,
		Document:     "sweeps/threshold.json",
		DocumentHash: ContentHash([]byte(id)),
		CreatedAt:    created,
		Experiments:  []string{"threshold", "jitter"},
		Points:       5,
		Seed:         1437243,
		PoolSize:     2,
		OutDir:       "out",
		Pools: []Pool{
			{Index: 0, Path: "out/threshold_0.in.gz", Checksum: "sha256:aa", Points: 2},
			{Index: 1, Path: "out/threshold_1.in.gz", Checksum: "sha256:bb", Points: 2},
			{Index: 2, Path: "out/threshold_2.in.gz", Checksum: "sha256:cc", Points: 1},
		},
	}
}

func TestNewSQLiteManifestStore(t *testing.T) {
	root := t.TempDir()
	s, err := NewSQLiteManifestStore(root)
	if err != nil {
		t.Fatalf("NewSQLiteManifestStore() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(root, ".namsweep", "plans.db")); err != nil {
		t.Errorf("plans.db was not created: %v", err)
	}
	if s.Path() != DBPath(root) {
		t.Errorf("Path() = %q, want %q", s.Path(), DBPath(root))
	}
}

func TestSQLiteManifestStore_AddGetPlan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 5, 1, 10, 30, 0, 123456789, time.UTC)
	id, err := s.AddPlan(ctx, testPlan("", created))
	if err != nil {
		t.Fatalf("AddPlan() error = %v", err)
	}
	if len(id) != 36 {
		t.Errorf("AddPlan() id = %q, want a UUID", id)
	}

	got, err := s.GetPlan(ctx, id)
	if err != nil {
		t.Fatalf("GetPlan() error = %v", err)
	}
	if got.ID != id {
		t.Errorf("ID = %q, want %q", got.ID, id)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if len(got.Experiments) != 2 || got.Experiments[1] != "jitter" {
		t.Errorf("Experiments = %v", got.Experiments)
	}
	if got.PoolCount != 3 || len(got.Pools) != 3 {
		t.Fatalf("PoolCount = %d, len(Pools) = %d, want 3", got.PoolCount, len(got.Pools))
	}
	if got.Pools[2].Checksum != "sha256:cc" || got.Pools[2].Points != 1 {
		t.Errorf("Pools[2] = %+v", got.Pools[2])
	}
	if got.Seed != 1437243 || got.PoolSize != 2 || got.OutDir != "out" {
		t.Errorf("plan settings = seed %d, pool size %d, out %q", got.Seed, got.PoolSize, got.OutDir)
	}
}

func TestSQLiteManifestStore_GetPlanPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"abc-111", "abc-222", "def-333"} {
		if _, err := s.AddPlan(ctx, testPlan(id, now)); err != nil {
			t.Fatalf("AddPlan(%s) error = %v", id, err)
		}
	}

	tests := []struct {
		prefix  string
		want    string
		wantErr error
	}{
		{"def", "def-333", nil},
		{"abc-2", "abc-222", nil},
		{"abc-111", "abc-111", nil},
		{"abc", "", ErrAmbiguous},
		{"zzz", "", ErrNotFound},
		{"", "", ErrNotFound},
		{"%", "", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			got, err := s.GetPlan(ctx, tt.prefix)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("GetPlan(%q) error = %v, want %v", tt.prefix, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetPlan(%q) error = %v", tt.prefix, err)
			}
			if got.ID != tt.want {
				t.Errorf("GetPlan(%q).ID = %q, want %q", tt.prefix, got.ID, tt.want)
			}
		})
	}
}

func TestSQLiteManifestStore_ListPlans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	plans, err := s.ListPlans(ctx)
	if err != nil {
		t.Fatalf("ListPlans() error = %v", err)
	}
	if len(plans) != 0 {
		t.Fatalf("ListPlans() on empty store = %d plans", len(plans))
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		// Sub-second offsets check that created_at sorts as a timestamp.
		created := base.Add(time.Duration(i) * 500 * time.Millisecond)
		if _, err := s.AddPlan(ctx, testPlan(id, created)); err != nil {
			t.Fatalf("AddPlan() error = %v", err)
		}
	}

	plans, err = s.ListPlans(ctx)
	if err != nil {
		t.Fatalf("ListPlans() error = %v", err)
	}
	var ids []string
	for _, p := range plans {
		ids = append(ids, p.ID)
		if p.Pools != nil {
			t.Errorf("ListPlans() filled Pools for %s", p.ID)
		}
		if p.PoolCount != 3 {
			t.Errorf("PoolCount = %d, want 3", p.PoolCount)
		}
	}
	want := []string{"third", "second", "first"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ListPlans() order = %v, want %v", ids, want)
		}
	}
}

func TestSQLiteManifestStore_DeletePlan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddPlan(ctx, testPlan("gone", time.Now())); err != nil {
		t.Fatalf("AddPlan() error = %v", err)
	}
	if err := s.DeletePlan(ctx, "gone"); err != nil {
		t.Fatalf("DeletePlan() error = %v", err)
	}

	if _, err := s.GetPlan(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPlan() after delete error = %v, want ErrNotFound", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pools`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("pools left after delete = %d, want 0", count)
	}

	if err := s.DeletePlan(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeletePlan() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteManifestStore_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddPlan(ctx, testPlan("dup", time.Now())); err != nil {
		t.Fatalf("AddPlan() error = %v", err)
	}
	if _, err := s.AddPlan(ctx, testPlan("dup", time.Now())); err == nil {
		t.Error("AddPlan() with duplicate ID succeeded")
	}

	pools, err := s.Pools(ctx, "dup")
	if err != nil {
		t.Fatalf("Pools() error = %v", err)
	}
	if len(pools) != 3 {
		t.Errorf("Pools() = %d, want 3 (failed insert must roll back)", len(pools))
	}
}

func TestSQLiteManifestStore_Reopen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	s, err := NewSQLiteManifestStore(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddPlan(ctx, testPlan("persisted", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	s2, err := NewSQLiteManifestStore(root)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()

	if _, err := s2.GetPlan(ctx, "persisted"); err != nil {
		t.Errorf("GetPlan() after reopen error = %v", err)
	}
}

func TestInitSchema_NewerVersionRejected(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "future.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, SchemaVersion+1); err != nil {
		t.Fatal(err)
	}

	if err := InitSchema(ctx, db); err == nil {
		t.Error("InitSchema() accepted a newer schema version")
	}
}

func TestInitSchema_UnknownOlderVersionRejected(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "old.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (0, datetime('now'))`); err != nil {
		t.Fatal(err)
	}

	err = InitSchema(ctx, db)
	if err == nil || !strings.Contains(err.Error(), "no migration from schema version 0 to 1") {
		t.Errorf("InitSchema() error = %v, want no migration from schema version 0", err)
	}
}

func TestValidateIntegrity(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "check.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := InitSchema(ctx, db); err != nil {
		t.Fatal(err)
	}
	if err := ValidateIntegrity(ctx, db); err != nil {
		t.Errorf("ValidateIntegrity() on fresh db = %v", err)
	}

	// Orphan pool rows violate the foreign key when enforcement is off.
	if _, err := db.ExecContext(ctx,
		`INSERT INTO pools (plan_id, idx, path, checksum, points) VALUES ('missing', 0, 'p', 'c', 1)`); err != nil {
		t.Fatal(err)
	}
	if err := ValidateIntegrity(ctx, db); err == nil {
		t.Error("ValidateIntegrity() missed an orphan pool row")
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("x"))
	if a != ContentHash([]byte("x")) {
		t.Error("ContentHash is not deterministic")
	}
	if a == ContentHash([]byte("y")) {
		t.Error("ContentHash collided")
	}
	if len(a) != 64 {
		t.Errorf("len(ContentHash) = %d, want 64", len(a))
	}
}
