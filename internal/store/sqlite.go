package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteManifestStore implements ManifestStore on a SQLite database at
// <root>/.namsweep/plans.db.
type SQLiteManifestStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

var _ ManifestStore = (*SQLiteManifestStore)(nil)

// NewSQLiteManifestStore opens (creating if needed) the manifest for the
// project rooted at projectRoot.
func NewSQLiteManifestStore(projectRoot string) (*SQLiteManifestStore, error) {
	dir := LocalPath(projectRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", DirName, err)
	}
	return OpenSQLiteManifestStore(DBPath(projectRoot))
}

// OpenSQLiteManifestStore opens the manifest database at dbPath.
func OpenSQLiteManifestStore(dbPath string) (*SQLiteManifestStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteManifestStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteManifestStore) Path() string {
	return s.dbPath
}

// AddPlan records a plan and its pools in one transaction.
func (s *SQLiteManifestStore) AddPlan(ctx context.Context, plan Plan) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}
	experiments, err := json.Marshal(nonNil(plan.Experiments))
	if err != nil {
		return "", fmt.Errorf("failed to marshal experiments: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plans (id, document, document_hash, created_at, experiments, points, pools, seed, pool_size, out_dir)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.Document, plan.DocumentHash,
		plan.CreatedAt.UTC().Format(timeLayout), string(experiments),
		plan.Points, len(plan.Pools), plan.Seed, plan.PoolSize, plan.OutDir)
	if err != nil {
		return "", fmt.Errorf("failed to insert plan: %w", err)
	}

	for _, p := range plan.Pools {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pools (plan_id, idx, path, checksum, points) VALUES (?, ?, ?, ?, ?)`,
			plan.ID, p.Index, p.Path, p.Checksum, p.Points)
		if err != nil {
			return "", fmt.Errorf("failed to insert pool %d: %w", p.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit plan: %w", err)
	}
	return plan.ID, nil
}

// GetPlan returns a plan with its pools. id may be a unique prefix.
func (s *SQLiteManifestStore) GetPlan(ctx context.Context, id string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, document, document_hash, created_at, experiments, points, pools, seed, pool_size, out_dir
		FROM plans WHERE id = ?`, fullID)
	plan, err := scanPlan(row)
	if err != nil {
		return nil, err
	}

	pools, err := s.poolsUnlocked(ctx, fullID)
	if err != nil {
		return nil, err
	}
	plan.Pools = pools
	return plan, nil
}

// ListPlans returns every plan, newest first, without pool details.
func (s *SQLiteManifestStore) ListPlans(ctx context.Context) ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document, document_hash, created_at, experiments, points, pools, seed, pool_size, out_dir
		FROM plans ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	plans := make([]Plan, 0)
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read plans: %w", err)
	}
	return plans, nil
}

// Pools returns the pool records of a plan ordered by index.
func (s *SQLiteManifestStore) Pools(ctx context.Context, planID string) ([]Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fullID, err := s.resolveID(ctx, planID)
	if err != nil {
		return nil, err
	}
	return s.poolsUnlocked(ctx, fullID)
}

func (s *SQLiteManifestStore) poolsUnlocked(ctx context.Context, planID string) ([]Pool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, path, checksum, points FROM pools WHERE plan_id = ? ORDER BY idx`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pools: %w", err)
	}
	defer rows.Close()

	pools := make([]Pool, 0)
	for rows.Next() {
		var p Pool
		if err := rows.Scan(&p.Index, &p.Path, &p.Checksum, &p.Points); err != nil {
			return nil, fmt.Errorf("failed to scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pools: %w", err)
	}
	return pools, nil
}

// DeletePlan removes a plan; its pool records go with it.
func (s *SQLiteManifestStore) DeletePlan(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, fullID); err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteManifestStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// resolveID expands a unique ID prefix to a full plan ID.
func (s *SQLiteManifestStore) resolveID(ctx context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", ErrNotFound
	}

	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM plans WHERE id = ? OR id LIKE ? ESCAPE '\' LIMIT 3`, prefix, escaped+"%")
	if err != nil {
		return "", fmt.Errorf("failed to look up plan: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("failed to scan plan ID: %w", err)
		}
		if id == prefix {
			return id, nil
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to look up plan: %w", err)
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguous, prefix)
	}
}

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*Plan, error) {
	var (
		p           Plan
		createdAt   string
		experiments string
	)
	err := row.Scan(&p.ID, &p.Document, &p.DocumentHash, &createdAt, &experiments,
		&p.Points, &p.PoolCount, &p.Seed, &p.PoolSize, &p.OutDir)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}

	if p.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
	}
	if err := json.Unmarshal([]byte(experiments), &p.Experiments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal experiments: %w", err)
	}
	return &p, nil
}

// ContentHash returns the hex SHA-256 of a document's source bytes.
func ContentHash(src []byte) string {
	hash := sha256.Sum256(src)
	return hex.EncodeToString(hash[:])
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
