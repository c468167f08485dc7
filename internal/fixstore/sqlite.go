package fixstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS error_fixes (
	id             TEXT PRIMARY KEY,
	error_message  TEXT NOT NULL,
	fix_code       TEXT NOT NULL,
	tech_stack     TEXT NOT NULL,
	success_rate   REAL NOT NULL CHECK (success_rate >= 0 AND success_rate <= 1),
	embedding      BLOB NOT NULL,
	feedback_count INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_error_fixes_tech_stack ON error_fixes (tech_stack);
CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const selectColumns = `id, error_message, fix_code, tech_stack, success_rate, embedding, feedback_count, created_at, updated_at`

// SQLiteBackend stores fix records in an embedded SQLite database.
//
// The embedding dimension is recorded in the store_meta table when the
// database is created; reopening it with a different dimension fails.
type SQLiteBackend struct {
	db        *sql.DB
	dimension int
	path      string
	logger    *zap.Logger
	closed    atomic.Bool
}

// NewSQLiteBackend opens (creating if needed) the database at path.
// Use ":memory:" for a non-durable database.
func NewSQLiteBackend(ctx context.Context, path string, dimension int, logger *zap.Logger) (*SQLiteBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}

	dsn := memoryPath
	if path != memoryPath {
		expanded, err := expandPath(path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if dir := filepath.Dir(expanded); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		path = expanded
		dsn = expanded + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == memoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	b := &SQLiteBackend{
		db:        db,
		dimension: dimension,
		path:      path,
		logger:    logger,
	}
	if err := b.bootstrap(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("SQLiteBackend initialized",
		zap.String("path", path),
		zap.Int("dimension", dimension),
	)
	return b, nil
}

// bootstrap creates the schema and pins the embedding dimension.
func (b *SQLiteBackend) bootstrap(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := b.db.ExecContext(ctx,
		`INSERT INTO store_meta (key, value) VALUES ('dimension', ?) ON CONFLICT (key) DO NOTHING`,
		strconv.Itoa(b.dimension),
	); err != nil {
		return fmt.Errorf("record dimension: %w", err)
	}

	var stored string
	if err := b.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = 'dimension'`).Scan(&stored); err != nil {
		return fmt.Errorf("read dimension: %w", err)
	}
	if stored != strconv.Itoa(b.dimension) {
		return fmt.Errorf("%w: database %s was created with dimension %s, configured %d",
			ErrDimensionMismatch, b.path, stored, b.dimension)
	}
	return nil
}

// Name returns the backend name.
func (b *SQLiteBackend) Name() string { return BackendSQLite }

// Dimension returns the fixed embedding dimension.
func (b *SQLiteBackend) Dimension() int { return b.dimension }

// Insert persists rec. Returns ErrDuplicateKey if the id exists.
func (b *SQLiteBackend) Insert(ctx context.Context, rec *FixRecord) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := rec.Validate(b.dimension); err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := b.db.ExecContext(ctx, `
		INSERT INTO error_fixes (id, error_message, fix_code, tech_stack, success_rate, embedding, feedback_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.ErrorMessage, rec.FixCode, rec.TechStack, rec.SuccessRate,
		PackEmbedding(rec.Embedding), formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert fix %s: %w", rec.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert fix %s: %w", rec.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, rec.ID)
	}
	return nil
}

// Get returns the record with the given id.
func (b *SQLiteBackend) Get(ctx context.Context, id string) (*FixRecord, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	row := b.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM error_fixes WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get fix %s: %w", id, err)
	}
	return rec, nil
}

// ScanByTechStack returns all records whose tech stack equals techStack.
func (b *SQLiteBackend) ScanByTechStack(ctx context.Context, techStack string) ([]*FixRecord, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := b.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM error_fixes WHERE tech_stack = ?`, techStack)
	if err != nil {
		return nil, fmt.Errorf("scan tech stack: %w", err)
	}
	defer rows.Close()

	var out []*FixRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tech stack: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan tech stack: %w", err)
	}
	return out, nil
}

// UpdateSuccessRate applies fn to the stored rate inside one transaction.
func (b *SQLiteBackend) UpdateSuccessRate(ctx context.Context, id string, fn RateFunc) (*FixRecord, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM error_fixes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read fix %s: %w", id, err)
	}

	next, err := applyRate(rec.SuccessRate, fn)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE error_fixes SET success_rate = ?, feedback_count = feedback_count + 1, updated_at = ? WHERE id = ?`,
		next, formatTime(now), id,
	); err != nil {
		return nil, fmt.Errorf("update fix %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	rec.SuccessRate = next
	rec.FeedbackCount++
	rec.UpdatedAt = now
	return rec, nil
}

// Count returns the number of stored records.
func (b *SQLiteBackend) Count(ctx context.Context) (int, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	var n int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM error_fixes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count fixes: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*FixRecord, error) {
	var (
		rec                  FixRecord
		blob                 []byte
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.ID, &rec.ErrorMessage, &rec.FixCode, &rec.TechStack, &rec.SuccessRate,
		&blob, &rec.FeedbackCount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	emb, err := UnpackEmbedding(blob)
	if err != nil {
		return nil, err
	}
	rec.Embedding = emb
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
