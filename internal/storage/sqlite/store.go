package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/convolens/internal/storage"
)

// Store is a SQLite implementation of InteractionStore.
type Store struct {
	db *sql.DB
}

var _ storage.InteractionStore = (*Store)(nil)

// New opens (or creates) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			purpose TEXT NOT NULL,
			model TEXT NOT NULL,
			base_url TEXT,
			status TEXT NOT NULL,
			error_type TEXT,
			error_message TEXT,
			duration_ns INTEGER NOT NULL DEFAULT 0,
			response_excerpt TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_purpose ON interactions(purpose)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) SaveInteraction(ctx context.Context, in *storage.Interaction) error {
	if in == nil || in.ID == "" {
		return fmt.Errorf("interaction id is required")
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}

	query := `INSERT INTO interactions (
		id, purpose, model, base_url, status, error_type, error_message,
		duration_ns, response_excerpt, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		in.ID, in.Purpose, in.Model, nullString(in.BaseURL), in.Status,
		nullString(in.ErrorType), nullString(in.ErrorMessage),
		int64(in.Duration), nullString(in.ResponseExcerpt), in.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save interaction: %w", err)
	}

	return nil
}

func (s *Store) ListInteractions(ctx context.Context, opts storage.ListOptions) ([]*storage.Interaction, error) {
	query := `SELECT id, purpose, model, base_url, status, error_type, error_message,
	                 duration_ns, response_excerpt, created_at
	          FROM interactions`
	var args []any
	if opts.Purpose != "" {
		query += ` WHERE purpose = ?`
		args = append(args, opts.Purpose)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var result []*storage.Interaction
	for rows.Next() {
		var in storage.Interaction
		var baseURL, errType, errMsg, excerpt sql.NullString
		var durationNS int64
		if err := rows.Scan(&in.ID, &in.Purpose, &in.Model, &baseURL, &in.Status,
			&errType, &errMsg, &durationNS, &excerpt, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		in.BaseURL = baseURL.String
		in.ErrorType = errType.String
		in.ErrorMessage = errMsg.String
		in.ResponseExcerpt = excerpt.String
		in.Duration = time.Duration(durationNS)
		result = append(result, &in)
	}

	return result, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
