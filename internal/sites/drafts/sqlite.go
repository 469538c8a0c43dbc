package drafts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/sites/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS drafts (
	id         TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	last_saved INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS drafts_last_saved ON drafts(last_saved DESC);
`

// SQLiteStore is a single-device draft file, used by sitectl.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the draft file at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open draft file: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to draft file: %w", err)
	}

	// one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply draft schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Put(ctx context.Context, site domain.SiteInstance) error {
	if site.ID == "" {
		return domain.ErrInvalidSiteID
	}
	body, err := json.Marshal(site)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (id, body, last_saved) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body, last_saved = excluded.last_saved
	`, site.ID, string(body), site.LastSaved)
	if err != nil {
		return fmt.Errorf("failed to write draft: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.SiteInstance, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM drafts WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}

	var site domain.SiteInstance
	if err := json.Unmarshal([]byte(body), &site); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	return &site, nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]domain.SiteInstance, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, body FROM drafts ORDER BY last_saved DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var out []domain.SiteInstance
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		var site domain.SiteInstance
		if err := json.Unmarshal([]byte(body), &site); err != nil {
			logging.From(ctx).Warnw("skipping unreadable draft", "site_id", id, zap.Error(err))
			continue
		}
		out = append(out, site)
	}
	return out, rows.Err()
}
