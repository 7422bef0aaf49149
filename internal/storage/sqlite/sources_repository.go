package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kulturkartan/kulturkartan/internal/domain"
	"github.com/kulturkartan/kulturkartan/internal/storage"
)

var _ storage.SourceRepository = (*SourceRepository)(nil)

// SourceRepository manages the scraping_urls table.
type SourceRepository struct {
	db *sql.DB
}

// Add inserts a new enabled source URL. Re-adding an existing URL updates
// its display name instead of failing.
func (r *SourceRepository) Add(ctx context.Context, url, name string) (*domain.SourceURL, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scraping_urls (url, name, enabled) VALUES (?, ?, 1)
		ON CONFLICT(url) DO UPDATE SET name = excluded.name`, url, name)
	if err != nil {
		return nil, fmt.Errorf("add source %q: %w", url, err)
	}

	var s domain.SourceURL
	var enabled int
	err = r.db.QueryRowContext(ctx,
		`SELECT id, url, name, enabled FROM scraping_urls WHERE url = ?`, url).
		Scan(&s.ID, &s.URL, &s.Name, &enabled)
	if err != nil {
		return nil, fmt.Errorf("read back source %q: %w", url, err)
	}
	s.Enabled = enabled != 0
	return &s, nil
}

// ListEnabled returns the enabled sources in insertion order. This is the
// snapshot a run iterates over.
func (r *SourceRepository) ListEnabled(ctx context.Context) ([]domain.SourceURL, error) {
	return r.list(ctx, `SELECT id, url, name, enabled FROM scraping_urls WHERE enabled = 1 ORDER BY id`)
}

// ListAll returns every configured source.
func (r *SourceRepository) ListAll(ctx context.Context) ([]domain.SourceURL, error) {
	return r.list(ctx, `SELECT id, url, name, enabled FROM scraping_urls ORDER BY id`)
}

func (r *SourceRepository) list(ctx context.Context, query string) ([]domain.SourceURL, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.SourceURL
	for rows.Next() {
		var s domain.SourceURL
		var enabled int
		if err := rows.Scan(&s.ID, &s.URL, &s.Name, &enabled); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		s.Enabled = enabled != 0
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// SetEnabled toggles a source by id.
func (r *SourceRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	val := 0
	if enabled {
		val = 1
	}
	res, err := r.db.ExecContext(ctx, `UPDATE scraping_urls SET enabled = ? WHERE id = ?`, val, id)
	if err != nil {
		return fmt.Errorf("set source %d enabled=%v: %w", id, enabled, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a source by id.
func (r *SourceRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scraping_urls WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
