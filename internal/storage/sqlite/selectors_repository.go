package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kulturkartan/kulturkartan/internal/domain"
	"github.com/kulturkartan/kulturkartan/internal/storage"
)

var _ storage.SelectorRepository = (*SelectorRepository)(nil)

// SelectorRepository persists selector bundles keyed by (domain, url_pattern).
type SelectorRepository struct {
	db *sql.DB
}

// Get returns the bundle whose pattern best matches the URL's path: longest
// matching url_pattern first, with a domain-only bundle as fallback.
// Returns storage.ErrNotFound when the domain has no matching bundle.
func (r *SelectorRepository) Get(ctx context.Context, url string) (*domain.SelectorBundle, error) {
	host, path, err := domain.SplitURL(url)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT url_pattern, container_selector, item_selectors_json, last_updated
		FROM selector_configs WHERE domain = ?`, host)
	if err != nil {
		return nil, fmt.Errorf("get selectors for %q: %w", host, err)
	}
	defer rows.Close()

	var candidates []domain.SelectorBundle
	for rows.Next() {
		b, err := scanBundle(rows, host)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get selectors for %q: %w", host, err)
	}

	best := domain.BestBundle(candidates, path)
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return best, nil
}

// Put upserts the bundle keyed by the URL's (domain, path).
func (r *SelectorRepository) Put(ctx context.Context, url string, container string, items map[string]domain.ItemSelector) error {
	host, path, err := domain.SplitURL(url)
	if err != nil {
		return err
	}
	return r.PutBundle(ctx, domain.SelectorBundle{
		Domain:            host,
		URLPattern:        path,
		ContainerSelector: container,
		Items:             items,
	})
}

// PutBundle upserts with an explicit (domain, url_pattern) key; patterns may
// carry globs.
func (r *SelectorRepository) PutBundle(ctx context.Context, b domain.SelectorBundle) error {
	itemsJSON, err := json.Marshal(b.Items)
	if err != nil {
		return fmt.Errorf("marshal item selectors: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO selector_configs (domain, url_pattern, container_selector, item_selectors_json, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(domain, url_pattern) DO UPDATE SET
			container_selector = excluded.container_selector,
			item_selectors_json = excluded.item_selectors_json,
			last_updated = excluded.last_updated`,
		domain.NormalizeDomain(b.Domain), b.URLPattern, b.ContainerSelector,
		string(itemsJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("put selectors for %s%s: %w", b.Domain, b.URLPattern, err)
	}
	return nil
}

// ListAll returns every stored bundle, for the admin surface.
func (r *SelectorRepository) ListAll(ctx context.Context) ([]domain.SelectorBundle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT domain, url_pattern, container_selector, item_selectors_json, last_updated
		FROM selector_configs ORDER BY domain, url_pattern`)
	if err != nil {
		return nil, fmt.Errorf("list selectors: %w", err)
	}
	defer rows.Close()

	var bundles []domain.SelectorBundle
	for rows.Next() {
		var host string
		var b domain.SelectorBundle
		var itemsJSON, lastUpdated string
		if err := rows.Scan(&host, &b.URLPattern, &b.ContainerSelector, &itemsJSON, &lastUpdated); err != nil {
			return nil, fmt.Errorf("scan selector bundle: %w", err)
		}
		b.Domain = host
		if err := json.Unmarshal([]byte(itemsJSON), &b.Items); err != nil {
			return nil, fmt.Errorf("unmarshal item selectors for %s: %w", host, err)
		}
		if t, err := time.Parse(time.RFC3339, lastUpdated); err == nil {
			b.LastUpdated = t
		}
		bundles = append(bundles, b)
	}
	return bundles, rows.Err()
}

// Delete removes the bundle keyed by the URL's (domain, path).
func (r *SelectorRepository) Delete(ctx context.Context, url string) error {
	host, path, err := domain.SplitURL(url)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM selector_configs WHERE domain = ? AND url_pattern = ?`, host, path)
	if err != nil {
		return fmt.Errorf("delete selectors for %s%s: %w", host, path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanBundle(rows *sql.Rows, host string) (domain.SelectorBundle, error) {
	var b domain.SelectorBundle
	var itemsJSON, lastUpdated string
	if err := rows.Scan(&b.URLPattern, &b.ContainerSelector, &itemsJSON, &lastUpdated); err != nil {
		return domain.SelectorBundle{}, fmt.Errorf("scan selector bundle: %w", err)
	}
	b.Domain = host
	if err := json.Unmarshal([]byte(itemsJSON), &b.Items); err != nil {
		return domain.SelectorBundle{}, fmt.Errorf("unmarshal item selectors for %s: %w", host, err)
	}
	if t, err := time.Parse(time.RFC3339, lastUpdated); err == nil {
		b.LastUpdated = t
	}
	return b, nil
}
