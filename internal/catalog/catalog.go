// Package catalog indexes a session's extraction results in an in-memory
// DuckDB database for free-text search and aggregate views.
package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"sync/atomic"

	"github.com/marcboeker/go-duckdb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/profile-desk/backend/internal/models"
)

// IndustryCount is one row of the industry summary.
type IndustryCount struct {
	Industry string `json:"industry"`
	Count    int    `json:"count"`
}

// Catalog is a searchable copy of the results of one session.
type Catalog struct {
	db  *sql.DB
	seq atomic.Int64

	// limits concurrent queries per session
	querySem chan struct{}
}

// Open creates an empty in-memory catalog.
func Open(ctx context.Context) (*Catalog, error) {
	// The init hook runs for every pooled connection, long after Open returns.
	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "catalog: create connector")
	}

	db := sql.OpenDB(connector)
	_, err = db.ExecContext(ctx, `
		CREATE TABLE results (
			id           VARCHAR PRIMARY KEY,
			seq          BIGINT NOT NULL,
			file_name    VARCHAR,
			company_name VARCHAR,
			website      VARCHAR,
			industry     VARCHAR,
			employees    VARCHAR,
			established  VARCHAR,
			haystack     VARCHAR NOT NULL,
			extracted_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, eris.Wrap(err, "catalog: create table")
	}

	return &Catalog{
		db:       db,
		querySem: make(chan struct{}, 3),
	}, nil
}

// Index adds or replaces one result.
func (c *Catalog) Index(ctx context.Context, r models.ExtractionResult) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO results
			(id, seq, file_name, company_name, website, industry, employees, established, haystack, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, c.seq.Add(1), r.FileName, r.Name, r.Website, r.Industry,
		r.Employees, r.Established, haystack(r), r.ExtractedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "catalog: index %s", r.ID)
	}
	return nil
}

// Remove drops the given results. Unknown ids are ignored.
func (c *Catalog) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := c.db.ExecContext(ctx, "DELETE FROM results WHERE id IN ("+placeholders+")", args...); err != nil {
		return eris.Wrap(err, "catalog: remove")
	}
	return nil
}

// Search returns the ids of results whose text contains q, case-insensitive,
// in indexing order. An empty query matches everything.
func (c *Catalog) Search(ctx context.Context, q string) ([]string, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	rows, err := c.db.QueryContext(ctx,
		"SELECT id FROM results WHERE contains(haystack, ?) ORDER BY seq",
		strings.ToLower(strings.TrimSpace(q)),
	)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: search")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "catalog: scan")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IndustryCounts groups the indexed results by derived industry, largest
// group first.
func (c *Catalog) IndustryCounts(ctx context.Context) ([]IndustryCount, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	rows, err := c.db.QueryContext(ctx,
		"SELECT industry, COUNT(*) AS n FROM results GROUP BY industry ORDER BY n DESC, industry")
	if err != nil {
		return nil, eris.Wrap(err, "catalog: industry counts")
	}
	defer rows.Close()

	counts := []IndustryCount{}
	for rows.Next() {
		var ic IndustryCount
		var n int64
		if err := rows.Scan(&ic.Industry, &n); err != nil {
			return nil, eris.Wrap(err, "catalog: scan")
		}
		ic.Count = int(n)
		counts = append(counts, ic)
	}
	return counts, rows.Err()
}

// Len returns the number of indexed results.
func (c *Catalog) Len(ctx context.Context) (int, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM results").Scan(&n); err != nil {
		return 0, eris.Wrap(err, "catalog: count")
	}
	return int(n), nil
}

// Close releases the database.
func (c *Catalog) Close() error {
	if c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil {
		zap.L().Warn("catalog close failed", zap.Error(err))
		return eris.Wrap(err, "catalog: close")
	}
	return nil
}

func (c *Catalog) acquire(ctx context.Context) error {
	select {
	case c.querySem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Catalog) release() {
	<-c.querySem
}

// haystack is the lower-cased text searched by Search.
func haystack(r models.ExtractionResult) string {
	parts := []string{r.Name, r.FileName, r.Overview, r.Website, r.Industry, r.PostalAddress.City, r.PostalAddress.Country}
	parts = append(parts, r.ServiceOfferings...)
	parts = append(parts, r.Memberships...)
	for _, p := range r.BoardMembers {
		parts = append(parts, p.Name)
	}
	for _, p := range r.Directors {
		parts = append(parts, p.Name)
	}
	return strings.ToLower(strings.Join(parts, "\n"))
}
