package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries approval_requests via plainto_tsquery and ts_rank, with
// ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const tsQuery = "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	where := "r.search_vector @@ " + tsQuery
	if q.FilterStatus != "" {
		where += fmt.Sprintf(" AND r.status = $%d", argN)
		args = append(args, q.FilterStatus)
		argN++
	}
	if q.FilterKind != "" {
		where += fmt.Sprintf(" AND r.kind = $%d", argN)
		args = append(args, q.FilterKind)
		argN++
	}

	countSQL := fmt.Sprintf(`SELECT count(*) FROM approval_requests r WHERE %s`, where)

	dataSQL := fmt.Sprintf(`
		SELECT r.id, r.title,
			ts_headline('simple', r.title, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			r.kind, r.status, r.requester_name
		FROM approval_requests r
		WHERE %s
		ORDER BY ts_rank(r.search_vector, %s) DESC
		LIMIT %d OFFSET %d`, tsQuery, where, tsQuery, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Kind, &r.Status, &r.RequesterName); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all indexable requests for full reindexing. The
// summary lives in the content repos, so reindexed records carry title
// and requester only; write-time indexing fills the rest.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]RequestRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, kind, status, requester_name
		FROM approval_requests
	`)
	if err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}
	defer rows.Close()

	records := make([]RequestRecord, 0)
	for rows.Next() {
		var rec RequestRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Kind, &rec.Status, &rec.RequesterName); err != nil {
			return nil, fmt.Errorf("scan request record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate request records: %w", err)
	}
	return records, nil
}
