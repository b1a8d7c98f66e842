package search

import (
	"database/sql"
	"fmt"
	"strings"
)

// PgSearch implements Searcher with ILIKE queries against Postgres as the
// fallback path when Meilisearch is down or unconfigured.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgSearch) Healthy() bool {
	return true
}

func (p *PgSearch) Search(q Query) ([]Result, int, error) {
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
	pattern := "%" + q.Text + "%"

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultEntity {
		subQueries = append(subQueries, `
			SELECT 'entity'::text AS type, e.id, e.title, e.description, e.project_id, ''::text AS space
			FROM entities e
			WHERE e.project_id = $1 AND (e.title ILIKE $2 OR e.description ILIKE $2)`)
	}
	if q.FilterType == "" || q.FilterType == ResultNode {
		subQueries = append(subQueries, `
			SELECT 'node'::text AS type, n.id, n.title, n.description, c.project_id, c.space
			FROM nodes n JOIN categories c ON c.id = n.category_id
			WHERE c.project_id = $1 AND (n.title ILIKE $2 OR n.description ILIKE $2)`)
	}
	if q.FilterType == "" || q.FilterType == ResultCategory {
		subQueries = append(subQueries, `
			SELECT 'category'::text AS type, c.id, c.title, c.description, c.project_id, c.space
			FROM categories c
			WHERE c.project_id = $1 AND (c.title ILIKE $2 OR c.description ILIKE $2)`)
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	query := fmt.Sprintf(`
		WITH hits AS (%s)
		SELECT type, id, title, description, project_id, space, COUNT(*) OVER () AS total
		FROM hits ORDER BY title LIMIT $3 OFFSET $4
	`, union)

	rows, err := p.db.Query(query, q.ProjectID, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var result Result
		if err := rows.Scan(&result.Type, &result.ID, &result.Title, &result.Description,
			&result.ProjectID, &result.Space, &total); err != nil {
			return nil, 0, fmt.Errorf("scan search hit: %w", err)
		}
		results = append(results, result)
	}
	return results, total, rows.Err()
}
