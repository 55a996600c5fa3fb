package store

import "context"

// Stats counts the rows of each knowledge table.
type Stats struct {
	Sites         int `json:"sites"`
	Files         int `json:"files"`
	Contributions int `json:"contributions"`
	Contributors  int `json:"contributors"`
}

// Stats returns table counts.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM sites),
		       (SELECT COUNT(*) FROM files),
		       (SELECT COUNT(*) FROM contributions),
		       (SELECT COUNT(*) FROM contributors)`).
		Scan(&st.Sites, &st.Files, &st.Contributions, &st.Contributors)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Discrepancy is a violated ledger invariant found by Audit.
type Discrepancy struct {
	Kind     string `json:"kind"`
	Key      string `json:"key"`
	Expected int    `json:"expected"`
	Actual   int    `json:"actual"`
}

// Audit recomputes the denormalized aggregates from the ledger and reports
// every row where they disagree: contributor totals and counts, site file
// counts, and file versions whose history is not exactly 1..version.
func (s *Store) Audit(ctx context.Context) ([]Discrepancy, error) {
	checks := []struct {
		kind  string
		query string
	}{
		{"contributor_points", `
			SELECT c.name, COALESCE(SUM(k.points_awarded), 0), c.total_points
			FROM contributors c LEFT JOIN contributions k ON k.contributor_name = c.name
			GROUP BY c.name HAVING COALESCE(SUM(k.points_awarded), 0) != c.total_points`},
		{"contributor_count", `
			SELECT c.name, COUNT(k.id), c.contribution_count
			FROM contributors c LEFT JOIN contributions k ON k.contributor_name = c.name
			GROUP BY c.name HAVING COUNT(k.id) != c.contribution_count`},
		{"site_file_count", `
			SELECT s.domain, COUNT(f.id), s.file_count
			FROM sites s LEFT JOIN files f ON f.site_id = s.id
			GROUP BY s.id HAVING COUNT(f.id) != s.file_count`},
		{"file_versions", `
			SELECT f.domain || '/' || f.path, f.version, COUNT(DISTINCT k.new_version)
			FROM files f LEFT JOIN contributions k ON k.file_id = f.id
			GROUP BY f.id
			HAVING COUNT(DISTINCT k.new_version) != f.version
			    OR COUNT(k.id) != f.version
			    OR MIN(k.new_version) != 1
			    OR MAX(k.new_version) != f.version`},
	}

	out := []Discrepancy{}
	for _, c := range checks {
		rows, err := s.DB.QueryContext(ctx, c.query)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			d := Discrepancy{Kind: c.kind}
			if err := rows.Scan(&d.Key, &d.Expected, &d.Actual); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
