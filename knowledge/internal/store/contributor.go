package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Contributor is the scoreboard row of one contributor name.
type Contributor struct {
	Name              string `json:"name"`
	AgentType         string `json:"agentType,omitempty"`
	TotalPoints       int    `json:"totalPoints"`
	ContributionCount int    `json:"contributionCount"`
	CreatedAt         int64  `json:"createdAt"`
	UpdatedAt         int64  `json:"updatedAt"`
}

const contributorColumns = `name, COALESCE(agent_type, ''), total_points, contribution_count, created_at, updated_at`

func scanContributor(sc interface{ Scan(...any) error }) (*Contributor, error) {
	c := &Contributor{}
	err := sc.Scan(&c.Name, &c.AgentType, &c.TotalPoints, &c.ContributionCount, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetContributor retrieves a contributor by name. Returns (nil, nil) if absent.
func (s *Store) GetContributor(ctx context.Context, name string) (*Contributor, error) {
	c, err := scanContributor(s.DB.QueryRowContext(ctx,
		`SELECT `+contributorColumns+` FROM contributors WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Leaderboard returns contributors by total points, highest first.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]*Contributor, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+contributorColumns+` FROM contributors
		ORDER BY total_points DESC, name LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Contributor{}
	for rows.Next() {
		c, err := scanContributor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreditContributor adds points and one contribution to name, creating the
// row on first use. A non-empty agentType replaces the stored one.
func (t *Tx) CreditContributor(ctx context.Context, name, agentType string, points int, now int64) (*Contributor, error) {
	c, err := scanContributor(t.tx.QueryRowContext(ctx, `
		INSERT INTO contributors (name, agent_type, total_points, contribution_count, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			total_points = total_points + excluded.total_points,
			contribution_count = contribution_count + 1,
			agent_type = COALESCE(excluded.agent_type, agent_type),
			updated_at = excluded.updated_at
		RETURNING `+contributorColumns,
		name, nullString(agentType), points, now, now))
	if err != nil {
		return nil, fmt.Errorf("store: credit contributor: %w", err)
	}
	return c, nil
}
