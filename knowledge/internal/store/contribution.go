package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/radar/dbopen"
)

// Contribution is one immutable ledger entry: a full snapshot of the
// content a submission wrote.
type Contribution struct {
	ID              string `json:"id"`
	FileID          string `json:"fileId"`
	Domain          string `json:"domain"`
	FilePath        string `json:"filePath"`
	ContributorName string `json:"contributorName"`
	ChangeReason    string `json:"changeReason"`
	ContentSnapshot string `json:"contentSnapshot"`
	PreviousVersion *int   `json:"previousVersion,omitempty"`
	NewVersion      int    `json:"newVersion"`
	PointsAwarded   int    `json:"pointsAwarded"`
	CreatedAt       int64  `json:"createdAt"`
}

const contributionColumns = `id, file_id, domain, file_path, contributor_name, change_reason,
	content_snapshot, previous_version, new_version, points_awarded, created_at`

func scanContribution(sc interface{ Scan(...any) error }) (*Contribution, error) {
	c := &Contribution{}
	var prev sql.NullInt64
	if err := sc.Scan(&c.ID, &c.FileID, &c.Domain, &c.FilePath, &c.ContributorName,
		&c.ChangeReason, &c.ContentSnapshot, &prev, &c.NewVersion, &c.PointsAwarded,
		&c.CreatedAt); err != nil {
		return nil, err
	}
	c.PreviousVersion = intPtr(prev)
	return c, nil
}

// ListContributions returns the newest contributions, optionally only
// those of one contributor.
func (s *Store) ListContributions(ctx context.Context, contributorName string, limit int) ([]*Contribution, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows *sql.Rows
	var err error
	if contributorName != "" {
		rows, err = s.DB.QueryContext(ctx, `SELECT `+contributionColumns+` FROM contributions
			WHERE contributor_name = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, contributorName, limit)
	} else {
		rows, err = s.DB.QueryContext(ctx, `SELECT `+contributionColumns+` FROM contributions
			ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContributions(rows)
}

// ListFileContributions returns the history of one file, newest version first.
func (s *Store) ListFileContributions(ctx context.Context, fileID string) ([]*Contribution, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+contributionColumns+` FROM contributions
		WHERE file_id = ? ORDER BY new_version DESC`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContributions(rows)
}

func collectContributions(rows *sql.Rows) ([]*Contribution, error) {
	out := []*Contribution{}
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AppendContribution appends a ledger entry. A duplicate (file, version)
// means another writer recorded this version first: ErrConflict.
func (t *Tx) AppendContribution(ctx context.Context, c *Contribution) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO contributions (`+contributionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FileID, c.Domain, c.FilePath, c.ContributorName, c.ChangeReason,
		c.ContentSnapshot, nullInt(c.PreviousVersion), c.NewVersion, c.PointsAwarded, c.CreatedAt)
	if dbopen.IsUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("store: append contribution: %w", err)
	}
	return nil
}
