// Package ledger scores submissions and keeps the contributor scoreboard.
package ledger

import (
	"context"

	"github.com/hazyhaar/radar/knowledge/internal/store"
)

// Points per submission outcome.
const (
	NewSitePoints = 10
	NewFilePoints = 5
	UpdatePoints  = 3
)

// Points returns the award for one submission. An update never earns the
// new-site bonus.
func Points(isNewSite, isNewFile bool) int {
	if !isNewFile {
		return UpdatePoints
	}
	if isNewSite {
		return NewFilePoints + NewSitePoints
	}
	return NewFilePoints
}

// Entry is what a submission writes to the ledger.
type Entry struct {
	ID              string
	File            *store.File
	PreviousVersion *int
	ContributorName string
	AgentType       string
	ChangeReason    string
	Points          int
	At              int64
}

// Record appends the contribution and credits the contributor inside tx.
// Both rows move together or not at all, which keeps totalPoints and
// contributionCount equal to the ledger sums.
func Record(ctx context.Context, tx *store.Tx, e Entry) (*store.Contributor, error) {
	err := tx.AppendContribution(ctx, &store.Contribution{
		ID:              e.ID,
		FileID:          e.File.ID,
		Domain:          e.File.Domain,
		FilePath:        e.File.Path,
		ContributorName: e.ContributorName,
		ChangeReason:    e.ChangeReason,
		ContentSnapshot: e.File.Content,
		PreviousVersion: e.PreviousVersion,
		NewVersion:      e.File.Version,
		PointsAwarded:   e.Points,
		CreatedAt:       e.At,
	})
	if err != nil {
		return nil, err
	}
	return tx.CreditContributor(ctx, e.ContributorName, e.AgentType, e.Points, e.At)
}
