package dataset

import (
	"context"
	"fmt"

	"waitcast/internal/database"

	"gorm.io/gorm"
)

// SQLFetcher reads wait observations from the warehouse database.
type SQLFetcher struct {
	db *gorm.DB
}

var _ Fetcher = (*SQLFetcher)(nil)

func NewSQLFetcher(db *gorm.DB) *SQLFetcher {
	return &SQLFetcher{db: db}
}

func (f *SQLFetcher) Fetch(ctx context.Context, window TimeRange) (*Dataset, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	var rows []database.WaitObservation
	if err := f.db.WithContext(ctx).
		Where("observed_at >= ? AND observed_at <= ?", window.From, window.To).
		Order("observed_at asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error querying wait observations: %w", err)
	}

	observations := make([]Observation, len(rows))
	for i, row := range rows {
		observations[i] = Observation{ObservedAt: row.ObservedAt, WaitSeconds: row.WaitSeconds}
	}

	return &Dataset{Window: window, Observations: observations}, nil
}
