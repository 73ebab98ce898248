package dataset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"waitcast/internal/storage"
)

// ObjectFetcher reads daily observation snapshots from an object store. Each
// UTC day's observations live at <prefix><YYYY-MM-DD>.csv.
type ObjectFetcher struct {
	store  storage.ObjectStore
	bucket string
	prefix string
}

var _ Fetcher = (*ObjectFetcher)(nil)

func NewObjectFetcher(store storage.ObjectStore, bucket, prefix string) *ObjectFetcher {
	return &ObjectFetcher{store: store, bucket: bucket, prefix: prefix}
}

func (f *ObjectFetcher) Fetch(ctx context.Context, window TimeRange) (*Dataset, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	var observations []Observation

	day := window.From.UTC().Truncate(24 * time.Hour)
	end := window.To.UTC()
	for !day.After(end) {
		parsed, err := f.readSnapshot(ctx, SnapshotKey(f.prefix, day))
		if err != nil {
			return nil, err
		}

		for _, obs := range parsed {
			if window.Contains(obs.ObservedAt) {
				observations = append(observations, obs)
			}
		}

		day = day.AddDate(0, 0, 1)
	}

	SortObservations(observations)

	return &Dataset{Window: window, Observations: observations}, nil
}

func (f *ObjectFetcher) readSnapshot(ctx context.Context, key string) ([]Observation, error) {
	reader, err := f.store.GetObject(ctx, f.bucket, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		// Days with no snapshot contribute no observations.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching snapshot %s: %w", key, err)
	}
	defer reader.Close()

	parsed, err := ReadObservations(reader)
	if err != nil {
		return nil, fmt.Errorf("error parsing snapshot %s: %w", key, err)
	}

	return parsed, nil
}
