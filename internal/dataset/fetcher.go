package dataset

import "context"

// Fetcher assembles the observation dataset for a tick's fetch window.
// Implementations must return observations in ascending time order and only
// include observations inside the window.
type Fetcher interface {
	Fetch(ctx context.Context, window TimeRange) (*Dataset, error)
}
