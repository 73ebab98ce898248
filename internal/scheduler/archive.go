package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"waitcast/internal/dataset"
	"waitcast/internal/storage"
)

// TickArchive writes each tick's fetched dataset to the object store so
// drift investigations can replay exactly what the models saw.
type TickArchive struct {
	Store  storage.ObjectStore
	Bucket string
	Prefix string
}

// ArchiveKey avoids colons so keys stay portable across object stores and
// local filesystems.
func ArchiveKey(prefix string, tickStart time.Time) string {
	return fmt.Sprintf("%s%s.csv", prefix, tickStart.UTC().Format("2006-01-02T15-04-05Z"))
}

func (a *TickArchive) Write(ctx context.Context, tickStart time.Time, ds *dataset.Dataset) error {
	var buf bytes.Buffer
	if err := dataset.WriteObservations(&buf, ds.Observations); err != nil {
		return fmt.Errorf("error encoding tick dataset: %w", err)
	}

	return a.Store.PutObject(ctx, a.Bucket, ArchiveKey(a.Prefix, tickStart), &buf)
}
