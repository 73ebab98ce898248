package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"waitcast/internal/storage"
)

// Observation snapshots are exchanged as CSV files with an
// observed_at,wait_seconds header. Timestamps are RFC3339.

var csvHeader = []string{"observed_at", "wait_seconds"}

func ReadObservations(r io.Reader) ([]Observation, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading csv header: %w", err)
	}
	if len(header) < 2 || header[0] != csvHeader[0] || header[1] != csvHeader[1] {
		return nil, fmt.Errorf("unexpected csv header: %v", header)
	}

	var observations []Observation
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading csv record: %w", err)
		}

		observedAt, err := time.Parse(time.RFC3339, record[0])
		if err != nil {
			return nil, fmt.Errorf("invalid observed_at %q: %w", record[0], err)
		}

		waitSeconds, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid wait_seconds %q: %w", record[1], err)
		}

		observations = append(observations, Observation{ObservedAt: observedAt, WaitSeconds: waitSeconds})
	}

	return observations, nil
}

func WriteObservations(w io.Writer, observations []Observation) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("error writing csv header: %w", err)
	}

	for _, obs := range observations {
		record := []string{
			obs.ObservedAt.UTC().Format(time.RFC3339),
			strconv.FormatFloat(obs.WaitSeconds, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("error writing csv record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// SnapshotKey returns the object key for a day's observation snapshot.
func SnapshotKey(prefix string, day time.Time) string {
	return fmt.Sprintf("%s%s.csv", prefix, day.UTC().Format("2006-01-02"))
}

// WriteSnapshot uploads a single day's observations to the object store.
func WriteSnapshot(ctx context.Context, store storage.ObjectStore, bucket, prefix string, day time.Time, observations []Observation) error {
	var buf bytes.Buffer
	if err := WriteObservations(&buf, observations); err != nil {
		return fmt.Errorf("error encoding snapshot for %s: %w", day.Format("2006-01-02"), err)
	}

	if err := store.PutObject(ctx, bucket, SnapshotKey(prefix, day), &buf); err != nil {
		return fmt.Errorf("error uploading snapshot for %s: %w", day.Format("2006-01-02"), err)
	}

	return nil
}
