package integrationtests

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"waitcast/internal/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresPredictionStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db := createDB(t)

	producedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Duplicate predictions are rejected", func(t *testing.T) {
		first := database.Prediction{
			ModelName:    "moving-average",
			ModelVersion: "1.2.0",
			ProducedAt:   producedAt,
			WaitSeconds:  180,
		}
		require.NoError(t, database.SavePrediction(ctx, db, &first))

		dup := first
		dup.WaitSeconds = 200
		err := database.SavePrediction(ctx, db, &dup)
		require.ErrorIs(t, err, database.ErrDuplicatePrediction)

		// A different version of the same model may write at the same instant.
		other := first
		other.ModelVersion = "1.3.0"
		require.NoError(t, database.SavePrediction(ctx, db, &other))

		stored, err := database.GetPredictions(ctx, db, "moving-average", "1.2.0", producedAt.Add(-time.Minute), producedAt.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, 180.0, stored[0].WaitSeconds)
	})

	t.Run("Tick run round trip", func(t *testing.T) {
		run := database.TickRun{
			Id:         uuid.New(),
			Status:     database.TickRunning,
			StartedAt:  producedAt,
			WindowFrom: producedAt.Add(-time.Hour),
			WindowTo:   producedAt,
			ModelCount: 2,
		}
		require.NoError(t, database.CreateTickRun(ctx, db, &run))

		database.SaveRunFailure(ctx, db, run.Id, "ets", "2.0.1", database.StagePredict, "smoothing diverged")
		require.NoError(t, database.CompleteTickRun(ctx, db, run.Id, database.TickCompleted, 1, 1, ""))

		stored, err := database.GetTickRun(ctx, db, run.Id)
		require.NoError(t, err)
		assert.Equal(t, database.TickCompleted, stored.Status)
		assert.Equal(t, 1, stored.SuccessCount)
		assert.Equal(t, 1, stored.FailureCount)
		assert.True(t, stored.CompletedAt.Valid)
		require.Len(t, stored.Failures, 1)
		assert.Equal(t, "ets", stored.Failures[0].ModelName)
		assert.Equal(t, database.StagePredict, stored.Failures[0].Stage)
	})

	t.Run("Last tick start ignores skipped runs", func(t *testing.T) {
		later := producedAt.Add(30 * time.Minute)
		skip := database.TickRun{
			Id:          uuid.New(),
			Status:      database.TickSkipped,
			StartedAt:   later,
			CompletedAt: sql.NullTime{Time: later, Valid: true},
			Error:       sql.NullString{String: "previous tick still running", Valid: true},
		}
		require.NoError(t, database.CreateTickRun(ctx, db, &skip))

		last, err := database.LastTickStart(ctx, db)
		require.NoError(t, err)
		assert.Equal(t, producedAt, last.UTC())
	})
}
