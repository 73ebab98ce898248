package integrationtests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"waitcast/internal/alerting"
	"waitcast/internal/api"
	"waitcast/internal/config"
	"waitcast/internal/core"
	"waitcast/internal/database"
	"waitcast/internal/dataset"
	"waitcast/internal/scheduler"
	capi "waitcast/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs a full tick against Postgres and reads the results back through the
// query API, the same path a production deployment takes.
func TestPredictionPipeline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db := createDB(t)

	now := time.Now().UTC()
	for i := 0; i < 24; i++ {
		obs := database.WaitObservation{
			ObservedAt:  now.Add(-time.Duration(i) * 15 * time.Minute),
			WaitSeconds: 120 + float64(i%4)*30,
		}
		require.NoError(t, db.Create(&obs).Error)
	}

	registry, err := core.BuildRegistry([]config.ModelSpec{
		{Name: "moving-average", Version: "1.2.0", Kind: "moving_average", LookbackSeconds: 21600},
		{Name: "ets", Version: "2.0.1", Kind: "ets", Alpha: 0.5, Beta: 0.3},
	})
	require.NoError(t, err)

	queue := alerting.NewInMemoryQueue()
	defer queue.Close()

	executor := scheduler.NewExecutor(db, dataset.NewSQLFetcher(db), registry, queue, scheduler.ExecutorConfig{
		TickInterval:   time.Minute,
		FetchLookback:  6 * time.Hour,
		PredictTimeout: 5 * time.Second,
		Concurrency:    2,
	})
	executor.RunTick(ctx)

	router := chi.NewRouter()
	service := api.NewQueryService(db, registry, api.QueryDefaults{
		ModelName:    "moving-average",
		ModelVersion: "1.2.0",
		Window:       time.Hour,
	})
	service.AddRoutes(router)

	var predictions []capi.Prediction
	require.NoError(t, httpRequest(router, http.MethodGet, "/predictions", &predictions))
	require.Len(t, predictions, 1)
	assert.Equal(t, "moving-average", predictions[0].ModelName)
	assert.Equal(t, "1.2.0", predictions[0].ModelVersion)
	assert.Greater(t, predictions[0].Value, 0.0)

	var etsPredictions []capi.Prediction
	require.NoError(t, httpRequest(router, http.MethodGet, "/predictions?model_name=ets&model_version=2.0.1", &etsPredictions))
	require.Len(t, etsPredictions, 1)
	assert.Greater(t, etsPredictions[0].Value, 0.0)

	var ticks []capi.TickRun
	require.NoError(t, httpRequest(router, http.MethodGet, "/ticks", &ticks))
	require.Len(t, ticks, 1)
	assert.Equal(t, database.TickCompleted, ticks[0].Status)
	assert.Equal(t, 2, ticks[0].SuccessCount)
	assert.Equal(t, 0, ticks[0].FailureCount)

	var detail capi.TickRunDetail
	require.NoError(t, httpRequest(router, http.MethodGet, "/ticks/"+ticks[0].Id.String(), &detail))
	assert.Len(t, detail.Roster, 2)
	assert.Empty(t, detail.Failures)

	// No failures, so no alert should have been published.
	select {
	case alert := <-queue.Alerts():
		t.Fatalf("unexpected alert published: %s", alert.Payload())
	default:
	}
}
