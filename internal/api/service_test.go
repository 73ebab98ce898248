package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	backend "waitcast/internal/api"
	"waitcast/internal/config"
	"waitcast/internal/core"
	"waitcast/internal/database"
	"waitcast/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

func testRegistry(t *testing.T) *core.Registry {
	registry, err := core.BuildRegistry([]config.ModelSpec{
		{Name: "moving-average", Version: "1.2.0", Kind: "moving_average", LookbackSeconds: 3600},
		{Name: "lstm", Version: "3.1.4", Kind: "remote_http", BaseURL: "http://models.internal:9000"},
	})
	require.NoError(t, err)
	return registry
}

func newTestRouter(t *testing.T, db *gorm.DB, defaults backend.QueryDefaults) chi.Router {
	service := backend.NewQueryService(db, testRegistry(t), defaults)
	router := chi.NewRouter()
	service.AddRoutes(router)
	return router
}

func get(t *testing.T, router chi.Router, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func prediction(name, version string, producedAt time.Time, value float64) *database.Prediction {
	return &database.Prediction{
		ModelName:    name,
		ModelVersion: version,
		ProducedAt:   producedAt,
		WaitSeconds:  value,
		TickId:       uuid.New(),
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, createDB(t), backend.QueryDefaults{})

	rec := get(t, router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetPredictions_ExplicitWindow(t *testing.T) {
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	db := createDB(t,
		prediction("lstm", "3.1.4", base, 120),
		prediction("lstm", "3.1.4", base.Add(15*time.Minute), 150),
		prediction("lstm", "3.1.4", base.Add(30*time.Minute), 90),
		prediction("lstm", "2.0.0", base.Add(15*time.Minute), 999),
		prediction("ets", "2.0.1", base.Add(15*time.Minute), 500),
	)

	router := newTestRouter(t, db, backend.QueryDefaults{ModelName: "ets", ModelVersion: "2.0.1"})

	target := fmt.Sprintf("/predictions?model_name=lstm&model_version=3.1.4&from_ts=%d&to_ts=%d",
		base.Unix(), base.Add(20*time.Minute).Unix())
	rec := get(t, router, target)
	require.Equal(t, http.StatusOK, rec.Code)

	var response []api.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response, 2)
	assert.Equal(t, 120.0, response[0].Value)
	assert.Equal(t, 150.0, response[1].Value)
	assert.Equal(t, "lstm", response[0].ModelName)
	assert.Equal(t, "3.1.4", response[0].ModelVersion)
	assert.Equal(t, base.Unix(), response[0].ProducedAt)

	// The external field names are a published contract.
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Contains(t, raw[0], "value")
	assert.Contains(t, raw[0], "model_name")
	assert.Contains(t, raw[0], "produced_at")
}

func TestGetPredictions_DefaultModelAndWindow(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	db := createDB(t,
		prediction("lstm", "3.1.4", now.Add(-time.Hour), 240),
		prediction("other", "1.0.0", now.Add(-time.Hour), 111),
	)

	router := newTestRouter(t, db, backend.QueryDefaults{ModelName: "lstm", ModelVersion: "3.1.4"})

	rec := get(t, router, "/predictions")
	require.Equal(t, http.StatusOK, rec.Code)

	var response []api.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response, 1)
	assert.Equal(t, 240.0, response[0].Value)
	assert.Equal(t, "lstm", response[0].ModelName)
}

func TestGetPredictions_StalenessFallback(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	db := createDB(t,
		prediction("lstm", "3.1.4", now.Add(-12*time.Hour), 300),
		prediction("lstm", "3.1.4", now.Add(-10*time.Hour), 180),
	)

	router := newTestRouter(t, db, backend.QueryDefaults{ModelName: "lstm", ModelVersion: "3.1.4"})

	// No rows inside the default window, so the most recent prediction is
	// served instead.
	rec := get(t, router, "/predictions")
	require.Equal(t, http.StatusOK, rec.Code)

	var response []api.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response, 1)
	assert.Equal(t, 180.0, response[0].Value)

	// An explicit window must return exactly what it covers, even if empty.
	target := fmt.Sprintf("/predictions?from_ts=%d&to_ts=%d", now.Add(-time.Hour).Unix(), now.Unix())
	rec = get(t, router, target)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Empty(t, response)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestGetPredictions_UnknownModelIsEmpty(t *testing.T) {
	db := createDB(t)
	router := newTestRouter(t, db, backend.QueryDefaults{ModelName: "lstm", ModelVersion: "3.1.4"})

	rec := get(t, router, "/predictions?model_name=never&model_version=v9")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestGetPredictions_InvertedWindowRejected(t *testing.T) {
	db := createDB(t)
	router := newTestRouter(t, db, backend.QueryDefaults{ModelName: "lstm", ModelVersion: "3.1.4"})

	rec := get(t, router, "/predictions?from_ts=2000&to_ts=1000")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListModels(t *testing.T) {
	router := newTestRouter(t, createDB(t), backend.QueryDefaults{})

	rec := get(t, router, "/models")
	require.Equal(t, http.StatusOK, rec.Code)

	var response []api.ModelInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.ElementsMatch(t, []api.ModelInfo{
		{Name: "moving-average", Version: "1.2.0", Kind: "moving_average"},
		{Name: "lstm", Version: "3.1.4", Kind: "remote_http", Endpoint: "http://models.internal:9000"},
	}, response)
}

func TestListTicks(t *testing.T) {
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	db := createDB(t,
		&database.TickRun{Id: uuid.New(), Status: database.TickCompleted, StartedAt: base, ModelCount: 3, SuccessCount: 3},
		&database.TickRun{Id: uuid.New(), Status: database.TickFailed, StartedAt: base.Add(15 * time.Minute), ModelCount: 3},
		&database.TickRun{Id: uuid.New(), Status: database.TickCompleted, StartedAt: base.Add(30 * time.Minute), ModelCount: 3, SuccessCount: 2, FailureCount: 1},
	)

	router := newTestRouter(t, db, backend.QueryDefaults{})

	rec := get(t, router, "/ticks")
	require.Equal(t, http.StatusOK, rec.Code)

	var response []api.TickRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response, 3)
	assert.Equal(t, base.Add(30*time.Minute).Unix(), response[0].StartedAt.Unix())
	assert.Equal(t, database.TickFailed, response[1].Status)

	rec = get(t, router, "/ticks?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Len(t, response, 2)
}

func TestGetTick(t *testing.T) {
	roster, err := json.Marshal([]api.ModelInfo{
		{Name: "moving-average", Version: "1.2.0", Kind: "moving_average"},
		{Name: "lstm", Version: "3.1.4", Kind: "remote_http"},
	})
	require.NoError(t, err)

	tickId := uuid.New()
	started := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	db := createDB(t,
		&database.TickRun{
			Id:         tickId,
			Status:     database.TickCompleted,
			StartedAt:  started,
			WindowFrom: started.Add(-24 * time.Hour),
			WindowTo:   started,
			ModelCount: 2, SuccessCount: 1, FailureCount: 1,
			Roster: datatypes.JSON(roster),
		},
		&database.RunFailure{
			TickId: tickId, FailureId: uuid.New(),
			ModelName: "lstm", ModelVersion: "3.1.4",
			Stage: database.StagePredict, Error: "request timed out",
			Timestamp: started.Add(5 * time.Second),
		},
	)

	router := newTestRouter(t, db, backend.QueryDefaults{})

	rec := get(t, router, "/ticks/"+tickId.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var response api.TickRunDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, tickId, response.Id)
	assert.Equal(t, database.TickCompleted, response.Status)
	require.Len(t, response.Roster, 2)
	assert.Equal(t, "lstm", response.Roster[1].Name)
	require.Len(t, response.Failures, 1)
	assert.Equal(t, database.StagePredict, response.Failures[0].Stage)
}

func TestGetTickNotFound(t *testing.T) {
	router := newTestRouter(t, createDB(t), backend.QueryDefaults{})

	rec := get(t, router, "/ticks/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, router, "/ticks/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
