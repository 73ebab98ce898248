package scheduler_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"waitcast/internal/alerting"
	"waitcast/internal/config"
	"waitcast/internal/core"
	"waitcast/internal/database"
	"waitcast/internal/dataset"
	"waitcast/internal/scheduler"
	"waitcast/internal/storage"
	"waitcast/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type staticFetcher struct {
	observations []dataset.Observation
	err          error
}

func (f *staticFetcher) Fetch(ctx context.Context, window dataset.TimeRange) (*dataset.Dataset, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dataset.Dataset{Window: window, Observations: f.observations}, nil
}

type capturingPublisher struct {
	mu       sync.Mutex
	payloads []models.TickAlertPayload
}

func (p *capturingPublisher) PublishTickAlert(ctx context.Context, payload models.TickAlertPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *capturingPublisher) Close() {}

func (p *capturingPublisher) reports() []models.TickAlertPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.TickAlertPayload(nil), p.payloads...)
}

type stubModel struct {
	identity    core.Identity
	value       float64
	identityErr error
	predictErr  error
	panics      bool

	started chan struct{}
	release chan struct{}
}

func (m *stubModel) Identity(ctx context.Context) (core.Identity, error) {
	if m.identityErr != nil {
		return core.Identity{}, m.identityErr
	}
	return m.identity, nil
}

func (m *stubModel) Predict(ctx context.Context, ds *dataset.Dataset) (float64, error) {
	if m.started != nil {
		close(m.started)
	}
	if m.release != nil {
		<-m.release
	}
	if m.panics {
		panic("corrupted weights")
	}
	if m.predictErr != nil {
		return 0, m.predictErr
	}
	return m.value, nil
}

func entry(name, version string, model core.Model) core.Entry {
	return core.Entry{
		Spec:  config.ModelSpec{Name: name, Version: version, Kind: "stub"},
		Model: model,
	}
}

func okModel(name, version string, value float64) core.Entry {
	return entry(name, version, &stubModel{identity: core.Identity{Name: name, Version: version}, value: value})
}

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	// Concurrent model writes must all land on the same in-memory database,
	// a second pooled connection would see an empty one.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.GetMigrator(db).Migrate())

	return db
}

func newTestExecutor(db *gorm.DB, fetcher dataset.Fetcher, publisher alerting.Publisher, entries ...core.Entry) *scheduler.Executor {
	return scheduler.NewExecutor(db, fetcher, core.NewRegistry(entries...), publisher, scheduler.ExecutorConfig{
		TickInterval:   time.Minute,
		FetchLookback:  time.Hour,
		PredictTimeout: 5 * time.Second,
		Concurrency:    4,
	})
}

func someObservations() []dataset.Observation {
	start := time.Now().UTC().Add(-30 * time.Minute)
	return []dataset.Observation{
		{ObservedAt: start, WaitSeconds: 100},
		{ObservedAt: start.Add(10 * time.Minute), WaitSeconds: 110},
		{ObservedAt: start.Add(20 * time.Minute), WaitSeconds: 120},
	}
}

func storedPredictions(t *testing.T, db *gorm.DB, name, version string) []database.Prediction {
	predictions, err := database.GetPredictions(context.Background(), db, name, version,
		time.Now().UTC().Add(-2*time.Hour), time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	return predictions
}

func singleRun(t *testing.T, db *gorm.DB) database.TickRun {
	runs, err := database.RecentTickRuns(context.Background(), db, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return runs[0]
}

func TestTickPersistsSuccessesDespiteFailures(t *testing.T) {
	db := createDB(t)
	publisher := &capturingPublisher{}
	fetcher := &staticFetcher{observations: someObservations()}

	executor := newTestExecutor(db, fetcher, publisher,
		okModel("a", "v1", 120),
		entry("b", "v1", &stubModel{
			identity:   core.Identity{Name: "b", Version: "v1"},
			predictErr: errors.New("request timed out"),
		}),
	)

	executor.RunTick(context.Background())

	predictions := storedPredictions(t, db, "a", "v1")
	require.Len(t, predictions, 1)
	assert.Equal(t, 120.0, predictions[0].WaitSeconds)
	assert.Empty(t, storedPredictions(t, db, "b", "v1"))

	run := singleRun(t, db)
	assert.Equal(t, database.TickCompleted, run.Status)
	assert.Equal(t, 2, run.ModelCount)
	assert.Equal(t, 1, run.SuccessCount)
	assert.Equal(t, 1, run.FailureCount)
	assert.NotEmpty(t, run.Roster)

	detail, err := database.GetTickRun(context.Background(), db, run.Id)
	require.NoError(t, err)
	require.Len(t, detail.Failures, 1)
	assert.Equal(t, "b", detail.Failures[0].ModelName)
	assert.Equal(t, database.StagePredict, detail.Failures[0].Stage)

	reports := publisher.reports()
	require.Len(t, reports, 1)
	assert.Equal(t, run.Id, reports[0].TickId)
	assert.Equal(t, 1, reports[0].SuccessCount)
	require.Len(t, reports[0].Failures, 1)
	assert.Equal(t, "b", reports[0].Failures[0].ModelName)
}

func TestFetchFailureFailsTick(t *testing.T) {
	db := createDB(t)
	publisher := &capturingPublisher{}
	fetcher := &staticFetcher{err: errors.New("warehouse unreachable")}

	executor := newTestExecutor(db, fetcher, publisher, okModel("a", "v1", 120))

	executor.RunTick(context.Background())

	assert.Empty(t, storedPredictions(t, db, "a", "v1"))

	run := singleRun(t, db)
	assert.Equal(t, database.TickFailed, run.Status)
	assert.True(t, run.Error.Valid)
	assert.Contains(t, run.Error.String, "warehouse unreachable")

	detail, err := database.GetTickRun(context.Background(), db, run.Id)
	require.NoError(t, err)
	require.Len(t, detail.Failures, 1)
	assert.Equal(t, database.StageFetch, detail.Failures[0].Stage)

	reports := publisher.reports()
	require.Len(t, reports, 1)
	assert.Equal(t, 0, reports[0].SuccessCount)
	assert.Equal(t, database.StageFetch, reports[0].Failures[0].Stage)
}

func TestPanickingModelIsIsolated(t *testing.T) {
	db := createDB(t)
	publisher := &capturingPublisher{}
	fetcher := &staticFetcher{observations: someObservations()}

	executor := newTestExecutor(db, fetcher, publisher,
		okModel("a", "v1", 95),
		entry("b", "v1", &stubModel{identity: core.Identity{Name: "b", Version: "v1"}, panics: true}),
	)

	executor.RunTick(context.Background())

	require.Len(t, storedPredictions(t, db, "a", "v1"), 1)

	run := singleRun(t, db)
	assert.Equal(t, database.TickCompleted, run.Status)
	assert.Equal(t, 1, run.FailureCount)

	detail, err := database.GetTickRun(context.Background(), db, run.Id)
	require.NoError(t, err)
	require.Len(t, detail.Failures, 1)
	assert.Equal(t, database.StagePredict, detail.Failures[0].Stage)
	assert.Contains(t, detail.Failures[0].Error, "panicked")
}

func TestInvalidPredictionNotPersisted(t *testing.T) {
	db := createDB(t)
	fetcher := &staticFetcher{observations: someObservations()}

	executor := newTestExecutor(db, fetcher, &capturingPublisher{},
		entry("nan", "v1", &stubModel{identity: core.Identity{Name: "nan", Version: "v1"}, value: math.NaN()}),
		entry("negative", "v1", &stubModel{identity: core.Identity{Name: "negative", Version: "v1"}, value: -5}),
	)

	executor.RunTick(context.Background())

	assert.Empty(t, storedPredictions(t, db, "nan", "v1"))
	assert.Empty(t, storedPredictions(t, db, "negative", "v1"))

	run := singleRun(t, db)
	assert.Equal(t, database.TickCompleted, run.Status)
	assert.Equal(t, 0, run.SuccessCount)
	assert.Equal(t, 2, run.FailureCount)

	detail, err := database.GetTickRun(context.Background(), db, run.Id)
	require.NoError(t, err)
	for _, failure := range detail.Failures {
		assert.Equal(t, database.StageValidate, failure.Stage)
	}
}

func TestIdentityCollisionIsPersistFailure(t *testing.T) {
	db := createDB(t)
	fetcher := &staticFetcher{observations: someObservations()}

	// Two roster entries resolving to the same identity race on the same
	// composite key. Exactly one row survives.
	shared := core.Identity{Name: "dup", Version: "v1"}
	executor := newTestExecutor(db, fetcher, &capturingPublisher{},
		entry("dup", "v1", &stubModel{identity: shared, value: 100}),
		entry("dup-shadow", "v1", &stubModel{identity: shared, value: 200}),
	)

	executor.RunTick(context.Background())

	require.Len(t, storedPredictions(t, db, "dup", "v1"), 1)

	run := singleRun(t, db)
	assert.Equal(t, 1, run.SuccessCount)
	assert.Equal(t, 1, run.FailureCount)

	detail, err := database.GetTickRun(context.Background(), db, run.Id)
	require.NoError(t, err)
	require.Len(t, detail.Failures, 1)
	assert.Equal(t, database.StagePersist, detail.Failures[0].Stage)
	assert.Contains(t, detail.Failures[0].Error, "already recorded")
}

func TestIdentityFailureAttributedToDeclaredModel(t *testing.T) {
	db := createDB(t)
	fetcher := &staticFetcher{observations: someObservations()}

	executor := newTestExecutor(db, fetcher, &capturingPublisher{},
		entry("remote", "v2", &stubModel{identityErr: errors.New("metadata endpoint down")}),
	)

	executor.RunTick(context.Background())

	run := singleRun(t, db)
	detail, err := database.GetTickRun(context.Background(), db, run.Id)
	require.NoError(t, err)
	require.Len(t, detail.Failures, 1)
	assert.Equal(t, "remote", detail.Failures[0].ModelName)
	assert.Equal(t, "v2", detail.Failures[0].ModelVersion)
	assert.Equal(t, database.StageIdentity, detail.Failures[0].Stage)
}

func TestOverlappingTickSkipped(t *testing.T) {
	db := createDB(t)
	fetcher := &staticFetcher{observations: someObservations()}

	blocking := &stubModel{
		identity: core.Identity{Name: "slow", Version: "v1"},
		value:    42,
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	executor := newTestExecutor(db, fetcher, &capturingPublisher{}, entry("slow", "v1", blocking))

	done := make(chan struct{})
	go func() {
		defer close(done)
		executor.RunTick(context.Background())
	}()

	<-blocking.started
	executor.RunTick(context.Background())
	close(blocking.release)
	<-done

	runs, err := database.RecentTickRuns(context.Background(), db, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	statuses := []string{runs[0].Status, runs[1].Status}
	assert.Contains(t, statuses, database.TickCompleted)
	assert.Contains(t, statuses, database.TickSkipped)

	for _, run := range runs {
		if run.Status == database.TickSkipped {
			assert.True(t, run.Error.Valid)
			assert.NotEmpty(t, run.Error.String)
		}
	}
}

func TestTickSpacingSkip(t *testing.T) {
	db := createDB(t)
	fetcher := &staticFetcher{observations: someObservations()}

	executor := newTestExecutor(db, fetcher, &capturingPublisher{}, okModel("a", "v1", 60))

	executor.RunTick(context.Background())
	executor.RunTick(context.Background())

	runs, err := database.RecentTickRuns(context.Background(), db, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	skipped := 0
	for _, run := range runs {
		if run.Status == database.TickSkipped {
			skipped++
		}
	}
	assert.Equal(t, 1, skipped)
}

func TestNoAlertWhenAllModelsSucceed(t *testing.T) {
	db := createDB(t)
	publisher := &capturingPublisher{}
	fetcher := &staticFetcher{observations: someObservations()}

	executor := newTestExecutor(db, fetcher, publisher, okModel("a", "v1", 120))

	executor.RunTick(context.Background())

	run := singleRun(t, db)
	assert.Equal(t, database.TickCompleted, run.Status)
	assert.Empty(t, publisher.reports())
}

func TestTickArchiveWritesDataset(t *testing.T) {
	db := createDB(t)
	fetcher := &staticFetcher{observations: someObservations()}

	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.CreateBucket(context.Background(), "archive"))

	executor := newTestExecutor(db, fetcher, &capturingPublisher{}, okModel("a", "v1", 120))
	executor.SetArchive(&scheduler.TickArchive{Store: store, Bucket: "archive", Prefix: "ticks/"})

	executor.RunTick(context.Background())

	objects, err := store.ListObjects(context.Background(), "archive", "ticks/")
	require.NoError(t, err)
	require.Len(t, objects, 1)

	reader, err := store.GetObject(context.Background(), "archive", objects[0].Name)
	require.NoError(t, err)
	defer reader.Close()

	archived, err := dataset.ReadObservations(reader)
	require.NoError(t, err)
	require.Len(t, archived, 3)
	assert.Equal(t, 110.0, archived[1].WaitSeconds)
}
