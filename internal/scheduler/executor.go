package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"waitcast/internal/alerting"
	"waitcast/internal/core"
	"waitcast/internal/database"
	"waitcast/internal/dataset"
	"waitcast/pkg/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultTickInterval   = 15 * time.Minute
	DefaultFetchLookback  = 24 * time.Hour
	DefaultPredictTimeout = 30 * time.Second
)

type ExecutorConfig struct {
	TickInterval   time.Duration
	FetchLookback  time.Duration
	PredictTimeout time.Duration
	Concurrency    int
}

func (c *ExecutorConfig) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.FetchLookback <= 0 {
		c.FetchLookback = DefaultFetchLookback
	}
	if c.PredictTimeout <= 0 {
		c.PredictTimeout = DefaultPredictTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}
}

// RunResult is the outcome of one model invocation within a tick. Every
// registry entry yields exactly one RunResult per tick, either a value or a
// failure attributed to a stage.
type RunResult struct {
	Identity core.Identity
	Value    float64

	Stage string
	Err   error
}

func (r RunResult) Failed() bool {
	return r.Err != nil
}

// Executor drives the prediction pipeline: on each tick it fetches the
// observation window once, runs every registered model against it in a
// bounded worker pool, persists valid predictions, and reports failures.
type Executor struct {
	db        *gorm.DB
	fetcher   dataset.Fetcher
	registry  *core.Registry
	publisher alerting.Publisher
	archive   *TickArchive

	config ExecutorConfig

	inFlight  atomic.Bool
	mu        sync.Mutex
	lastStart time.Time
}

func NewExecutor(db *gorm.DB, fetcher dataset.Fetcher, registry *core.Registry, publisher alerting.Publisher, config ExecutorConfig) *Executor {
	config.applyDefaults()

	return &Executor{
		db:        db,
		fetcher:   fetcher,
		registry:  registry,
		publisher: publisher,
		config:    config,
	}
}

// SetArchive enables writing each tick's fetched dataset to the object store.
func (e *Executor) SetArchive(archive *TickArchive) {
	e.archive = archive
}

// Run executes ticks at the configured interval until ctx is cancelled. The
// first tick fires immediately unless the previous process ran one less than
// an interval ago.
func (e *Executor) Run(ctx context.Context) {
	lastStart, err := database.LastTickStart(ctx, e.db)
	if err != nil {
		slog.Warn("could not restore last tick start", "error", err)
	} else if !lastStart.IsZero() {
		e.mu.Lock()
		e.lastStart = lastStart
		e.mu.Unlock()
		slog.Info("restored last tick start", "last_start", lastStart)
	}

	e.RunTick(ctx)

	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.RunTick(ctx)
		case <-ctx.Done():
			slog.Info("executor shutting down")
			return
		}
	}
}

// RunTick executes a single tick, or records a SKIPPED run when another tick
// is in flight or the last one started less than an interval ago.
func (e *Executor) RunTick(ctx context.Context) {
	now := time.Now().UTC().Truncate(time.Second)

	if reason := e.gate(now); reason != "" {
		e.recordSkip(ctx, now, reason)
		return
	}
	defer e.inFlight.Store(false)

	start := time.Now()
	defer func() {
		tickDuration.Observe(time.Since(start).Seconds())
	}()

	window := dataset.TimeRange{From: now.Add(-e.config.FetchLookback), To: now}

	run := &database.TickRun{
		Id:         uuid.New(),
		Status:     database.TickRunning,
		StartedAt:  now,
		WindowFrom: window.From,
		WindowTo:   window.To,
		ModelCount: e.registry.Len(),
		Roster:     rosterSnapshot(e.registry),
	}
	if err := database.CreateTickRun(ctx, e.db, run); err != nil {
		ticksFailed.Inc()
		return
	}

	slog.Info("tick started", "tick_id", run.Id, "window_from", window.From, "window_to", window.To, "models", run.ModelCount)

	ds, err := e.fetcher.Fetch(ctx, window)
	if err != nil {
		e.failTick(ctx, run, err)
		return
	}

	results := e.runModels(ctx, ds)

	successes := 0
	var failures []models.ModelFailure
	for _, result := range results {
		if !result.Failed() {
			prediction := &database.Prediction{
				ModelName:    result.Identity.Name,
				ModelVersion: result.Identity.Version,
				ProducedAt:   window.To,
				WaitSeconds:  result.Value,
				TickId:       run.Id,
			}
			if err := database.SavePrediction(ctx, e.db, prediction); err != nil {
				result.Stage = database.StagePersist
				result.Err = err
			} else {
				successes++
				modelRunsSucceeded.Inc()
				predictionsStored.Inc()
				continue
			}
		}

		modelRunsFailed.Inc()
		slog.Warn("model run failed", "tick_id", run.Id, "model", result.Identity, "stage", result.Stage, "error", result.Err)
		database.SaveRunFailure(ctx, e.db, run.Id, result.Identity.Name, result.Identity.Version, result.Stage, result.Err.Error())
		failures = append(failures, models.ModelFailure{
			ModelName:    result.Identity.Name,
			ModelVersion: result.Identity.Version,
			Stage:        result.Stage,
			Error:        result.Err.Error(),
		})
	}

	if err := database.CompleteTickRun(ctx, e.db, run.Id, database.TickCompleted, successes, len(failures), ""); err != nil {
		slog.Error("error completing tick run", "tick_id", run.Id, "error", err)
	}
	ticksCompleted.Inc()

	slog.Info("tick completed", "tick_id", run.Id, "successes", successes, "failures", len(failures), "duration", time.Since(start))

	e.publishReport(ctx, run, successes, failures)

	if e.archive != nil {
		if err := e.archive.Write(ctx, now, ds); err != nil {
			slog.Warn("error archiving tick dataset", "tick_id", run.Id, "error", err)
		}
	}
}

// gate reserves the tick slot. It returns a non-empty skip reason when the
// tick must not run, otherwise it marks the executor in flight and advances
// the last start time.
func (e *Executor) gate(now time.Time) string {
	if !e.inFlight.CompareAndSwap(false, true) {
		return "previous tick still running"
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.lastStart.IsZero() && now.Sub(e.lastStart) < e.config.TickInterval {
		e.inFlight.Store(false)
		return fmt.Sprintf("last tick started %s ago, interval is %s", now.Sub(e.lastStart), e.config.TickInterval)
	}

	e.lastStart = now
	return ""
}

func (e *Executor) recordSkip(ctx context.Context, now time.Time, reason string) {
	ticksSkipped.Inc()
	slog.Warn("tick skipped", "reason", reason)

	run := &database.TickRun{
		Id:          uuid.New(),
		Status:      database.TickSkipped,
		StartedAt:   now,
		CompletedAt: sql.NullTime{Time: now, Valid: true},
		Error:       sql.NullString{String: reason, Valid: true},
	}
	if err := database.CreateTickRun(ctx, e.db, run); err != nil {
		slog.Error("error recording skipped tick", "error", err)
	}
}

func (e *Executor) failTick(ctx context.Context, run *database.TickRun, err error) {
	ticksFailed.Inc()
	slog.Error("tick failed, no models run", "tick_id", run.Id, "error", err)

	database.SaveRunFailure(ctx, e.db, run.Id, "", "", database.StageFetch, err.Error())
	if err := database.CompleteTickRun(ctx, e.db, run.Id, database.TickFailed, 0, 1, err.Error()); err != nil {
		slog.Error("error completing failed tick run", "tick_id", run.Id, "error", err)
	}

	e.publishReport(ctx, run, 0, []models.ModelFailure{{Stage: database.StageFetch, Error: err.Error()}})
}

func (e *Executor) runModels(ctx context.Context, ds *dataset.Dataset) []RunResult {
	entries := e.registry.Entries()

	queue := make(chan core.Entry, len(entries))
	for _, entry := range entries {
		queue <- entry
	}
	close(queue)

	completed := make(chan RunResult, len(entries))
	RunInPool(func(entry core.Entry) RunResult {
		return e.invokeModel(ctx, entry, ds)
	}, queue, completed, e.config.Concurrency)

	results := make([]RunResult, 0, len(entries))
	for result := range completed {
		results = append(results, result)
	}
	return results
}

func (e *Executor) invokeModel(ctx context.Context, entry core.Entry, ds *dataset.Dataset) (result RunResult) {
	result.Identity = core.Identity{Name: entry.Spec.Name, Version: entry.Spec.Version}

	ctx, cancel := context.WithTimeout(ctx, e.config.PredictTimeout)
	defer cancel()

	// A panicking model is that model's failure, never the tick's.
	defer func() {
		if r := recover(); r != nil {
			result.Stage = database.StagePredict
			result.Err = fmt.Errorf("%w: model panicked: %v", core.ErrModelUnavailable, r)
		}
	}()

	identity, err := entry.Model.Identity(ctx)
	if err != nil {
		result.Stage = database.StageIdentity
		result.Err = fmt.Errorf("%w: %v", core.ErrModelUnavailable, err)
		return result
	}
	result.Identity = identity

	value, err := entry.Model.Predict(ctx, ds)
	if err != nil {
		result.Stage = database.StagePredict
		result.Err = fmt.Errorf("%w: %v", core.ErrModelUnavailable, err)
		return result
	}

	if err := core.ValidatePrediction(value); err != nil {
		result.Stage = database.StageValidate
		result.Err = err
		return result
	}

	result.Value = value
	return result
}

func (e *Executor) publishReport(ctx context.Context, run *database.TickRun, successes int, failures []models.ModelFailure) {
	if e.publisher == nil || len(failures) == 0 {
		return
	}

	payload := models.TickAlertPayload{
		TickId:       run.Id,
		StartedAt:    run.StartedAt,
		WindowFrom:   run.WindowFrom,
		WindowTo:     run.WindowTo,
		ModelCount:   run.ModelCount,
		SuccessCount: successes,
		FailureCount: len(failures),
		Failures:     failures,
	}

	if err := e.publisher.PublishTickAlert(ctx, payload); err != nil {
		slog.Error("error publishing tick alert", "tick_id", run.Id, "error", err)
	}
}

func rosterSnapshot(registry *core.Registry) datatypes.JSON {
	snapshot, err := json.Marshal(registry.Infos())
	if err != nil {
		slog.Error("error serializing roster snapshot", "error", err)
		return nil
	}
	return datatypes.JSON(snapshot)
}
