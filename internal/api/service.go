package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"waitcast/internal/core"
	"waitcast/internal/database"
	"waitcast/pkg/api"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const (
	DefaultQueryWindow   = 6 * time.Hour
	DefaultTickListLimit = 20
	MaxTickListLimit     = 200
)

// QueryDefaults fills in the model and window when a caller omits them, so
// the production model can change without touching any client.
type QueryDefaults struct {
	ModelName    string
	ModelVersion string
	Window       time.Duration
}

type QueryService struct {
	db       *gorm.DB
	registry *core.Registry
	defaults QueryDefaults
}

func NewQueryService(db *gorm.DB, registry *core.Registry, defaults QueryDefaults) *QueryService {
	if defaults.Window <= 0 {
		defaults.Window = DefaultQueryWindow
	}

	return &QueryService{db: db, registry: registry, defaults: defaults}
}

func (s *QueryService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Get("/predictions", RestHandler(s.GetPredictions))
	r.Get("/models", RestHandler(s.ListModels))
	r.Route("/ticks", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListTicks))
		r.Get("/{tick_id}", RestHandler(s.GetTick))
	})
}

func (s *QueryService) GetPredictions(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.GetPredictionsParams](r)
	if err != nil {
		return nil, err
	}

	name, version := params.ModelName, params.ModelVersion
	if name == "" {
		name = s.defaults.ModelName
	}
	if version == "" {
		version = s.defaults.ModelVersion
	}

	now := time.Now().UTC()
	from, to := now.Add(-s.defaults.Window), now
	windowDefaulted := params.FromTs == nil && params.ToTs == nil
	if params.FromTs != nil {
		from = time.Unix(*params.FromTs, 0).UTC()
	}
	if params.ToTs != nil {
		to = time.Unix(*params.ToTs, 0).UTC()
	}

	if to.Before(from) {
		return nil, CodedErrorf(http.StatusBadRequest, "from_ts %d is after to_ts %d", from.Unix(), to.Unix())
	}

	ctx := r.Context()

	predictions, err := database.GetPredictions(ctx, s.db, name, version, from, to)
	if err != nil {
		slog.Error("error querying predictions", "model", name, "version", version, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error querying predictions")
	}

	// Staleness is expected in this domain. When the caller asked for "the
	// latest" (no explicit window) and the default window is empty, serve the
	// most recent prediction instead of nothing. Explicit windows always
	// return exact results.
	if len(predictions) == 0 && windowDefaulted {
		latest, err := database.LatestPrediction(ctx, s.db, name, version)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []api.Prediction{}, nil
		}
		if err != nil {
			slog.Error("error querying latest prediction", "model", name, "version", version, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "error querying predictions")
		}
		return []api.Prediction{toApiPrediction(latest)}, nil
	}

	response := make([]api.Prediction, len(predictions))
	for i, prediction := range predictions {
		response[i] = toApiPrediction(prediction)
	}
	return response, nil
}

func (s *QueryService) ListModels(r *http.Request) (any, error) {
	return s.registry.Infos(), nil
}

func (s *QueryService) ListTicks(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListTicksParams](r)
	if err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultTickListLimit
	}
	if limit > MaxTickListLimit {
		limit = MaxTickListLimit
	}

	runs, err := database.RecentTickRuns(r.Context(), s.db, limit)
	if err != nil {
		slog.Error("error listing tick runs", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing tick runs")
	}

	response := make([]api.TickRun, len(runs))
	for i, run := range runs {
		response[i] = toApiTickRun(run)
	}
	return response, nil
}

func (s *QueryService) GetTick(r *http.Request) (any, error) {
	tickId, err := URLParamUUID(r, "tick_id")
	if err != nil {
		return nil, err
	}

	run, err := database.GetTickRun(r.Context(), s.db, tickId)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, CodedErrorf(http.StatusNotFound, "tick run not found")
	}
	if err != nil {
		slog.Error("error getting tick run", "tick_id", tickId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving tick run")
	}

	detail := api.TickRunDetail{TickRun: toApiTickRun(run)}

	if len(run.Roster) > 0 {
		if err := json.Unmarshal(run.Roster, &detail.Roster); err != nil {
			slog.Error("error decoding roster snapshot", "tick_id", tickId, "error", err)
		}
	}

	detail.Failures = make([]api.RunFailure, len(run.Failures))
	for i, failure := range run.Failures {
		detail.Failures[i] = api.RunFailure{
			ModelName:    failure.ModelName,
			ModelVersion: failure.ModelVersion,
			Stage:        failure.Stage,
			Error:        failure.Error,
			Timestamp:    failure.Timestamp,
		}
	}

	return detail, nil
}

func toApiPrediction(prediction database.Prediction) api.Prediction {
	return api.Prediction{
		Value:        prediction.WaitSeconds,
		ModelName:    prediction.ModelName,
		ModelVersion: prediction.ModelVersion,
		ProducedAt:   prediction.ProducedAt.Unix(),
	}
}

func toApiTickRun(run database.TickRun) api.TickRun {
	out := api.TickRun{
		Id:           run.Id,
		Status:       run.Status,
		StartedAt:    run.StartedAt,
		WindowFrom:   run.WindowFrom,
		WindowTo:     run.WindowTo,
		ModelCount:   run.ModelCount,
		SuccessCount: run.SuccessCount,
		FailureCount: run.FailureCount,
	}

	if run.CompletedAt.Valid {
		completedAt := run.CompletedAt.Time
		out.CompletedAt = &completedAt
	}
	if run.Error.Valid {
		out.Error = run.Error.String
	}

	return out
}
