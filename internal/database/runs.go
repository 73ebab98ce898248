package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func CreateTickRun(ctx context.Context, db *gorm.DB, run *TickRun) error {
	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		slog.Error("error creating tick run", "tick_id", run.Id, "error", err)
		return err
	}
	return nil
}

func CompleteTickRun(ctx context.Context, db *gorm.DB, tickId uuid.UUID, status string, successCount, failureCount int, errorMessage string) error {
	updates := map[string]any{
		"status":        status,
		"success_count": successCount,
		"failure_count": failureCount,
		"completed_at":  time.Now().UTC(),
	}
	if errorMessage != "" {
		updates["error"] = errorMessage
	}

	if err := db.WithContext(ctx).Model(&TickRun{Id: tickId}).Updates(updates).Error; err != nil {
		slog.Error("error updating tick run", "tick_id", tickId, "status", status, "error", err)
		return err
	}
	return nil
}

func SaveRunFailure(ctx context.Context, db *gorm.DB, tickId uuid.UUID, modelName, modelVersion, stage, errorMessage string) {
	failure := RunFailure{
		TickId:       tickId,
		FailureId:    uuid.New(),
		ModelName:    modelName,
		ModelVersion: modelVersion,
		Stage:        stage,
		Error:        errorMessage,
		Timestamp:    time.Now().UTC(),
	}

	if err := db.WithContext(ctx).Create(&failure).Error; err != nil {
		slog.Error("error saving run failure", "tick_id", tickId, "model", modelName, "error", err)
	}
}

func RecentTickRuns(ctx context.Context, db *gorm.DB, limit int) ([]TickRun, error) {
	var runs []TickRun
	if err := db.WithContext(ctx).
		Order("started_at desc").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("error querying tick runs: %w", err)
	}
	return runs, nil
}

func GetTickRun(ctx context.Context, db *gorm.DB, tickId uuid.UUID) (TickRun, error) {
	var run TickRun
	if err := db.WithContext(ctx).Preload("Failures").First(&run, "id = ?", tickId).Error; err != nil {
		return TickRun{}, err
	}
	return run, nil
}

// LastTickStart returns the start time of the most recent tick that actually
// ran, or the zero time if none has. Used to restore the tick spacing gate
// after a restart.
func LastTickStart(ctx context.Context, db *gorm.DB) (time.Time, error) {
	var run TickRun
	err := db.WithContext(ctx).
		Where("status <> ?", TickSkipped).
		Order("started_at desc").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("error querying last tick start: %w", err)
	}
	return run.StartedAt, nil
}
