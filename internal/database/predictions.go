package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var ErrDuplicatePrediction = errors.New("prediction already recorded for this model version and timestamp")

func SavePrediction(ctx context.Context, db *gorm.DB, prediction *Prediction) error {
	if err := db.WithContext(ctx).Create(prediction).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicatePrediction
		}
		return fmt.Errorf("error saving prediction: %w", err)
	}
	return nil
}

// GetPredictions returns the model version's predictions produced within
// [from, to], oldest first.
func GetPredictions(ctx context.Context, db *gorm.DB, modelName, modelVersion string, from, to time.Time) ([]Prediction, error) {
	var predictions []Prediction
	if err := db.WithContext(ctx).
		Where("model_name = ? AND model_version = ? AND produced_at >= ? AND produced_at <= ?", modelName, modelVersion, from, to).
		Order("produced_at asc").
		Find(&predictions).Error; err != nil {
		return nil, fmt.Errorf("error querying predictions: %w", err)
	}
	return predictions, nil
}

// LatestPrediction returns the most recent prediction for the model version,
// or gorm.ErrRecordNotFound if it has never produced one.
func LatestPrediction(ctx context.Context, db *gorm.DB, modelName, modelVersion string) (Prediction, error) {
	var prediction Prediction
	if err := db.WithContext(ctx).
		Where("model_name = ? AND model_version = ?", modelName, modelVersion).
		Order("produced_at desc").
		First(&prediction).Error; err != nil {
		return Prediction{}, err
	}
	return prediction, nil
}
