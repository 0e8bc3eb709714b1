package storage

import (
	"context"
	"time"

	"github.com/skalibog/convergd/pkg/models"
)

// Storage архив результатов сведения сигналов
type Storage interface {
	SaveResult(ctx context.Context, result *models.ConvergenceResult) error
	GetResultHistory(ctx context.Context, symbol string, since time.Time) ([]*models.ConvergenceResult, error)
	Close()
}
