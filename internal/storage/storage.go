package storage

import (
	"context"

	"ammcore/internal/model"
)

// Storage defines a sink for emitted event logs.
type Storage interface {
	PutLogBatch(ctx context.Context, logs []model.LogRecord) error
}
