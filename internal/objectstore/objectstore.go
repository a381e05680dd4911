// File: internal/objectstore/objectstore.go
package objectstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/config"
)

// ContentTypeJPEG is the content type of every screenshot written by the agent.
const ContentTypeJPEG = "image/jpeg"

// timestampLayout is ISO 8601 in UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Store persists binary artifacts under caller chosen keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// ScreenshotKey builds the object key for a screenshot:
// {jobID}/{label}-{isoTimestamp}.jpeg.
func ScreenshotKey(jobID int64, label string, at time.Time) string {
	return fmt.Sprintf("%d/%s-%s.jpeg", jobID, label, at.UTC().Format(timestampLayout))
}

// StepLabel is the label used for the screenshot taken at iteration step.
func StepLabel(step int) string {
	return fmt.Sprintf("step-%d", step)
}

// FinalLabel marks the screenshot captured when a job's loop exits.
const FinalLabel = "final"

// New builds the backend selected by cfg.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case config.StorageLocal:
		return NewLocal(cfg.LocalDir, logger)
	case config.StorageS3:
		return NewS3(ctx, cfg.S3, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
