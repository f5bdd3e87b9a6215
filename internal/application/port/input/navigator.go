package input

import (
	"context"

	"layout-agent/internal/domain/entity"
)

type RunRequest struct {
	URL        string
	Goal       string
	MaxActions int
}

// Navigator runs one goal-directed session. It always returns a report, even
// when the error is non-nil.
type Navigator interface {
	Run(ctx context.Context, req RunRequest) (*entity.Report, error)
}
