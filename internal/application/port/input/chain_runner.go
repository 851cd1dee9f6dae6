package input

import (
	"context"

	"quiz-agent/internal/domain/entity"
)

// ChainRunner drives one quiz chain to completion. Run never returns a nil
// result; the outcome field says how the loop ended.
type ChainRunner interface {
	Run(ctx context.Context, task entity.ChainTask) *entity.ChainResult
}
