package output

import (
	"context"
	"errors"
	"time"

	"quiz-agent/internal/domain/entity"
)

// ErrSubmissionTimeout means the post-submission page state did not settle
// in time. Retryable, transport-class.
var ErrSubmissionTimeout = errors.New("submission wait timed out")

// SessionPort is one rendering session, exclusively owned by a single chain
// for its whole lifetime. Close must be called on every exit path.
type SessionPort interface {
	// Render navigates to url and returns the rendered page.
	Render(ctx context.Context, url string) (*entity.RenderedPage, error)

	// FillAndSubmit fills the answer field and triggers submission. An empty
	// submitSelector falls back to pressing Enter in the field.
	FillAndSubmit(ctx context.Context, fieldSelector, submitSelector, value string) error

	// WaitStable waits for the post-submission page state to settle and
	// returns it. Returns ErrSubmissionTimeout when the page does not settle
	// within timeout.
	WaitStable(ctx context.Context, timeout time.Duration) (*entity.RenderedPage, error)

	// Screenshot captures the current page as a JPEG for diagnostics.
	Screenshot(ctx context.Context) ([]byte, error)

	CurrentURL() string
	Close()
}

// SessionFactory creates one session per chain. Sessions are never shared
// between concurrent chains.
type SessionFactory interface {
	NewSession(ctx context.Context) (SessionPort, error)
}
