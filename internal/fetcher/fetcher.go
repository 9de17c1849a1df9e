// Package fetcher retrieves patient pages with bounded retry.
package fetcher

import (
	"context"
	"time"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/resilience"
)

// Lister is the single-attempt page call the fetcher retries.
type Lister interface {
	ListPatients(ctx context.Context, page, limit int) (*model.Page, error)
}

// Observer receives every attempt made by a PageFetcher. delay is the wait
// scheduled after the attempt (0 on success).
type Observer interface {
	ObserveAttempt(page, attempt int, class resilience.Class, delay time.Duration)
}
