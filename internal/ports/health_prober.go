package ports

import (
	"context"

	"github.com/cigrirepo/Floww/internal/domain"
)

// HealthProber issues one HTTP health-check request and reports the raw
// outcome. Assertion evaluation happens in the usecase layer.
type HealthProber interface {
	Probe(ctx context.Context, url string) domain.ProbeResult
}
