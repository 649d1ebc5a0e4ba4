package trace

import (
	"context"
	"time"

	"docwise-ai/internal/contextutil"
)

// Step runs fn and returns its error together with the elapsed wall time.
// When enabled is true the step is also logged through the context logger;
// when false the only overhead is the timing itself. Call sites compose
// steps explicitly rather than wrapping functions at construction time.
func Step(ctx context.Context, name string, enabled bool, fn func(context.Context) error) (time.Duration, error) {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if enabled {
		logger := contextutil.LoggerFromContext(ctx)
		if err != nil {
			logger.WarnContext(ctx, "step failed", "step", name, "duration_ms", elapsed.Milliseconds(), "error", err)
		} else {
			logger.InfoContext(ctx, "step completed", "step", name, "duration_ms", elapsed.Milliseconds())
		}
	}
	return elapsed, err
}
