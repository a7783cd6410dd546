package runner

import (
	"context"

	"github.com/torosent/loadgate/internal/metrics"
)

// OutcomeLogger logs each request outcome as it completes.
type OutcomeLogger interface {
	LogOutcome(o metrics.Outcome)
}

// loggingExecutor wraps an Executor with outcome logging.
type loggingExecutor struct {
	inner  Executor
	logger OutcomeLogger
}

// WithOutcomeLogging wraps an Executor to log every outcome.
func WithOutcomeLogging(exec Executor, logger OutcomeLogger) Executor {
	if logger == nil {
		return exec
	}
	return &loggingExecutor{
		inner:  exec,
		logger: logger,
	}
}

func (l *loggingExecutor) Execute(ctx context.Context, index int) metrics.Outcome {
	o := l.inner.Execute(ctx, index)
	l.logger.LogOutcome(o)
	return o
}
