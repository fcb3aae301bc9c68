package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"taskagent/pkg/metrics"
)

// PruneFunc deletes rows older than cutoff and reports how many went.
type PruneFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// RetentionJob builds a job that prunes rows older than maxAge. A zero
// maxAge keeps rows forever and the job is a no-op.
func RetentionJob(name, spec string, maxAge time.Duration, prune PruneFunc, logger *zap.Logger) Job {
	return retentionJob(name, spec, maxAge, prune, logger, time.Now)
}

func retentionJob(name, spec string, maxAge time.Duration, prune PruneFunc, logger *zap.Logger, now func() time.Time) Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Job{
		Name: name,
		Spec: spec,
		Run: func(ctx context.Context) error {
			if maxAge <= 0 {
				return nil
			}
			cutoff := now().Add(-maxAge)
			n, err := prune(ctx, cutoff)
			if err != nil {
				return err
			}
			metrics.AddRetentionPruned(name, n)
			if n > 0 {
				logger.Info("Pruned expired rows",
					zap.String("job", name),
					zap.Int64("rows", n),
					zap.Time("cutoff", cutoff),
				)
			}
			return nil
		},
	}
}
