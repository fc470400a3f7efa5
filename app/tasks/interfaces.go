package tasks

import (
	"context"

	"github.com/pagecomb/pagecomb/app/database"
)

// TaskSchedulerInterface drives background feed parsing: the periodic tick
// over due feeds, the bounded worker pool, and out-of-band manual triggers.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	TriggerManual(ctx context.Context, feedName string) (*database.ParseRun, error)
}
