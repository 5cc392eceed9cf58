// Package jobs runs background work on asynq.
package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionPurge is the task type for deleting expired sessions.
	TaskSessionPurge = "session:purge"
)

// NewSessionPurgeTask constructs the purge task. It carries no payload.
func NewSessionPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionPurge, nil)
}
