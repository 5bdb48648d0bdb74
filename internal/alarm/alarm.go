// Package alarm defines the external reminder/alarm-scheduler
// collaborator SyncCore and the maintenance scheduler call out to.
// The real scheduler (platform notification APIs, wall-clock timers)
// is explicitly out of scope (spec §1) — this package only defines
// the boundary interface and a logging stand-in implementation.
package alarm

import (
	"github.com/gofrs/uuid"
	"go.uber.org/zap"

	"github.com/tasksync/engine/internal/models"
)

// Collaborator is the boundary SyncCore and the maintenance scheduler
// talk to. Schedule/Cancel calls may repeat for the same task — spec
// §8 invariant 2 requires they be idempotent from the caller's
// perspective, so implementations must tolerate redundant calls.
type Collaborator interface {
	Schedule(task models.Task)
	Cancel(taskID uuid.UUID)
}

// LoggingCollaborator is the reference Collaborator: it does not
// schedule anything, it only records what it would have done. A real
// deployment substitutes a platform-specific implementation at
// bootstrap time without SyncCore or maintenance knowing the
// difference.
type LoggingCollaborator struct {
	log *zap.Logger
}

func NewLoggingCollaborator(log *zap.Logger) *LoggingCollaborator {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingCollaborator{log: log}
}

func (c *LoggingCollaborator) Schedule(task models.Task) {
	c.log.Debug("alarm scheduled",
		zap.String("task_id", task.ID.String()),
		zap.Bool("reminder", task.Reminder),
	)
}

func (c *LoggingCollaborator) Cancel(taskID uuid.UUID) {
	c.log.Debug("alarm cancelled", zap.String("task_id", taskID.String()))
}
