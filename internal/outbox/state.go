package outbox

import "github.com/tasksync/engine/internal/models"

// DefaultMaxAttempts is the implementation-defined attempt ceiling
// spec §7's UnrecoverableOutbox leaves up to the implementation: past
// this many failed sends, an entry is excluded from drain until an
// operator intervenes.
const DefaultMaxAttempts = 10

// nextFailureState decides whether a failed send should stay PENDING
// for retry or escalate to FAILED, based on how many attempts the
// entry has now accumulated (attempts is read after MarkSending's
// increment, so it already reflects the attempt that just failed).
func nextFailureState(attempts, maxAttempts int) models.OutboxState {
	if attempts >= maxAttempts {
		return models.OutboxFailed
	}
	return models.OutboxPending
}
