package synccore

import "errors"

var (
	// ErrTaskNotFound mirrors store.ErrNotFound at the SyncCore
	// boundary so callers don't need to import internal/store directly.
	ErrTaskNotFound = errors.New("synccore: task not found")
	// ErrMalformedDelta is returned when an inbound delta is missing a
	// required field (spec §7, MalformedInboundPayload).
	ErrMalformedDelta = errors.New("synccore: malformed inbound delta")
)
