package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// PathKind is the closed tagged variant over the six bus path patterns
// spec §4.4/§6 define — deliberately a sum type, not string
// comparison, at the inbox router's hot path (spec §9).
type PathKind int

const (
	PathUnknown PathKind = iota
	PathAck
	PathOutbox
	PathSnapshotTasks
	PathTask
	PathSyncRequest
)

// ParsedPath is the decomposed form of a bus path.
type ParsedPath struct {
	Kind PathKind

	// Peer is the label segment in /ack/<label>/<opId> and
	// /outbox/<label>/<opId> — either the local or the remote peer
	// label depending on direction (spec §4.4).
	Peer string
	// OpID is the decimal local opId or the opaque peer-generated
	// opId string, depending on which label matched.
	OpID string
	// TaskID is populated for PathTask.
	TaskID string
}

// OutboxPath builds /outbox/<peerLabel>/<opId> for a local op being
// published (peerLabel is the local node's own label).
func OutboxPath(peerLabel string, opID uint64) string {
	return fmt.Sprintf("/outbox/%s/%d", peerLabel, opID)
}

// OutboxPathForPeerOp builds /outbox/<peerLabel>/<opId> for a peer op
// (opaque string opId), used only to round-trip what's already on the
// bus — the local node never writes this path itself.
func OutboxPathForPeerOp(peerLabel, opID string) string {
	return fmt.Sprintf("/outbox/%s/%s", peerLabel, opID)
}

// AckPathForLocalOp builds /ack/<localLabel>/<opId> acknowledging a
// local op the peer has seen.
func AckPathForLocalOp(localLabel string, opID uint64) string {
	return fmt.Sprintf("/ack/%s/%d", localLabel, opID)
}

// AckPathForPeerOp builds /ack/<peerLabel>/<opId> acknowledging a peer
// op the local node has applied.
func AckPathForPeerOp(peerLabel, opID string) string {
	return fmt.Sprintf("/ack/%s/%s", peerLabel, opID)
}

const SnapshotPath = "/snapshot/tasks"

// TaskPath builds /tasks/<taskId> for a single incremental update.
func TaskPath(taskID string) string {
	return fmt.Sprintf("/tasks/%s", taskID)
}

const SyncRequestPath = "/sync/request"

// Parse decomposes a bus path into its kind and fields.
func Parse(path string) ParsedPath {
	segments := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(segments) == 3 && segments[0] == "ack":
		return ParsedPath{Kind: PathAck, Peer: segments[1], OpID: segments[2]}
	case len(segments) == 3 && segments[0] == "outbox":
		return ParsedPath{Kind: PathOutbox, Peer: segments[1], OpID: segments[2]}
	case len(segments) == 2 && segments[0] == "snapshot" && segments[1] == "tasks":
		return ParsedPath{Kind: PathSnapshotTasks}
	case len(segments) == 2 && segments[0] == "tasks":
		return ParsedPath{Kind: PathTask, TaskID: segments[1]}
	case len(segments) == 2 && segments[0] == "sync" && segments[1] == "request":
		return ParsedPath{Kind: PathSyncRequest}
	default:
		return ParsedPath{Kind: PathUnknown}
	}
}

// OpIDAsUint64 parses OpID as the decimal local-op form; callers use
// this only on /ack/<local>/ and /outbox/<local>/ paths where the
// opId is known to be locally assigned.
func (p ParsedPath) OpIDAsUint64() (uint64, error) {
	return strconv.ParseUint(p.OpID, 10, 64)
}
