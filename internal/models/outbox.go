package models

// OutboxOpType is the closed tagged variant of outbound operation
// kinds carried by an outbox entry (spec §9: implementations should use
// sum types, not string comparison, at the hot path).
type OutboxOpType string

const (
	OutboxOpCreate   OutboxOpType = "CREATE"
	OutboxOpUpdate   OutboxOpType = "UPDATE"
	OutboxOpDelete   OutboxOpType = "DELETE"
	OutboxOpComplete OutboxOpType = "COMPLETE"
)

// Urgent reports whether this op type requests urgent bus delivery
// (spec §4.5): all four mutation ops are urgent, any other value is
// not (internal/outbox rate-limits sends of non-urgent entries).
func (t OutboxOpType) Urgent() bool {
	switch t {
	case OutboxOpCreate, OutboxOpUpdate, OutboxOpDelete, OutboxOpComplete:
		return true
	default:
		return false
	}
}

// OutboxState is the closed tagged variant of outbox-entry lifecycle
// states (spec §4.5).
type OutboxState string

const (
	OutboxPending OutboxState = "PENDING"
	OutboxSending OutboxState = "SENDING"
	OutboxSent    OutboxState = "SENT"
	OutboxAcked   OutboxState = "ACKED"
	OutboxFailed  OutboxState = "FAILED"
)

// OutboxEntry is a durable FIFO queue row awaiting send/ack to the peer.
type OutboxEntry struct {
	OpID uint64 `gorm:"primaryKey;autoIncrement" json:"op_id"`

	TaskID  string       `gorm:"not null;index" json:"task_id"`
	Type    OutboxOpType `gorm:"not null" json:"type"`
	Payload []byte       `json:"payload"`

	CreatedAt     int64       `gorm:"not null;index" json:"created_at"`
	Attempts      int         `gorm:"not null;default:0" json:"attempts"`
	State         OutboxState `gorm:"not null;default:'PENDING';index" json:"state"`
	LastAttemptAt int64       `json:"last_attempt_at"`
	ErrorMessage  string      `json:"error_message"`
}

func (OutboxEntry) TableName() string { return "outbox_entries" }
