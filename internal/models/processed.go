package models

// ProcessedOp is the idempotency-log row: set semantics, at most one row
// per remote-generated opId.
type ProcessedOp struct {
	OpID        string `gorm:"primaryKey;type:text" json:"op_id"`
	ProcessedAt int64  `gorm:"not null;index" json:"processed_at"`
}

func (ProcessedOp) TableName() string { return "processed_ops" }
