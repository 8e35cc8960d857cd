package model

// OpType tags a queued mutation.
type OpType string

const (
	OpCreate     OpType = "create"
	OpUpdate     OpType = "update"
	OpDelete     OpType = "delete"
	OpComplete   OpType = "complete"
	OpUncomplete OpType = "uncomplete"
)

func (t OpType) Valid() bool {
	switch t {
	case OpCreate, OpUpdate, OpDelete, OpComplete, OpUncomplete:
		return true
	}
	return false
}

// SyncItem is one pending mutation in the durable operation queue. Items are
// applied in ascending Timestamp order; Retries only ever increases.
type SyncItem struct {
	ID        uint    `gorm:"primaryKey"`
	Type      OpType  `gorm:"not null"`
	TaskID    *string `gorm:"index"`
	Payload   []byte  `gorm:"column:data"`
	Timestamp int64   `gorm:"index;not null"` // unix milliseconds
	Retries   int     `gorm:"not null;default:0"`
}

func (SyncItem) TableName() string { return "sync_queue" }
