package model

import (
	"time"
)

// AuditEvent is one append-only record of a store mutation worth keeping a
// trail for (bulk imports and exports). Rows are only ever created.
type AuditEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID   string    `json:"event_id" gorm:"type:varchar(36);not null;uniqueIndex"`
	Action    string    `json:"action" gorm:"type:varchar(32);not null;index"` // import, export
	Email     string    `json:"email" gorm:"type:varchar(255);index"`
	Detail    string    `json:"detail" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for AuditEvent
func (AuditEvent) TableName() string {
	return "audit_events"
}
