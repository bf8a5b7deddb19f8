package audit

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mail-code-service/internal/model"
)

// Logger writes append-only audit events. A nil Logger (audit disabled)
// silently drops events; an audit write failure never fails the operation
// that triggered it.
type Logger struct {
	db *gorm.DB
}

// New creates an audit logger backed by db
func New(db *gorm.DB) *Logger {
	return &Logger{db: db}
}

// Record appends one event
func (l *Logger) Record(action, email, detail string) {
	if l == nil || l.db == nil {
		return
	}

	event := model.AuditEvent{
		EventID: uuid.NewString(),
		Action:  action,
		Email:   email,
		Detail:  detail,
	}
	if err := l.db.Create(&event).Error; err != nil {
		logrus.Warnf("Failed to record audit event %s: %v", action, err)
	}
}
