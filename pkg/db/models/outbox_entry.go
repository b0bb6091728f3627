package models

import (
	"time"

	"github.com/angelmondragon/fieldreport/pkg/enums"
)

// OutboxEntry is one durable, not-yet-delivered submission.
type OutboxEntry struct {
	LocalID     string             `gorm:"column:local_id;primaryKey"`
	Endpoint    string             `gorm:"column:endpoint;not null"`
	Method      enums.HTTPMethod   `gorm:"column:method;not null"`
	Payload     string             `gorm:"column:payload;not null"`
	TimestampMS int64              `gorm:"column:timestamp_ms;not null"`
	EnqueuedNS  int64              `gorm:"column:enqueued_ns;not null"`
	Status      enums.OutboxStatus `gorm:"column:status;not null;default:pending"`
	RetryCount  int                `gorm:"column:retry_count;not null;default:0"`
	LastError   *string            `gorm:"column:last_error"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAtMS int64              `gorm:"column:updated_at_ms;not null"`
}

func (OutboxEntry) TableName() string {
	return "outbox_entries"
}
