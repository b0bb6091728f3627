package models

import "time"

// ReceivedReport is a submission the collector accepted.
type ReceivedReport struct {
	LocalID    string    `gorm:"column:local_id;primaryKey"`
	Kind       string    `gorm:"column:kind;not null"`
	Payload    string    `gorm:"column:payload;not null"`
	ReceivedAt time.Time `gorm:"column:received_at;not null"`
}

func (ReceivedReport) TableName() string {
	return "received_reports"
}
