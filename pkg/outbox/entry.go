package outbox

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/fieldreport/pkg/db/models"
	"github.com/angelmondragon/fieldreport/pkg/enums"
)

// Entry is the persisted shape of a queued submission as the rest of the
// pipeline (and the local API) sees it.
type Entry struct {
	LocalID    string             `json:"localId"`
	Endpoint   string             `json:"endpoint"`
	Method     enums.HTTPMethod   `json:"method"`
	Payload    json.RawMessage    `json:"payload"`
	Timestamp  int64              `json:"timestamp"`
	Status     enums.OutboxStatus `json:"status"`
	RetryCount int                `json:"retryCount"`
	Error      *string            `json:"error,omitempty"`
}

// CreatedAt returns the entry timestamp as a time.
func (e Entry) CreatedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Patch describes a partial update. Nil fields are left untouched.
type Patch struct {
	Status         *enums.OutboxStatus
	Error          *string
	ClearError     bool
	IncrementRetry bool
}

func (p Patch) empty() bool {
	return p.Status == nil && p.Error == nil && !p.ClearError && !p.IncrementRetry
}

func statusPtr(s enums.OutboxStatus) *enums.OutboxStatus {
	return &s
}

func entryFromModel(row models.OutboxEntry) Entry {
	return Entry{
		LocalID:    row.LocalID,
		Endpoint:   row.Endpoint,
		Method:     row.Method,
		Payload:    json.RawMessage(row.Payload),
		Timestamp:  row.TimestampMS,
		Status:     row.Status,
		RetryCount: row.RetryCount,
		Error:      row.LastError,
	}
}

func modelFromEntry(e Entry) models.OutboxEntry {
	return models.OutboxEntry{
		LocalID:     e.LocalID,
		Endpoint:    e.Endpoint,
		Method:      e.Method,
		Payload:     string(e.Payload),
		TimestampMS: e.Timestamp,
		Status:      e.Status,
		RetryCount:  e.RetryCount,
		LastError:   e.Error,
	}
}
