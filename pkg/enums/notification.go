package enums

// NotificationKind identifies a user-facing pipeline notification.
type NotificationKind string

const (
	NotificationQueuedLocally  NotificationKind = "queued_locally"
	NotificationSent           NotificationKind = "sent"
	NotificationSyncRestored   NotificationKind = "sync_restored"
	NotificationConnectionLost NotificationKind = "connection_lost"
	NotificationSyncStarted    NotificationKind = "sync_started"
	NotificationSyncFailed     NotificationKind = "sync_failed"
	NotificationDelivered      NotificationKind = "delivered"
	NotificationStorageFailed  NotificationKind = "storage_failed"
	NotificationNoConnection   NotificationKind = "no_connection"
)

// NotificationLevel mirrors toast severities.
type NotificationLevel string

const (
	NotificationLevelInfo    NotificationLevel = "info"
	NotificationLevelSuccess NotificationLevel = "success"
	NotificationLevelWarning NotificationLevel = "warning"
	NotificationLevelError   NotificationLevel = "error"
)

var notificationLevels = map[NotificationKind]NotificationLevel{
	NotificationQueuedLocally:  NotificationLevelInfo,
	NotificationSent:           NotificationLevelSuccess,
	NotificationSyncRestored:   NotificationLevelSuccess,
	NotificationConnectionLost: NotificationLevelWarning,
	NotificationSyncStarted:    NotificationLevelInfo,
	NotificationSyncFailed:     NotificationLevelError,
	NotificationDelivered:      NotificationLevelSuccess,
	NotificationStorageFailed:  NotificationLevelError,
	NotificationNoConnection:   NotificationLevelError,
}

// Level returns the severity shown for the kind.
func (k NotificationKind) Level() NotificationLevel {
	if lvl, ok := notificationLevels[k]; ok {
		return lvl
	}
	return NotificationLevelInfo
}

func (k NotificationKind) IsValid() bool {
	_, ok := notificationLevels[k]
	return ok
}
