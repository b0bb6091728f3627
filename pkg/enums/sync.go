package enums

import "fmt"

// SyncTrigger names what woke the sync coordinator.
type SyncTrigger string

const (
	SyncTriggerConnectivity SyncTrigger = "connectivity"
	SyncTriggerPeriodic     SyncTrigger = "periodic"
	SyncTriggerManual       SyncTrigger = "manual"
	SyncTriggerBackground   SyncTrigger = "background"
	SyncTriggerSubmission   SyncTrigger = "submission"
)

var validSyncTriggers = []SyncTrigger{
	SyncTriggerConnectivity,
	SyncTriggerPeriodic,
	SyncTriggerManual,
	SyncTriggerBackground,
	SyncTriggerSubmission,
}

func (t SyncTrigger) IsValid() bool {
	for _, candidate := range validSyncTriggers {
		if candidate == t {
			return true
		}
	}
	return false
}

// Automatic reports whether the trigger fired without a user asking for it.
func (t SyncTrigger) Automatic() bool {
	return t != SyncTriggerManual
}

// SyncMessageType tags messages on the broadcast channel.
type SyncMessageType string

const (
	SyncMessageSuccess       SyncMessageType = "sync_success"
	SyncMessageError         SyncMessageType = "sync_error"
	SyncMessageProcessOutbox SyncMessageType = "PROCESS_OUTBOX"
)

var validSyncMessageTypes = []SyncMessageType{
	SyncMessageSuccess,
	SyncMessageError,
	SyncMessageProcessOutbox,
}

func (m SyncMessageType) IsValid() bool {
	for _, candidate := range validSyncMessageTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseSyncMessageType converts raw input into SyncMessageType.
func ParseSyncMessageType(value string) (SyncMessageType, error) {
	for _, candidate := range validSyncMessageTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync message type %q", value)
}
