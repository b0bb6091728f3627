package enums

import (
	"fmt"
	"strings"
)

// OutboxStatus tracks where an entry sits in the delivery lifecycle.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSyncing OutboxStatus = "syncing"
	OutboxStatusSuccess OutboxStatus = "success"
	OutboxStatusFailed  OutboxStatus = "failed"
)

var validOutboxStatuses = []OutboxStatus{
	OutboxStatusPending,
	OutboxStatusSyncing,
	OutboxStatusSuccess,
	OutboxStatusFailed,
}

// UndeliveredStatuses lists every status an entry can hold while it still waits for delivery.
var UndeliveredStatuses = []OutboxStatus{
	OutboxStatusPending,
	OutboxStatusSyncing,
	OutboxStatusFailed,
}

// IsValid reports whether the value matches a known outbox status.
func (s OutboxStatus) IsValid() bool {
	for _, candidate := range validOutboxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOutboxStatus converts raw input into OutboxStatus.
func ParseOutboxStatus(value string) (OutboxStatus, error) {
	for _, candidate := range validOutboxStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox status %q", value)
}

// HTTPMethod is the verb used to deliver an entry.
type HTTPMethod string

const (
	HTTPMethodPost HTTPMethod = "POST"
	HTTPMethodPut  HTTPMethod = "PUT"
)

var validHTTPMethods = []HTTPMethod{
	HTTPMethodPost,
	HTTPMethodPut,
}

func (m HTTPMethod) IsValid() bool {
	for _, candidate := range validHTTPMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseHTTPMethod accepts any casing and defaults an empty value to POST.
func ParseHTTPMethod(value string) (HTTPMethod, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	if trimmed == "" {
		return HTTPMethodPost, nil
	}
	for _, candidate := range validHTTPMethods {
		if string(candidate) == trimmed {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid http method %q", value)
}
