package instance

import (
	"os"

	"github.com/angelmondragon/fieldreport/pkg/env"
)

const fallbackID = "device-0"

// GetID identifies this agent or worker in logs: WORKREPORT_DEVICE_ID, then
// the hostname.
func GetID() string {
	if id := env.Get("WORKREPORT_DEVICE_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
