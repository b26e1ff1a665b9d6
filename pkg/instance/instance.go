package instance

import (
	"os"

	"github.com/angelmondragon/clinicops-backend/pkg/env"
)

// GetID identifies this process in logs: the Heroku dyno name, then
// WORKER_ID, then the hostname.
func GetID() string {
	if id := env.First("", "DYNO", "WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
