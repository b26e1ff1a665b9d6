package notify

import (
	"context"
	"errors"
	"strings"
)

var errPatientIDRequired = errors.New("patient id is required")

// Notifier tells downstream caches that a patient's orders changed.
type Notifier interface {
	InvalidatePatient(ctx context.Context, patientID string) error
}

// NoopNotifier drops every invalidation.
type NoopNotifier struct{}

func (NoopNotifier) InvalidatePatient(context.Context, string) error { return nil }

func cleanPatientID(patientID string) (string, error) {
	id := strings.TrimSpace(patientID)
	if id == "" {
		return "", errPatientIDRequired
	}
	return id, nil
}
