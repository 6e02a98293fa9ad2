// Package upstream fetches the authoritative list of a patient's scheduled
// appointments from the scheduling system.
package upstream

import (
	"context"
	"fmt"

	"github.com/agendahealth/consulta/internal/domain"
)

// Schedule is the authoritative answer for one verified identity.
type Schedule struct {
	PatientCode  string               `json:"patientCode,omitempty"`
	PatientName  string               `json:"patientName,omitempty"`
	Appointments []domain.Appointment `json:"appointments"`
}

// Source fetches scheduled appointments given verified identity fields.
// Implementations must honor context deadlines; the engine wraps every call
// in a hard timeout.
type Source interface {
	Fetch(ctx context.Context, identityNumber, birthDate string) (*Schedule, error)
}

// FetchError is a typed failure from the upstream scheduling system.
type FetchError struct {
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream fetch failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("upstream fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, identityNumber, birthDate string) (*Schedule, error)

func (f SourceFunc) Fetch(ctx context.Context, identityNumber, birthDate string) (*Schedule, error) {
	return f(ctx, identityNumber, birthDate)
}
