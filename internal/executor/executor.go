// Package executor applies confirmed mutations to scheduled items.
//
// The engine is a confirmation layer in front of a separate execution
// service: the contract is per-entry and idempotent, so the shipped
// simulated implementation can be swapped for a real backend without
// touching the state machine.
package executor

import (
	"context"

	"github.com/agendahealth/consulta/internal/domain"
)

// Executor applies one confirmed action to one scheduled item.
// Implementations must be idempotent per entry: applying the same action to
// the same item twice has no further effect.
type Executor interface {
	Apply(ctx context.Context, action domain.ActionKind, appt domain.Appointment) error
}

// EntryResult reports the outcome of one applied entry, so the final
// user-facing message can distinguish partial from full success.
type EntryResult struct {
	Action      domain.ActionKind
	Appointment domain.Appointment
	Err         error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, action domain.ActionKind, appt domain.Appointment) error

func (f ExecutorFunc) Apply(ctx context.Context, action domain.ActionKind, appt domain.Appointment) error {
	return f(ctx, action, appt)
}
