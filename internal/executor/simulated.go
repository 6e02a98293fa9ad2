package executor

import (
	"context"
	"sync"

	"github.com/agendahealth/consulta/internal/domain"
	"github.com/agendahealth/consulta/internal/logging"
)

// SimulatedExecutor records intended mutations without calling a scheduling
// backend. Idempotent: re-applying a recorded (action, item) pair is a no-op.
type SimulatedExecutor struct {
	mu      sync.Mutex
	applied map[string]struct{}
	log     *logging.Logger
}

// NewSimulatedExecutor creates the simulated executor.
func NewSimulatedExecutor(log *logging.Logger) *SimulatedExecutor {
	return &SimulatedExecutor{
		applied: make(map[string]struct{}),
		log:     log.Sub("executor"),
	}
}

// Apply records the mutation.
func (e *SimulatedExecutor) Apply(ctx context.Context, action domain.ActionKind, appt domain.Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := string(action) + "/" + appt.ID
	e.mu.Lock()
	_, seen := e.applied[key]
	e.applied[key] = struct{}{}
	e.mu.Unlock()

	if seen {
		e.log.Debug().Str("action", string(action)).Str("appointment", appt.ID).Msg("already applied, skipping")
		return nil
	}

	e.log.Info().
		Str("action", string(action)).
		Str("appointment", appt.ID).
		Str("provider", appt.Provider.Name).
		Msg("simulated mutation applied")
	return nil
}

// Applied reports whether the (action, item) pair has been applied.
func (e *SimulatedExecutor) Applied(action domain.ActionKind, apptID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.applied[string(action)+"/"+apptID]
	return ok
}
