// Package domain holds the core types shared by the task engine:
// sessions, collected task state, appointments, and pending actions.
package domain

import "time"

// SessionStatus is the state of a task session between turns.
type SessionStatus string

const (
	StatusWaitingIdentity    SessionStatus = "waiting_for_identity"
	StatusWaitingBirthDate   SessionStatus = "waiting_for_birth_date"
	StatusWaitingAction      SessionStatus = "waiting_for_action"
	StatusConfirmingCancel   SessionStatus = "confirming_cancel"
	StatusConfirmingConfirm  SessionStatus = "confirming_confirm"
	StatusConfirmingMultiple SessionStatus = "confirming_multiple"
)

// Valid reports whether the status is one of the enumerated values.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusWaitingIdentity, StatusWaitingBirthDate, StatusWaitingAction,
		StatusConfirmingCancel, StatusConfirmingConfirm, StatusConfirmingMultiple:
		return true
	}
	return false
}

// Confirming reports whether the status is in the confirming family.
func (s SessionStatus) Confirming() bool {
	switch s {
	case StatusConfirmingCancel, StatusConfirmingConfirm, StatusConfirmingMultiple:
		return true
	}
	return false
}

// Field names used for per-field retry budgets.
const (
	FieldIdentity  = "identity"
	FieldBirthDate = "birth_date"
)

// DefaultMaxRetries bounds failed extraction attempts per field.
const DefaultMaxRetries = 3

// CollectedData is the partial task state accumulated across turns.
type CollectedData struct {
	IdentityNumber string          `json:"identityNumber,omitempty"`
	BirthDate      string          `json:"birthDate,omitempty"` // DD/MM/YYYY
	PatientCode    string          `json:"patientCode,omitempty"`
	PatientName    string          `json:"patientName,omitempty"`
	Appointments   []Appointment   `json:"appointments,omitempty"`
	PendingAction  *PendingAction  `json:"pendingAction,omitempty"`
	PendingActions []PendingAction `json:"pendingActions,omitempty"`
	InitialMessage string          `json:"initialMessage,omitempty"`
}

// DataPatch is a partial update merged into CollectedData. Nil fields are
// left untouched; ClearPending drops both pending-action forms.
type DataPatch struct {
	IdentityNumber *string
	BirthDate      *string
	PatientCode    *string
	PatientName    *string
	InitialMessage *string
	Appointments   []Appointment
	PendingAction  *PendingAction
	PendingActions []PendingAction
	ClearPending   bool
}

// Apply merges the patch into the collected data.
func (d *CollectedData) Apply(p DataPatch) {
	if p.IdentityNumber != nil {
		d.IdentityNumber = *p.IdentityNumber
	}
	if p.BirthDate != nil {
		d.BirthDate = *p.BirthDate
	}
	if p.PatientCode != nil {
		d.PatientCode = *p.PatientCode
	}
	if p.PatientName != nil {
		d.PatientName = *p.PatientName
	}
	if p.InitialMessage != nil {
		d.InitialMessage = *p.InitialMessage
	}
	if p.Appointments != nil {
		d.Appointments = p.Appointments
	}
	if p.ClearPending {
		d.PendingAction = nil
		d.PendingActions = nil
	}
	if p.PendingAction != nil {
		d.PendingAction = p.PendingAction
	}
	if p.PendingActions != nil {
		d.PendingActions = p.PendingActions
	}
}

// Session tracks one task's progress for one conversation.
type Session struct {
	ID             string         `json:"id"` // conversation id, stable across turns
	Skill          string         `json:"skill"`
	Status         SessionStatus  `json:"status"`
	Data           CollectedData  `json:"data"`
	StartedAt      time.Time      `json:"startedAt"`
	LastActivityAt time.Time      `json:"lastActivityAt"`
	MaxRetries     int            `json:"maxRetries"`
	Retries        map[string]int `json:"retries,omitempty"` // field name → failed attempts
}

// RetryCount returns the failed attempt count for a field.
func (s *Session) RetryCount(field string) int {
	return s.Retries[field]
}

// IncrementRetry bumps the failed attempt count for a field and returns
// the new value. Must be called against a freshly read session.
func (s *Session) IncrementRetry(field string) int {
	if s.Retries == nil {
		s.Retries = make(map[string]int)
	}
	s.Retries[field]++
	return s.Retries[field]
}

// Clone returns a deep copy of the session, so in-memory stores can hand
// out sessions without aliasing their internal state.
func (s *Session) Clone() *Session {
	cp := *s
	if s.Retries != nil {
		cp.Retries = make(map[string]int, len(s.Retries))
		for k, v := range s.Retries {
			cp.Retries[k] = v
		}
	}
	if s.Data.Appointments != nil {
		cp.Data.Appointments = append([]Appointment(nil), s.Data.Appointments...)
	}
	if s.Data.PendingAction != nil {
		pa := *s.Data.PendingAction
		pa.Indices = append([]int(nil), s.Data.PendingAction.Indices...)
		cp.Data.PendingAction = &pa
	}
	if s.Data.PendingActions != nil {
		cp.Data.PendingActions = make([]PendingAction, len(s.Data.PendingActions))
		for i, pa := range s.Data.PendingActions {
			cp.Data.PendingActions[i] = pa
			cp.Data.PendingActions[i].Indices = append([]int(nil), pa.Indices...)
		}
	}
	return &cp
}

// Consistent reports whether the session honors the pending-action
// invariant: pending actions are only present in a confirming status.
func (s *Session) Consistent() bool {
	if !s.Status.Valid() {
		return false
	}
	if s.Data.PendingAction != nil || len(s.Data.PendingActions) > 0 {
		return s.Status.Confirming()
	}
	return true
}
