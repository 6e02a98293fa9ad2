package domain

import "time"

// EntityRef is a coded reference to a scheduling entity with a display name.
type EntityRef struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Appointment is an immutable snapshot of one scheduled item fetched from
// the upstream scheduling system. Snapshots are never re-validated
// individually; the whole set is invalidated when its cache entry expires.
type Appointment struct {
	ID          string    `json:"id"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Provider    EntityRef `json:"provider"`
	Specialty   EntityRef `json:"specialty"`
	Payer       EntityRef `json:"payer"`
	Location    EntityRef `json:"location"`
}
