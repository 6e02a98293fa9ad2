package domain

import "errors"

// ErrSessionNotFound is returned when a mutation targets a session that
// does not exist or has already expired. Callers must not create sessions
// implicitly through updates.
var ErrSessionNotFound = errors.New("session not found")
