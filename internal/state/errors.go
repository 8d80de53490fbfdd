package state

import "errors"

// ErrNotFound is returned when a requested resource does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrFingerprintConflict is returned when a route's stored fingerprint no
// longer matches the fingerprint the caller analyzed against. The caller is
// expected to re-run Analyze and retry; nothing was written.
var ErrFingerprintConflict = errors.New("fingerprint conflict")

// ErrIncidentClosed is returned when lifting an incident that is already inactive.
var ErrIncidentClosed = errors.New("incident already closed")
