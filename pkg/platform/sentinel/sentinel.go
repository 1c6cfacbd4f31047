package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the store
// - ErrConflict: a unique key is already taken
// - ErrStaleStamp: the presented concurrency stamp no longer matches
// - ErrTimeout: the storage transaction exceeded its deadline
// - ErrUnavailable: storage temporarily unreachable
//
// For validation errors (bad input, missing fields), use the typed errors in
// internal/identity/models.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrStaleStamp  = errors.New("stale concurrency stamp")
	ErrTimeout     = errors.New("storage timeout")
	ErrUnavailable = errors.New("storage unavailable")
)
