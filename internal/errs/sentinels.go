// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store/queue/sync/server layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates malformed input (negative amounts, empty id, bad date).
	ErrValidation = errors.New("validation")

	// ErrStoreUnavailable indicates the primary storage engine could not be used.
	ErrStoreUnavailable = errors.New("storage engine unavailable")

	// ErrBackendUnavailable indicates the replay backend rejected or could not serve a call.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrLocalWrite indicates that both the immediate attempt and the local durable write failed.
	ErrLocalWrite = errors.New("local write failed")

	// ErrOffline indicates an operation that requires connectivity was attempted offline.
	ErrOffline = errors.New("offline")

	// ErrQueueCorrupt indicates the persisted pending-operation slot could not be decoded.
	ErrQueueCorrupt = errors.New("pending queue corrupt")
)
