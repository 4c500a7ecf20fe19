package model

import "time"

// SyncStatus is the read-only view rendered by callers as indicators.
type SyncStatus struct {
	Online       bool
	Initialized  bool
	PendingCount int // includes FailedCount
	FailedCount  int // operations that exhausted automatic retries
	Syncing      bool
	LastSyncTime time.Time // zero if no run has confirmed anything yet
}

// HasPending reports whether any operation awaits confirmation.
func (s SyncStatus) HasPending() bool { return s.PendingCount > 0 }

// StorageInfo describes the Durable Store.
type StorageInfo struct {
	PrimaryEngine bool // false when the fallback backend is in use
	RecordCount   int
	LastWrite     time.Time // zero when unknown
}
