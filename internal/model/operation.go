package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// OpKind is the kind of a queued mutation. Save and update are replayed identically.
type OpKind string

const (
	OpSave   OpKind = "save"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Valid reports whether k is a known kind.
func (k OpKind) Valid() bool {
	switch k {
	case OpSave, OpUpdate, OpDelete:
		return true
	}
	return false
}

// PendingOperation is a queued, not-yet-confirmed mutation.
// For deletes only Data.ID is meaningful.
type PendingOperation struct {
	ID         string // operation id, "<unix ms>_<random>"
	Kind       OpKind
	Data       Record
	Timestamp  int64 // enqueue time, unix milliseconds
	RetryCount int
}

// ResourceID is the id of the record the operation targets; it is the dedup key.
func (op PendingOperation) ResourceID() string { return op.Data.ID }

// Time returns Timestamp as time.Time.
func (op PendingOperation) Time() time.Time { return time.UnixMilli(op.Timestamp) }

type deleteRef struct {
	ID string `json:"id"`
}

type wireOperation struct {
	ID         string          `json:"id"`
	Type       OpKind          `json:"type"`
	Data       json.RawMessage `json:"data"`
	Timestamp  int64           `json:"timestamp"`
	RetryCount int             `json:"retryCount"`
}

// MarshalJSON encodes the persisted slot schema: delete payloads carry only {id}.
func (op PendingOperation) MarshalJSON() ([]byte, error) {
	var payload any = op.Data
	if op.Kind == OpDelete {
		payload = deleteRef{ID: op.Data.ID}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireOperation{
		ID:         op.ID,
		Type:       op.Kind,
		Data:       data,
		Timestamp:  op.Timestamp,
		RetryCount: op.RetryCount,
	})
}

// UnmarshalJSON decodes the persisted slot schema.
func (op *PendingOperation) UnmarshalJSON(b []byte) error {
	var w wireOperation
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if !w.Type.Valid() {
		return fmt.Errorf("unknown operation type %q", w.Type)
	}
	var rec Record
	if len(w.Data) > 0 {
		if w.Type == OpDelete {
			var ref deleteRef
			if err := json.Unmarshal(w.Data, &ref); err != nil {
				return fmt.Errorf("operation %s data: %w", w.ID, err)
			}
			rec.ID = ref.ID
		} else if err := json.Unmarshal(w.Data, &rec); err != nil {
			return fmt.Errorf("operation %s data: %w", w.ID, err)
		}
	}
	if rec.ID == "" {
		return fmt.Errorf("operation %s: empty resource id", w.ID)
	}
	*op = PendingOperation{
		ID:         w.ID,
		Kind:       w.Type,
		Data:       rec,
		Timestamp:  w.Timestamp,
		RetryCount: w.RetryCount,
	}
	return nil
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// NewOperationID derives an operation identifier from the enqueue time and randomness.
func NewOperationID(now time.Time) string {
	r := strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", "")
	return fmt.Sprintf("%d_%s", now.UnixMilli(), r[:9])
}
