// Package inventory defines the narrow interface to the inventory
// collaborator. The rules engine reads records and mutates single fields;
// everything else about inventory storage is outside this core.
package inventory

import (
	"context"
	"errors"

	"github.com/stocksentry/stocksentry/pkg/types"
)

// ErrVersionConflict is returned by UpdateField when the caller's version
// token is stale. Update actions retry once on this before giving up.
var ErrVersionConflict = errors.New("inventory: record version conflict")

// ErrImmutableField is returned when an update targets a field the
// collaborator does not allow rules to mutate.
var ErrImmutableField = errors.New("inventory: field is not mutable")

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("inventory: record not found")

// Client is the inventory collaborator contract. The collaborator owns
// concurrency control over records; the engine passes the version token it
// last observed and handles conflicts per its retry policy.
type Client interface {
	GetRecords(ctx context.Context, filter types.RecordFilter) ([]types.Record, error)
	UpdateField(ctx context.Context, recordID, field string, value any, expectedVersion int64) error
}
