// Package eventbus carries inventory change events and named domain events
// between the inventory collaborator and the trigger dispatcher.
package eventbus

import (
	"context"

	"github.com/stocksentry/stocksentry/pkg/types"
)

// Bus is a publish/subscribe channel for domain events. Subscribers receive
// events by name; the cancel function releases the subscription.
type Bus interface {
	Publish(ctx context.Context, event types.BusEvent) error
	Subscribe(name string) (<-chan types.BusEvent, func())
	Close() error
}
