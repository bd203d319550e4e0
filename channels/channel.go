// Package channels holds the delivery adapters the dispatcher fans out to.
// Each adapter owns its own wire format; the dispatcher only sees a name
// and a Send that either succeeds or fails.
package channels

import (
	"context"

	"convtrack/api/models"
)

type Channel interface {
	Name() string
	Send(ctx context.Context, event *models.CanonicalEvent) error
}
