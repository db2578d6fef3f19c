package webhookengine

import "errors"

var (
	// ErrSubscriptionNotFound is returned when a delivery references a
	// subscription that no longer exists.
	ErrSubscriptionNotFound = errors.New("webhookengine: subscription not found")
)
