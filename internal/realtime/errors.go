// Package realtime broadcasts hot-swap lifecycle events to the admin
// dashboard feed over the EventBus (§7 supplemented feature).
package realtime

import "errors"

var (
	// ErrEventChannelFull is returned when the event channel is full.
	ErrEventChannelFull = errors.New("event channel full")

	// ErrSubscriberClosed is returned when trying to send to a closed subscriber.
	ErrSubscriberClosed = errors.New("subscriber closed")
)
