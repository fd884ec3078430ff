// Package gochannel provides the in-memory transport used when the dashboard
// and a simulated supervisor share one process, and in unit tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// CreateChannel creates a GoChannel-based publisher and subscriber pair.
// Both halves are the same instance, so commands published here are visible
// to an in-process supervisor without external brokers.
func CreateChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            1000,  // Buffer size for output channels
			Persistent:                     false, // Don't persist messages after consumption
			BlockPublishUntilSubscriberAck: false, // Don't block on publish
		},
		logger,
	)

	// GoChannel implements both Publisher and Subscriber interfaces
	return pubSub, pubSub, nil
}

// CreateTestChannel creates a minimal GoChannel setup for tests, with smaller
// buffers and blocking publishes for deterministic ordering.
func CreateTestChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            10,   // Smaller buffer for tests
			Persistent:                     true, // Keep messages for inspection in tests
			BlockPublishUntilSubscriberAck: true, // Block until acknowledged for deterministic behavior
		},
		logger,
	)

	return pubSub, pubSub, nil
}
