// Package cmd provides shared constructors for autofx binaries.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/paullozen/autofx/pkg/channel"
	"github.com/paullozen/autofx/pkg/channel/gochannel"
	"github.com/paullozen/autofx/pkg/channel/kafka"
)

// NewEventChannel builds the supervisor event channel for the requested
// transport provider.
func NewEventChannel(provider string, logger *slog.Logger) channel.EventChannel {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), "autofx")
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return channel.NewWatermillChannel(pub, sub)
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create gochannel pub/sub: %w", err))
		}

		return channel.NewWatermillChannel(pub, sub)
	default:
		panic("Unsupported event channel provider: " + provider)
	}
}
