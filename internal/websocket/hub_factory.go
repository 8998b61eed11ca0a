package websocket

import (
	"errors"

	"go-direct-chat/internal/interfaces"
	"go-direct-chat/pkg/config"
	"go-direct-chat/pkg/logger"

	"go.uber.org/zap"
)

// CreateHub builds the ConnectionManager implementation selected by the
// messaging configuration.
func CreateHub() (interfaces.ConnectionManager, error) {
	provider := config.GlobalConfig.Messaging.Provider
	logger.L.Info("Creating hub with messaging provider", zap.String("provider", provider))

	switch provider {
	case "channel":
		return NewHub(), nil

	case "kafka":
		return NewKafkaHub()

	default:
		return nil, errors.New("unsupported messaging provider")
	}
}

// StartHub launches any background work the hub implementation needs.
func StartHub(hub interfaces.ConnectionManager) error {
	switch h := hub.(type) {
	case *Hub:
		return nil
	case *KafkaHub:
		h.StartConsumer()
		return nil
	default:
		return errors.New("unknown hub type")
	}
}
