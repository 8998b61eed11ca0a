package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go-direct-chat/internal/interfaces"
	"go-direct-chat/internal/protocol"
	"go-direct-chat/pkg/config"
	"go-direct-chat/pkg/logger"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaHub is the Kafka-backed ConnectionManager. Locally connected users are
// served directly; payloads for users connected elsewhere are forwarded
// through the direct topic. Room membership stays instance-local.
type KafkaHub struct {
	registry   *Registry
	rooms      *RoomRouter
	producer   sarama.SyncProducer
	consumer   sarama.ConsumerGroup
	ctx        context.Context
	cancelFunc context.CancelFunc

	eventHandler interfaces.ConnectionEventHandler
	cfg          *config.KafkaConfig

	retryCount    int
	retryInterval time.Duration
}

func NewKafkaHub() (*KafkaHub, error) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := &config.GlobalConfig.Messaging.Kafka

	kConfig := sarama.NewConfig()
	kConfig.Producer.RequiredAcks = sarama.WaitForAll
	kConfig.Producer.Return.Successes = true
	kConfig.Producer.Retry.Max = 3
	kConfig.Consumer.Return.Errors = true
	kConfig.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kConfig)
	if err != nil {
		logger.L.Error("Failed to start Kafka producer", zap.Error(err))
		cancel()
		return nil, fmt.Errorf("failed to start Kafka producer: %w", err)
	}

	consumer, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, kConfig)
	if err != nil {
		logger.L.Error("Failed to start Kafka consumer group", zap.Error(err))
		producer.Close()
		cancel()
		return nil, fmt.Errorf("failed to start Kafka consumer group: %w", err)
	}

	wsConfig := config.GlobalConfig.WebSocket
	retryCount := wsConfig.MessageRetryCount
	if retryCount <= 0 {
		retryCount = 3
	}
	retryInterval := time.Duration(wsConfig.MessageRetryIntervalMs) * time.Millisecond
	if retryInterval <= 0 {
		retryInterval = 100 * time.Millisecond
	}

	hub := &KafkaHub{
		registry:      NewRegistry(),
		rooms:         NewRoomRouter(),
		producer:      producer,
		consumer:      consumer,
		ctx:           ctx,
		cancelFunc:    cancel,
		cfg:           cfg,
		retryCount:    retryCount,
		retryInterval: retryInterval,
	}

	return hub, nil
}

func (h *KafkaHub) StartConsumer() {
	go h.consumeMessages()
}

func (h *KafkaHub) Close() error {
	h.cancelFunc()

	if err := h.producer.Close(); err != nil {
		logger.L.Error("Failed to close Kafka producer", zap.Error(err))
	}
	if err := h.consumer.Close(); err != nil {
		logger.L.Error("Failed to close Kafka consumer group", zap.Error(err))
	}
	h.registry.Clear()

	return nil
}

func (h *KafkaHub) Register(client interfaces.Client) {
	userID := client.GetUserID()

	if evicted := h.registry.Put(client); evicted != nil {
		logger.L.Info("User reconnected, evicting previous connection", zap.Uint("userID", userID))
		evicted.Close()
	}
	logger.L.Info("Client registered with KafkaHub", zap.Uint("userID", userID))

	if data, err := protocol.Encode(protocol.EventConnectionSuccess, protocol.ConnectionSuccessPayload{
		UserID:      userID,
		OnlineUsers: h.registry.Users(),
	}); err == nil {
		if err := client.QueueBytes(data); err != nil {
			logger.L.Warn("Failed to queue connectionSuccess", zap.Uint("userID", userID), zap.Error(err))
		}
	}

	h.broadcastPresence(protocol.EventUserOnline, userID)

	if h.eventHandler != nil {
		go h.eventHandler.HandleUserConnected(userID)
	}
}

func (h *KafkaHub) Unregister(client interfaces.Client) {
	userID := client.GetUserID()
	if !h.registry.Remove(client) {
		return
	}
	client.Close()
	h.rooms.LeaveAll(userID)
	logger.L.Info("Client unregistered from KafkaHub", zap.Uint("userID", userID))

	h.broadcastPresence(protocol.EventUserOffline, userID)

	if h.eventHandler != nil {
		go h.eventHandler.HandleUserDisconnected(userID)
	}
}

func (h *KafkaHub) JoinRoom(userID uint, room string) {
	if !h.registry.Contains(userID) {
		return
	}
	h.rooms.Join(userID, room)
}

func (h *KafkaHub) LeaveRoom(userID uint, room string) {
	h.rooms.Leave(userID, room)
}

func (h *KafkaHub) EmitToRoom(room string, data []byte) {
	for _, userID := range h.rooms.Members(room) {
		if _, err := h.SendMessageToUser(userID, data); err != nil {
			logger.L.Warn("Failed to emit to room member",
				zap.String("room", room), zap.Uint("userID", userID), zap.Error(err))
		}
	}
}

func (h *KafkaHub) buildTopicName(messageType string) string {
	return fmt.Sprintf("%s_%s", h.cfg.TopicPrefix, messageType)
}

// SendMessageToUser delivers locally when the user is connected to this
// instance, otherwise forwards through the direct topic for whichever
// instance holds the connection.
func (h *KafkaHub) SendMessageToUser(userID uint, data []byte) (bool, error) {
	if client, ok := h.registry.Get(userID); ok {
		if err := h.queueWithRetry(client, data); err != nil {
			logger.L.Warn("Failed to queue message to local client",
				zap.Uint("targetUserID", userID), zap.Error(err))
			return false, fmt.Errorf("failed to queue message: %w", err)
		}
		return true, nil
	}

	directMsg := &KafkaDirectMessage{
		UserID:  userID,
		Payload: data,
	}

	msgBytes, err := json.Marshal(directMsg)
	if err != nil {
		return false, fmt.Errorf("failed to marshal direct message: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: h.buildTopicName("direct"),
		Value: sarama.ByteEncoder(msgBytes),
	}

	if _, _, err := h.producer.SendMessage(kafkaMsg); err != nil {
		logger.L.Error("Failed to send direct message to Kafka",
			zap.Uint("userID", userID), zap.Error(err))
		return false, fmt.Errorf("failed to send message to Kafka: %w", err)
	}

	// Forwarded, but the user may be offline everywhere.
	return false, nil
}

// queueWithRetry gives a briefly full send buffer a chance to drain, same
// policy as the in-process hub.
func (h *KafkaHub) queueWithRetry(client interfaces.Client, data []byte) error {
	err := client.QueueBytes(data)
	for i := 0; err != nil && i < h.retryCount; i++ {
		time.Sleep(h.retryInterval)
		err = client.QueueBytes(data)
	}
	return err
}

func (h *KafkaHub) IsClientConnected(userID uint) bool {
	return h.registry.Contains(userID)
}

func (h *KafkaHub) SetEventHandler(handler interfaces.ConnectionEventHandler) {
	h.eventHandler = handler
}

func (h *KafkaHub) broadcastPresence(event string, userID uint) {
	data, err := protocol.Encode(event, protocol.PresencePayload{UserID: userID})
	if err != nil {
		logger.L.Error("Failed to encode presence event", zap.String("event", event), zap.Error(err))
		return
	}

	broadcast := &KafkaBroadcastMessage{
		OriginID: userID,
		Payload:  data,
	}
	msgBytes, err := json.Marshal(broadcast)
	if err != nil {
		logger.L.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: h.buildTopicName("broadcast"),
		Value: sarama.ByteEncoder(msgBytes),
	}

	if _, _, err := h.producer.SendMessage(kafkaMsg); err != nil {
		logger.L.Error("Failed to send broadcast message to Kafka", zap.Error(err))
	}
}

func (h *KafkaHub) consumeMessages() {
	handler := &kafkaConsumerHandler{hub: h}

	topics := []string{
		h.buildTopicName("broadcast"),
		h.buildTopicName("direct"),
	}

	for {
		select {
		case <-h.ctx.Done():
			logger.L.Info("Stopping Kafka consumer")
			return
		default:
			if err := h.consumer.Consume(h.ctx, topics, handler); err != nil {
				logger.L.Error("Kafka consumer error", zap.Error(err))
				time.Sleep(5 * time.Second)
			}
		}
	}
}

// KafkaDirectMessage wraps a payload addressed to one user.
type KafkaDirectMessage struct {
	UserID  uint   `json:"user_id"`
	Payload []byte `json:"payload"`
}

// KafkaBroadcastMessage wraps a payload fanned out to everyone except its
// origin.
type KafkaBroadcastMessage struct {
	OriginID uint   `json:"origin_id"`
	Payload  []byte `json:"payload"`
}

type kafkaConsumerHandler struct {
	hub *KafkaHub
}

func (h *kafkaConsumerHandler) Setup(_ sarama.ConsumerGroupSession) error {
	return nil
}

func (h *kafkaConsumerHandler) Cleanup(_ sarama.ConsumerGroupSession) error {
	return nil
}

func (h *kafkaConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if message.Topic == h.hub.buildTopicName("broadcast") {
			h.handleBroadcastMessage(message.Value)
		} else if message.Topic == h.hub.buildTopicName("direct") {
			h.handleDirectMessage(message.Value)
		}

		session.MarkMessage(message, "")
	}
	return nil
}

func (h *kafkaConsumerHandler) handleBroadcastMessage(data []byte) {
	var broadcast KafkaBroadcastMessage
	if err := json.Unmarshal(data, &broadcast); err != nil {
		logger.L.Error("Failed to unmarshal broadcast message", zap.Error(err))
		return
	}

	for _, client := range h.hub.registry.Snapshot() {
		if client.GetUserID() == broadcast.OriginID {
			continue
		}
		if err := client.QueueBytes(broadcast.Payload); err != nil {
			logger.L.Warn("Failed to queue broadcast message to client",
				zap.Uint("userID", client.GetUserID()), zap.Error(err))
		}
	}
}

func (h *kafkaConsumerHandler) handleDirectMessage(data []byte) {
	var directMsg KafkaDirectMessage
	if err := json.Unmarshal(data, &directMsg); err != nil {
		logger.L.Error("Failed to unmarshal direct message", zap.Error(err))
		return
	}

	if client, ok := h.hub.registry.Get(directMsg.UserID); ok {
		if err := client.QueueBytes(directMsg.Payload); err != nil {
			logger.L.Warn("Failed to queue direct message to client",
				zap.Uint("userID", directMsg.UserID), zap.Error(err))
		}
	}
}
