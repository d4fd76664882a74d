package storage

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/Shopify/sarama"

	"github.com/wetty-chat/member-service/internal/models"
)

// UpdatesStorage publishes membership change events to Kafka so the
// update fanout service can push them to connected clients. Events are
// keyed by chat id, which keeps one chat's updates on one partition.
type UpdatesStorage struct {
	cfg      *UpdatesStoreConfig
	producer sarama.SyncProducer
}

type UpdatesStoreConfig struct {
	UpdatesTopic string
}

func NewUpdatesStore(p sarama.SyncProducer, cfg *UpdatesStoreConfig) *UpdatesStorage {
	return &UpdatesStorage{
		producer: p,
		cfg:      cfg,
	}
}

type updateEnvelope struct {
	Kind  string      `json:"kind"`
	Event interface{} `json:"event"`
}

func (s *UpdatesStorage) putUpdate(chatID int64, kind string, event interface{}) error {
	bytes, err := json.Marshal(updateEnvelope{
		Kind:  kind,
		Event: event,
	})
	if err != nil {
		return err
	}

	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     s.cfg.UpdatesTopic,
		Key:       sarama.StringEncoder(strconv.FormatInt(chatID, 10)),
		Value:     sarama.ByteEncoder(bytes),
		Timestamp: time.Time{},
	})

	return err
}

func (s *UpdatesStorage) ChatCreated(update *models.ChatCreated) error {
	return s.putUpdate(update.ChatID, "chat_created", update)
}

func (s *UpdatesStorage) MemberAdded(update *models.MemberAdded) error {
	return s.putUpdate(update.ChatID, "member_added", update)
}

func (s *UpdatesStorage) MemberRemoved(update *models.MemberRemoved) error {
	return s.putUpdate(update.ChatID, "member_removed", update)
}

func (s *UpdatesStorage) MemberRoleChanged(update *models.MemberRoleChanged) error {
	return s.putUpdate(update.ChatID, "member_role_changed", update)
}
