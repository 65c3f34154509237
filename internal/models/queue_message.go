package models

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// TradingConfiguration: кусок торгового конфига, который едет вместе с сообщением.
type TradingConfiguration struct {
	Symbol  string `json:"symbol"`
	BotName string `json:"bot_name"`
}

// QueueMessage is the envelope every bus message travels in.
type QueueMessage struct {
	MessageID string               `json:"message_id"`
	Sender    string               `json:"sender"`
	Recipient string               `json:"recipient,omitempty"`
	Payload   map[string]any       `json:"payload"`
	Trading   TradingConfiguration `json:"trading_configuration"`
	Timestamp time.Time            `json:"timestamp"`
}

func NewQueueMessage(sender, recipient string, payload map[string]any, tc TradingConfiguration) QueueMessage {
	if payload == nil {
		payload = make(map[string]any)
	}
	return QueueMessage{
		MessageID: uuid.NewString(),
		Sender:    sender,
		Recipient: recipient,
		Payload:   payload,
		Trading:   tc,
		Timestamp: time.Now().UTC(),
	}
}

// Get returns a payload value or nil.
func (m QueueMessage) Get(key string) any {
	if m.Payload == nil {
		return nil
	}
	return m.Payload[key]
}

// GetString returns a payload value as a string, "" if missing or of another type.
func (m QueueMessage) GetString(key string) string {
	s, _ := m.Get(key).(string)
	return s
}

func (m QueueMessage) ToJSON() ([]byte, error) {
	return sonic.Marshal(m)
}

func QueueMessageFromJSON(data []byte) (QueueMessage, error) {
	var m QueueMessage
	err := sonic.Unmarshal(data, &m)
	return m, err
}
