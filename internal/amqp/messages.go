package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// RoutingKey is used for every dataset notification.
const RoutingKey = "dataset.changed"

// DatasetChangedMessage tells consumers the backing store changed and the
// dataset should be reloaded. It carries no data; consumers re-read the source.
type DatasetChangedMessage struct {
	Source    string    `json:"source"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDatasetChangedMessage stamps a notification with the current time.
func NewDatasetChangedMessage(source, reason string) *DatasetChangedMessage {
	return &DatasetChangedMessage{
		Source:    source,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

func (m *DatasetChangedMessage) Validate() error {
	if m.Source == "" {
		return errors.New("missing source")
	}
	if m.Timestamp.IsZero() {
		return errors.New("missing timestamp")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *DatasetChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DatasetChangedMessageFromJSON decodes and validates a message.
func DatasetChangedMessageFromJSON(data []byte) (*DatasetChangedMessage, error) {
	var msg DatasetChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
