package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/fieldreport/pkg/enums"
)

// DefaultChannel is the name both ends of the sync pipeline agree on.
const DefaultChannel = "sync-channel"

// Message is one tagged notice between the foreground agent and the
// background drain runtime.
type Message struct {
	Type    enums.SyncMessageType `json:"type"`
	LocalID string                `json:"localId,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// Channel is a duplex, best-effort message bus. Delivery is advisory: every
// consumer must reconcile against the store.
type Channel interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe returns a stream of messages that closes when ctx is done or
	// the returned cancel func is called.
	Subscribe(ctx context.Context) (<-chan Message, func(), error)
}

// Success reports an entry delivered by the background runtime.
func Success(localID string) Message {
	return Message{Type: enums.SyncMessageSuccess, LocalID: localID}
}

// Failure reports a failed background delivery.
func Failure(localID string, err error) Message {
	msg := Message{Type: enums.SyncMessageError, LocalID: localID}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}

// ProcessOutbox asks the background runtime to drain now.
func ProcessOutbox() Message {
	return Message{Type: enums.SyncMessageProcessOutbox}
}

// Validate checks the message carries what its type needs.
func (m Message) Validate() error {
	if !m.Type.IsValid() {
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	if m.Type != enums.SyncMessageProcessOutbox && m.LocalID == "" {
		return fmt.Errorf("%s message requires localId", m.Type)
	}
	return nil
}

// Decode parses and validates a wire message.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode sync message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}
