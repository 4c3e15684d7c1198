package presence

import (
	"context"
	"encoding/json"
	"log"

	"github.com/mikepea/parley/pkg/parley/models"
)

// EventType names a live event
type EventType string

const (
	EventNewDirectMessage EventType = "new_direct_message"
	EventNewGroupMessage  EventType = "new_group_message"
)

// Event is the payload pushed to a live channel
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEvent builds an event carrying v as JSON
func NewEvent(eventType EventType, v interface{}) (Event, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: data}, nil
}

// Transport delivers an event to one channel
type Transport interface {
	Deliver(ctx context.Context, channelID string, event Event) error
}

// Notifier pushes new-message events to recipients that are online.
// Delivery is best effort: offline recipients are skipped and transport
// failures are logged, never retried.
type Notifier struct {
	registry  *Registry
	transport Transport
}

// NewNotifier creates a notifier
func NewNotifier(registry *Registry, transport Transport) *Notifier {
	return &Notifier{registry: registry, transport: transport}
}

// DirectMessageSent notifies the receiver of msg
func (n *Notifier) DirectMessageSent(ctx context.Context, msg models.DirectMessage) {
	event, err := NewEvent(EventNewDirectMessage, msg)
	if err != nil {
		log.Printf("presence: encode direct message %d: %v", msg.ID, err)
		return
	}
	n.deliver(ctx, msg.ReceiverID, event)
}

// GroupMessageSent notifies every member except the sender
func (n *Notifier) GroupMessageSent(ctx context.Context, msg models.GroupMessage, memberIDs []uint) {
	event, err := NewEvent(EventNewGroupMessage, msg)
	if err != nil {
		log.Printf("presence: encode group message %d: %v", msg.ID, err)
		return
	}
	for _, userID := range memberIDs {
		if userID == msg.SenderID {
			continue
		}
		n.deliver(ctx, userID, event)
	}
}

func (n *Notifier) deliver(ctx context.Context, userID uint, event Event) {
	channelID, ok := n.registry.Lookup(userID)
	if !ok {
		return
	}
	if err := n.transport.Deliver(ctx, channelID, event); err != nil {
		log.Printf("presence: deliver %s to user %d: %v", event.Type, userID, err)
	}
}
