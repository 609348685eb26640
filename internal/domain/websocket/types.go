// internal/domain/websocket/types.go
package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType represents different real-time event types
type EventType string

const (
	// Connection events
	EventTypePing         EventType = "ping"
	EventTypePong         EventType = "pong"
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypeError        EventType = "error"

	// License events (server -> client)
	EventTypeLicenseIssued        EventType = "license:issued"
	EventTypeLicenseStatusChanged EventType = "license:status_changed"
	EventTypeLicenseDeleted       EventType = "license:deleted"
	EventTypeLicenseExpiring      EventType = "license:expiring"

	// Activation events (server -> client)
	EventTypeDomainActivated    EventType = "license:activated"
	EventTypeDomainDeactivated  EventType = "license:deactivated"
	EventTypeDomainLimitReached EventType = "license:limit_reached"

	// Activation queries (client -> server)
	EventTypeActivationList EventType = "activation:list"

	// Subscription events
	EventTypeSubscribe   EventType = "subscribe"
	EventTypeUnsubscribe EventType = "unsubscribe"
)

// WSMessage is the universal message format
type WSMessage struct {
	Type      EventType              `json:"type"`
	Data      interface{}            `json:"data,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	ID        string                 `json:"id,omitempty"`
}

// Subscription channels that clients can subscribe to
type ChannelType string

const (
	ChannelLicenses    ChannelType = "licenses"
	ChannelActivations ChannelType = "activations"
	ChannelExpiry      ChannelType = "expiry"
)

// AllChannels lists every channel a client may subscribe to.
func AllChannels() []ChannelType {
	return []ChannelType{ChannelLicenses, ChannelActivations, ChannelExpiry}
}

func KnownChannel(ch ChannelType) bool {
	for _, c := range AllChannels() {
		if c == ch {
			return true
		}
	}
	return false
}

// ChannelFor returns the channel an event is delivered on.
func ChannelFor(eventType EventType) ChannelType {
	switch eventType {
	case EventTypeDomainActivated, EventTypeDomainDeactivated, EventTypeDomainLimitReached:
		return ChannelActivations
	case EventTypeLicenseExpiring:
		return ChannelExpiry
	}
	return ChannelLicenses
}

// SubscribeRequest sent by client to subscribe to specific channels
type SubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

// UnsubscribeRequest sent by client to unsubscribe from channels
type UnsubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

// ErrorData for error events
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// LicenseEventData describes a change to a license or its activations.
type LicenseEventData struct {
	LicenseID  int64      `json:"license_id"`
	LicenseKey string     `json:"license_key,omitempty"`
	UserID     int64      `json:"user_id,omitempty"`
	Status     string     `json:"status,omitempty"`
	Previous   string     `json:"previous_status,omitempty"`
	Domain     string     `json:"domain,omitempty"`
	Used       *int       `json:"used,omitempty"`
	Limit      *int       `json:"limit,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Helper to create messages
func NewMessage(eventType EventType, data interface{}) *WSMessage {
	return &WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		ID:        ulid.Make().String(),
	}
}

func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Decode copies the message payload into target.
func (m *WSMessage) Decode(target interface{}) error {
	if m.Data == nil {
		return fmt.Errorf("message %s has no data", m.Type)
	}
	raw, err := json.Marshal(m.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

func ParseMessage(data []byte) (*WSMessage, error) {
	var msg WSMessage
	err := json.Unmarshal(data, &msg)
	return &msg, err
}
