package domain

import (
	"time"
)

// EventType names an event stream on the bus.
type EventType string

const (
	EventGatewayConnected    EventType = "gateway.connected"
	EventGatewayDisconnected EventType = "gateway.disconnected"
	EventOrderSubmitted      EventType = "order.submitted"
	EventOrderCanceled       EventType = "order.canceled"
	EventTrade               EventType = "trade"
	EventPositionUpdate      EventType = "position.update"
	EventAccountUpdate       EventType = "account.update"
	EventGatewayError        EventType = "gateway.error"
	EventAlertFired          EventType = "alert.fired"
	EventAlertResolved       EventType = "alert.resolved"
)

// Event is the in-process envelope. It is never serialized externally.
type Event struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewEvent(eventType EventType, payload interface{}) Event {
	return Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
