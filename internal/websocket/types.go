package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType classifies audit stream events.
type EventType string

const (
	EventTypeDetection     EventType = "detection"
	EventTypeAnonymization EventType = "anonymization"
	EventTypeConsent       EventType = "consent_change"
	EventTypeDSR           EventType = "dsr_transition"
	EventTypeSystem        EventType = "system"
)

// Event is one audit stream message. Data never contains raw PII;
// publishers send counts, ids and states only.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Client is one connected dashboard session.
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	Subscribed  map[EventType]bool // nil means all events
}

// ClientMessage is an inbound message from a dashboard client.
type ClientMessage struct {
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}

// HubStats tracks hub counters for the info endpoint.
type HubStats struct {
	TotalConnections  int64     `json:"total_connections"`
	ActiveConnections int64     `json:"active_connections"`
	TotalBroadcasts   int64     `json:"total_broadcasts"`
	LastBroadcastTime time.Time `json:"last_broadcast_time"`
}
