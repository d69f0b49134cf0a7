package domain

import (
	"context"
	"time"
)

type TrackingRecord struct {
	TrackingID  string
	CampaignID  string
	RecipientID string
	Address     string
	CreatedAt   time.Time
}

type EventType string

const (
	EventSent   EventType = "sent"
	EventFailed EventType = "failed"
)

// DeliveryEvent is append-only; corrections are new events.
type DeliveryEvent struct {
	ID          string
	CampaignID  string
	RecipientID string
	Type        EventType
	Payload     map[string]string
	OccurredAt  time.Time
}

type AnalyticsSnapshot struct {
	CampaignID   string    `json:"campaignId"`
	Sent         int       `json:"sent"`
	Delivered    int       `json:"delivered"`
	Opened       int       `json:"opened"`
	Clicked      int       `json:"clicked"`
	Bounced      int       `json:"bounced"`
	Complained   int       `json:"complained"`
	Unsubscribed int       `json:"unsubscribed"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Message is one fully rendered copy of a campaign addressed to one recipient.
type Message struct {
	CampaignID  string
	RecipientID string
	TrackingID  string
	From        Sender
	To          string
	Subject     string
	HTML        string
}

// Transport hands a message to an outbound provider and returns the
// provider's message id.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}
