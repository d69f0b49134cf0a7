package domain

import "time"

type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "draft"
	StatusSending   CampaignStatus = "sending"
	StatusCompleted CampaignStatus = "completed"
	StatusPartial   CampaignStatus = "partial"
	StatusFailed    CampaignStatus = "failed"
)

func (s CampaignStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// CanTransitionTo reports whether next is the immediate successor of s.
// Statuses only move forward: draft -> sending -> one terminal status.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	switch s {
	case StatusDraft:
		return next == StatusSending
	case StatusSending:
		return next.IsTerminal()
	default:
		return false
	}
}

// TerminalStatus picks the end state of a run from its send counts.
func TerminalStatus(sent, failed int) CampaignStatus {
	switch {
	case sent == 0:
		return StatusFailed
	case failed > 0:
		return StatusPartial
	default:
		return StatusCompleted
	}
}

type Sender struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Content is a subject/body pair, either a template or a rendered copy of one.
type Content struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Campaign struct {
	ID           string   `json:"id"`
	Content      Content  `json:"content"`
	Sender       Sender   `json:"sender"`
	RecipientIDs []string `json:"recipientIds"`
	SegmentIDs   []string `json:"segmentIds"`
	// CustomTokens maps recipient id -> token name -> value.
	CustomTokens    map[string]map[string]string `json:"customTokens,omitempty"`
	Status          CampaignStatus               `json:"status"`
	SentDate        *time.Time                   `json:"sentDate,omitempty"`
	TotalRecipients *int                         `json:"totalRecipients,omitempty"`
}

// Recipient is a read-only view of a customer record.
type Recipient struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Unsubscribed bool   `json:"unsubscribed"`
}

type DispatchSummary struct {
	CampaignID string         `json:"campaignId"`
	Status     CampaignStatus `json:"status"`
	Sent       int            `json:"sent"`
	Failed     int            `json:"failed"`
	Total      int            `json:"total"`
	Excluded   int            `json:"excluded"`
	Message    string         `json:"message"`
}
