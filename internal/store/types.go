package store

import (
	"time"

	"campaignd/internal/domain"
)

// StatusTransition is a compare-and-set on the campaign row: it applies only
// while the stored status still equals From. Nil fields are left unchanged.
type StatusTransition struct {
	CampaignID      string
	From            domain.CampaignStatus
	To              domain.CampaignStatus
	SentDate        *time.Time
	TotalRecipients *int
	Now             time.Time
}

// SentCounts carries the only analytics counters the dispatch engine owns.
type SentCounts struct {
	CampaignID string
	Sent       int
	Delivered  int
	Now        time.Time
}
