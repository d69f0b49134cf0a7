package recorder

import (
	"context"
	"log/slog"
	"time"

	"campaignd/internal/dispatch"
	"campaignd/internal/domain"
	"campaignd/internal/observability"
	"campaignd/internal/util"
)

type Store interface {
	InsertTrackingRecord(ctx context.Context, rec domain.TrackingRecord) error
	InsertDeliveryEvent(ctx context.Context, ev domain.DeliveryEvent) error
}

// Recorder persists the per-recipient audit trail of a dispatch run.
// Neither write is allowed to affect whether a message is sent.
type Recorder struct {
	Store Store
	NewID func() string
	Now   func() time.Time
}

func New(st Store) *Recorder {
	return &Recorder{Store: st, NewID: util.NewEventID, Now: util.NowUTC}
}

// Track writes the tracking record for a message about to be sent.
func (r *Recorder) Track(ctx context.Context, rec domain.TrackingRecord) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	if err := r.Store.InsertTrackingRecord(ctx, rec); err != nil {
		observability.WriteFailures.WithLabelValues("tracking_record").Inc()
		slog.Warn("tracking record write failed",
			"err", err,
			"campaign_id", rec.CampaignID,
			"recipient_id", rec.RecipientID,
			"tracking_id", rec.TrackingID,
		)
	}
}

// Outcome appends exactly one delivery event for a send attempt.
func (r *Recorder) Outcome(ctx context.Context, campaignID, recipientID string, out dispatch.Outcome) {
	ev := domain.DeliveryEvent{
		ID:          r.newID(),
		CampaignID:  campaignID,
		RecipientID: recipientID,
		OccurredAt:  r.now(),
	}
	if out.OK() {
		ev.Type = domain.EventSent
		ev.Payload = map[string]string{"provider_message_id": out.ProviderMessageID}
	} else {
		ev.Type = domain.EventFailed
		ev.Payload = map[string]string{"error": out.Err.Error()}
	}

	if err := r.Store.InsertDeliveryEvent(ctx, ev); err != nil {
		observability.WriteFailures.WithLabelValues("delivery_event").Inc()
		slog.Error("delivery event write failed",
			"err", err,
			"campaign_id", campaignID,
			"recipient_id", recipientID,
			"event_type", string(ev.Type),
		)
	}
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return util.NowUTC()
}

func (r *Recorder) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return util.NewEventID()
}
