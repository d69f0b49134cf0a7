package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"campaignd/internal/dispatch"
	"campaignd/internal/domain"
	"campaignd/internal/lock"
	"campaignd/internal/observability"
	"campaignd/internal/personalize"
	"campaignd/internal/recipients"
	"campaignd/internal/store"
	"campaignd/internal/util"
)

type Store interface {
	GetCampaign(ctx context.Context, id string) (domain.Campaign, error)
	TransitionCampaign(ctx context.Context, in store.StatusTransition) error
	UpsertSentCounts(ctx context.Context, in store.SentCounts) error
	GetAnalytics(ctx context.Context, campaignID string) (domain.AnalyticsSnapshot, error)
}

type Resolver interface {
	Resolve(ctx context.Context, explicitIDs, segmentIDs []string) ([]domain.Recipient, error)
}

type Instrumentor interface {
	Instrument(body, campaignID, recipientID string) (string, string)
}

type Recorder interface {
	Track(ctx context.Context, rec domain.TrackingRecord)
	Outcome(ctx context.Context, campaignID, recipientID string, out dispatch.Outcome)
}

// CampaignService owns the campaign status machine. It is the only writer
// of the campaign row and its analytics snapshot during a run.
type CampaignService struct {
	Store        Store
	Resolver     Resolver
	Dispatcher   *dispatch.Dispatcher
	Instrumentor Instrumentor
	Recorder     Recorder
	Transport    domain.Transport

	// NewLock is optional; without it concurrent triggers are only stopped
	// by the status compare-and-set.
	NewLock lock.Factory
	LockTTL time.Duration

	Now func() time.Time
}

// Dispatch runs a draft campaign to a terminal status. The returned summary
// is valid whenever the campaign reached a terminal status, even if err is
// a resolution error. ctx only bounds the work up to the draft -> sending
// transition.
func (s *CampaignService) Dispatch(ctx context.Context, campaignID string) (domain.DispatchSummary, error) {
	if s.NewLock != nil {
		l := s.NewLock(campaignID)
		ok, err := l.Acquire(ctx)
		if err != nil {
			return domain.DispatchSummary{}, fmt.Errorf("run lock: %w", err)
		}
		if !ok {
			return domain.DispatchSummary{}, fmt.Errorf("%w: %s", domain.ErrCampaignBusy, campaignID)
		}
		stop := lock.Keepalive(context.WithoutCancel(ctx), l, s.LockTTL)
		defer func() {
			stop()
			if err := l.Release(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("run lock release failed", "err", err, "campaign_id", campaignID)
			}
		}()
	}

	c, err := s.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return domain.DispatchSummary{}, err
	}
	if c.Status != domain.StatusDraft {
		return domain.DispatchSummary{}, fmt.Errorf("%w: campaign %s is %s", domain.ErrInvalidTransition, c.ID, c.Status)
	}

	started := s.now()
	if err := s.Store.TransitionCampaign(ctx, store.StatusTransition{
		CampaignID: c.ID,
		From:       domain.StatusDraft,
		To:         domain.StatusSending,
		SentDate:   &started,
		Now:        started,
	}); err != nil {
		return domain.DispatchSummary{}, err
	}
	slog.Info("dispatch started", "campaign_id", c.ID)

	// Once the campaign is sending it must reach a terminal status with one
	// event per attempted recipient, so the caller can no longer cancel it.
	// Guarded bounds each send with its own timeout.
	ctx = context.WithoutCancel(ctx)

	resolved, err := s.Resolver.Resolve(ctx, c.RecipientIDs, c.SegmentIDs)
	if err != nil {
		slog.Error("recipient resolution failed", "err", err, "campaign_id", c.ID)
		sum := s.finish(ctx, c.ID, 0, 0, dispatch.Totals{}, started)
		sum.Message = fmt.Sprintf("Campaign failed: %v", err)
		return sum, err
	}

	eligible, excluded := recipients.Filter(resolved)
	skipped := 0
	for _, n := range excluded {
		skipped += n
	}
	if skipped > 0 {
		slog.Info("recipients excluded", "campaign_id", c.ID, "excluded", excluded)
	}

	totals := s.Dispatcher.Run(ctx, eligible, s.deliver(c))
	return s.finish(ctx, c.ID, len(resolved), skipped, totals, started), nil
}

func (s *CampaignService) Analytics(ctx context.Context, campaignID string) (domain.AnalyticsSnapshot, error) {
	return s.Store.GetAnalytics(ctx, campaignID)
}

// deliver is the per-recipient pipeline. It runs inside one dispatcher task
// and writes only records keyed by this recipient.
func (s *CampaignService) deliver(c domain.Campaign) dispatch.DeliverFunc {
	send := func(ctx context.Context, r domain.Recipient) dispatch.Outcome {
		addr := util.NormalizeAddress(r.Address)
		content := personalize.Render(c.Content, r, c.CustomTokens[r.ID])
		body, trackingID := s.Instrumentor.Instrument(content.Body, c.ID, r.ID)

		s.Recorder.Track(ctx, domain.TrackingRecord{
			TrackingID:  trackingID,
			CampaignID:  c.ID,
			RecipientID: r.ID,
			Address:     addr,
			CreatedAt:   s.now(),
		})

		providerID, err := s.Transport.Send(ctx, domain.Message{
			CampaignID:  c.ID,
			RecipientID: r.ID,
			TrackingID:  trackingID,
			From:        c.Sender,
			To:          addr,
			Subject:     content.Subject,
			HTML:        body,
		})
		return dispatch.Outcome{RecipientID: r.ID, ProviderMessageID: providerID, Err: err}
	}

	return func(ctx context.Context, r domain.Recipient) dispatch.Outcome {
		out := dispatch.SafeDeliver(ctx, r, send)
		if !out.OK() {
			slog.Warn("recipient send failed", "err", out.Err, "campaign_id", c.ID, "recipient_id", r.ID)
		}
		s.Recorder.Outcome(ctx, c.ID, r.ID, out)
		return out
	}
}

// finish performs the single terminal write for a run. Write failures are
// logged; the counts already gathered are still reported.
func (s *CampaignService) finish(ctx context.Context, campaignID string, resolved, excluded int, totals dispatch.Totals, started time.Time) domain.DispatchSummary {
	ctx = context.WithoutCancel(ctx)
	status := domain.TerminalStatus(totals.Sent, totals.Failed)
	now := s.now()

	if err := s.Store.TransitionCampaign(ctx, store.StatusTransition{
		CampaignID:      campaignID,
		From:            domain.StatusSending,
		To:              status,
		TotalRecipients: &resolved,
		Now:             now,
	}); err != nil {
		observability.WriteFailures.WithLabelValues("campaign_status").Inc()
		slog.Error("campaign status write failed", "err", err, "campaign_id", campaignID, "status", string(status))
	}
	if err := s.Store.UpsertSentCounts(ctx, store.SentCounts{
		CampaignID: campaignID,
		Sent:       totals.Sent,
		Delivered:  totals.Sent,
		Now:        now,
	}); err != nil {
		observability.WriteFailures.WithLabelValues("analytics").Inc()
		slog.Error("analytics write failed", "err", err, "campaign_id", campaignID)
	}

	elapsed := now.Sub(started)
	observability.DispatchRuns.WithLabelValues(string(status)).Inc()
	observability.DispatchDuration.Observe(elapsed.Seconds())
	slog.Info("dispatch finished",
		"campaign_id", campaignID,
		"status", string(status),
		"sent", totals.Sent,
		"failed", totals.Failed,
		"excluded", excluded,
		"total", resolved,
		"duration_ms", elapsed.Milliseconds(),
	)

	return domain.DispatchSummary{
		CampaignID: campaignID,
		Status:     status,
		Sent:       totals.Sent,
		Failed:     totals.Failed,
		Total:      resolved,
		Excluded:   excluded,
		Message:    fmt.Sprintf("Campaign %s: sent %d, failed %d, excluded %d of %d recipients", status, totals.Sent, totals.Failed, excluded, resolved),
	}
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return util.NowUTC()
}
