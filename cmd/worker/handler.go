package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"campaignd/internal/domain"
	sqsqueue "campaignd/internal/queue/sqs"
)

type campaignDispatcher interface {
	Dispatch(ctx context.Context, campaignID string) (domain.DispatchSummary, error)
}

// jobHandler acks jobs that can never succeed on retry and leaves the rest
// (lock contention, infrastructure errors) to SQS redrive.
func jobHandler(svc campaignDispatcher) sqsqueue.Handler {
	return func(ctx context.Context, job sqsqueue.CampaignJob) error {
		start := time.Now()
		slog.Info("worker job start", "campaign_id", job.CampaignID, "requested_at", job.RequestedAt)

		sum, err := svc.Dispatch(ctx, job.CampaignID)
		var re *domain.ResolutionError
		switch {
		case err == nil:
			slog.Info("worker job finish",
				"campaign_id", job.CampaignID,
				"status", string(sum.Status),
				"sent", sum.Sent,
				"failed", sum.Failed,
				"duration", time.Since(start),
			)
			return nil
		case errors.As(err, &re),
			errors.Is(err, domain.ErrCampaignNotFound),
			errors.Is(err, domain.ErrInvalidTransition):
			slog.Warn("worker job dropped", "campaign_id", job.CampaignID, "err", err)
			return nil
		default:
			return err
		}
	}
}
