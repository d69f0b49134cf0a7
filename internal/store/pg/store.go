package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campaignd/internal/domain"
	"campaignd/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) Ping(ctx context.Context) error { return s.DB.Ping(ctx) }

func (s *Store) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT c.id, t.subject, t.body, c.sender_name, c.sender_address,
		       c.recipient_ids, c.segment_ids, c.custom_tokens, c.status,
		       c.sent_date, c.total_recipients
		FROM campaigns c
		JOIN templates t ON t.id = c.template_id
		WHERE c.id=$1
	`, id)

	var (
		c         domain.Campaign
		tokensRaw []byte
		status    string
	)
	err := row.Scan(&c.ID, &c.Content.Subject, &c.Content.Body, &c.Sender.Name, &c.Sender.Address,
		&c.RecipientIDs, &c.SegmentIDs, &tokensRaw, &status, &c.SentDate, &c.TotalRecipients)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Campaign{}, domain.ErrCampaignNotFound
		}
		return domain.Campaign{}, err
	}
	c.Status = domain.CampaignStatus(status)
	if len(tokensRaw) > 0 {
		if err := json.Unmarshal(tokensRaw, &c.CustomTokens); err != nil {
			return domain.Campaign{}, fmt.Errorf("decode custom tokens for campaign %s: %w", id, err)
		}
	}
	return c, nil
}

func (s *Store) SegmentMemberIDs(ctx context.Context, segmentIDs []string) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT DISTINCT customer_id FROM segment_members WHERE segment_id = ANY($1)
	`, segmentIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) RecipientsByID(ctx context.Context, ids []string) ([]domain.Recipient, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, COALESCE(email,''), COALESCE(first_name,''), COALESCE(last_name,''), unsubscribed
		FROM customers WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var r domain.Recipient
		if err := rows.Scan(&r.ID, &r.Address, &r.FirstName, &r.LastName, &r.Unsubscribed); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TransitionCampaign moves a campaign one step along its lifecycle.
// A row whose status already moved on yields ErrInvalidTransition.
func (s *Store) TransitionCampaign(ctx context.Context, in store.StatusTransition) error {
	if !in.From.CanTransitionTo(in.To) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, in.From, in.To)
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE campaigns
		SET status=$3,
		    sent_date=COALESCE($4, sent_date),
		    total_recipients=COALESCE($5, total_recipients),
		    updated_at=$6
		WHERE id=$1 AND status=$2
	`, in.CampaignID, string(in.From), string(in.To), in.SentDate, in.TotalRecipients, in.Now)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: campaign %s is not %s", domain.ErrInvalidTransition, in.CampaignID, in.From)
	}
	return nil
}

func (s *Store) InsertTrackingRecord(ctx context.Context, rec domain.TrackingRecord) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO tracking_records (tracking_id, campaign_id, recipient_id, address, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, rec.TrackingID, rec.CampaignID, rec.RecipientID, rec.Address, rec.CreatedAt)
	return err
}

func (s *Store) InsertDeliveryEvent(ctx context.Context, ev domain.DeliveryEvent) error {
	b, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO delivery_events (id, campaign_id, recipient_id, event_type, payload_json, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, ev.ID, ev.CampaignID, ev.RecipientID, string(ev.Type), b, ev.OccurredAt)
	return err
}

// UpsertSentCounts writes sent/delivered only. Counters owned by the
// tracking receivers are never touched, and ours never decrease.
func (s *Store) UpsertSentCounts(ctx context.Context, in store.SentCounts) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO campaign_analytics (campaign_id, sent, delivered, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (campaign_id)
		DO UPDATE SET sent = GREATEST(campaign_analytics.sent, EXCLUDED.sent),
		              delivered = GREATEST(campaign_analytics.delivered, EXCLUDED.delivered),
		              updated_at = EXCLUDED.updated_at
	`, in.CampaignID, in.Sent, in.Delivered, in.Now)
	return err
}

func (s *Store) GetAnalytics(ctx context.Context, campaignID string) (domain.AnalyticsSnapshot, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT c.id,
		       COALESCE(a.sent,0), COALESCE(a.delivered,0), COALESCE(a.opened,0), COALESCE(a.clicked,0),
		       COALESCE(a.bounced,0), COALESCE(a.complained,0), COALESCE(a.unsubscribed,0),
		       COALESCE(a.updated_at, c.updated_at)
		FROM campaigns c
		LEFT JOIN campaign_analytics a ON a.campaign_id = c.id
		WHERE c.id=$1
	`, campaignID)

	var a domain.AnalyticsSnapshot
	err := row.Scan(&a.CampaignID, &a.Sent, &a.Delivered, &a.Opened, &a.Clicked,
		&a.Bounced, &a.Complained, &a.Unsubscribed, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AnalyticsSnapshot{}, domain.ErrCampaignNotFound
		}
		return domain.AnalyticsSnapshot{}, err
	}
	return a, nil
}
