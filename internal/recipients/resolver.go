package recipients

import (
	"context"
	"log/slog"
	"strings"

	"campaignd/internal/domain"
	"campaignd/internal/observability"
)

// Exclusion reasons reported by Filter.
const (
	ReasonMissingAddress = "missing_address"
	ReasonUnsubscribed   = "unsubscribed"
)

type Store interface {
	SegmentMemberIDs(ctx context.Context, segmentIDs []string) ([]string, error)
	RecipientsByID(ctx context.Context, ids []string) ([]domain.Recipient, error)
}

type Resolver struct {
	Store Store
}

// Resolve merges the explicit recipient ids with every member of the listed
// segments and loads the customer records. The result is a set; callers
// must not rely on its order. Any lookup failure fails the whole call.
func (r *Resolver) Resolve(ctx context.Context, explicitIDs, segmentIDs []string) ([]domain.Recipient, error) {
	var members []string
	if len(segmentIDs) > 0 {
		ids, err := r.Store.SegmentMemberIDs(ctx, segmentIDs)
		if err != nil {
			return nil, &domain.ResolutionError{Stage: "segments", Err: err}
		}
		members = ids
	}

	ids := Union(explicitIDs, members)
	if len(ids) == 0 {
		return nil, nil
	}

	recs, err := r.Store.RecipientsByID(ctx, ids)
	if err != nil {
		return nil, &domain.ResolutionError{Stage: "recipients", Err: err}
	}

	seen := make(map[string]struct{}, len(recs))
	out := make([]domain.Recipient, 0, len(recs))
	for _, rec := range recs {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	if missing := len(ids) - len(out); missing > 0 {
		slog.Warn("recipient ids not found in customer store", "requested", len(ids), "missing", missing)
	}
	return out, nil
}

// Union returns the deduplicated ids of all lists. Blank ids are dropped.
func Union(lists ...[]string) []string {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for _, l := range lists {
		for _, id := range l {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Filter splits resolved recipients into those eligible for sending and a
// count of the excluded ones per reason. Excluded recipients are neither
// sent nor failed.
func Filter(rs []domain.Recipient) ([]domain.Recipient, map[string]int) {
	eligible := make([]domain.Recipient, 0, len(rs))
	excluded := map[string]int{}
	for _, r := range rs {
		switch {
		case strings.TrimSpace(r.Address) == "":
			excluded[ReasonMissingAddress]++
		case r.Unsubscribed:
			excluded[ReasonUnsubscribed]++
		default:
			eligible = append(eligible, r)
		}
	}
	for reason, n := range excluded {
		observability.RecipientsExcluded.WithLabelValues(reason).Add(float64(n))
	}
	return eligible, excluded
}
