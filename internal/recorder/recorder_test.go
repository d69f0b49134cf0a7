package recorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignd/internal/dispatch"
	"campaignd/internal/domain"
	"campaignd/internal/observability"
)

type fakeStore struct {
	tracking []domain.TrackingRecord
	events   []domain.DeliveryEvent
	trackErr error
	eventErr error
}

func (f *fakeStore) InsertTrackingRecord(ctx context.Context, rec domain.TrackingRecord) error {
	if f.trackErr != nil {
		return f.trackErr
	}
	f.tracking = append(f.tracking, rec)
	return nil
}

func (f *fakeStore) InsertDeliveryEvent(ctx context.Context, ev domain.DeliveryEvent) error {
	if f.eventErr != nil {
		return f.eventErr
	}
	f.events = append(f.events, ev)
	return nil
}

var fixed = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRecorder(st *fakeStore) *Recorder {
	return &Recorder{Store: st, NewID: func() string { return "evt_1" }, Now: func() time.Time { return fixed }}
}

func TestTrackStampsCreatedAt(t *testing.T) {
	st := &fakeStore{}
	newRecorder(st).Track(context.Background(), domain.TrackingRecord{TrackingID: "trk_1", CampaignID: "c1", RecipientID: "r1", Address: "a@example.com"})

	require.Len(t, st.tracking, 1)
	assert.Equal(t, fixed, st.tracking[0].CreatedAt)
	assert.Equal(t, "trk_1", st.tracking[0].TrackingID)
}

func TestTrackFailureIsCountedNotReturned(t *testing.T) {
	st := &fakeStore{trackErr: errors.New("db down")}
	before := testutil.ToFloat64(observability.WriteFailures.WithLabelValues("tracking_record"))

	newRecorder(st).Track(context.Background(), domain.TrackingRecord{TrackingID: "trk_1"})

	assert.Equal(t, before+1, testutil.ToFloat64(observability.WriteFailures.WithLabelValues("tracking_record")))
}

func TestOutcomeSent(t *testing.T) {
	st := &fakeStore{}
	newRecorder(st).Outcome(context.Background(), "c1", "r1", dispatch.Outcome{RecipientID: "r1", ProviderMessageID: "pm-1"})

	require.Len(t, st.events, 1)
	ev := st.events[0]
	assert.Equal(t, domain.EventSent, ev.Type)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, "c1", ev.CampaignID)
	assert.Equal(t, map[string]string{"provider_message_id": "pm-1"}, ev.Payload)
	assert.Equal(t, fixed, ev.OccurredAt)
}

func TestOutcomeFailed(t *testing.T) {
	st := &fakeStore{}
	newRecorder(st).Outcome(context.Background(), "c1", "r2", dispatch.Outcome{RecipientID: "r2", Err: errors.New("mailbox full")})

	require.Len(t, st.events, 1)
	assert.Equal(t, domain.EventFailed, st.events[0].Type)
	assert.Equal(t, "mailbox full", st.events[0].Payload["error"])
}

func TestOutcomeWriteFailureIsCounted(t *testing.T) {
	st := &fakeStore{eventErr: errors.New("db down")}
	before := testutil.ToFloat64(observability.WriteFailures.WithLabelValues("delivery_event"))

	newRecorder(st).Outcome(context.Background(), "c1", "r1", dispatch.Outcome{})

	assert.Equal(t, before+1, testutil.ToFloat64(observability.WriteFailures.WithLabelValues("delivery_event")))
}
