package util

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

func NormalizeAddress(a string) string {
	return strings.ToLower(strings.TrimSpace(a))
}

// ULIDs are sortable, which keeps tracking and event indexes append-friendly.
func newID(prefix string) string {
	t := time.Now().UTC()
	return prefix + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NewTrackingID() string { return newID("trk_") }

func NewEventID() string { return newID("evt_") }

func NewMessageID() string { return newID("msg_") }

func NowUTC() time.Time {
	return time.Now().UTC()
}
