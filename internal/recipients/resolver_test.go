package recipients

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignd/internal/domain"
)

type fakeStore struct {
	segments   map[string][]string
	customers  map[string]domain.Recipient
	segmentErr error
	recipErr   error

	segmentCalls int
	lookedUp     []string
}

func (f *fakeStore) SegmentMemberIDs(ctx context.Context, segmentIDs []string) ([]string, error) {
	f.segmentCalls++
	if f.segmentErr != nil {
		return nil, f.segmentErr
	}
	var out []string
	for _, s := range segmentIDs {
		out = append(out, f.segments[s]...)
	}
	return out, nil
}

func (f *fakeStore) RecipientsByID(ctx context.Context, ids []string) ([]domain.Recipient, error) {
	if f.recipErr != nil {
		return nil, f.recipErr
	}
	f.lookedUp = append([]string(nil), ids...)
	var out []domain.Recipient
	for _, id := range ids {
		if r, ok := f.customers[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func customers(ids ...string) map[string]domain.Recipient {
	m := map[string]domain.Recipient{}
	for _, id := range ids {
		m[id] = domain.Recipient{ID: id, Address: id + "@example.com"}
	}
	return m
}

func ids(rs []domain.Recipient) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	sort.Strings(out)
	return out
}

func TestResolveDedupesExplicitAndSegment(t *testing.T) {
	store := &fakeStore{
		segments:  map[string][]string{"s1": {"B", "C"}},
		customers: customers("A", "B", "C"),
	}
	r := &Resolver{Store: store}

	for _, explicit := range [][]string{{"A", "B"}, {"B", "A"}, {"B", "A", "B"}} {
		got, err := r.Resolve(context.Background(), explicit, []string{"s1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "C"}, ids(got))
	}
	assert.Len(t, store.lookedUp, 3)
}

func TestResolveOverlappingSegments(t *testing.T) {
	store := &fakeStore{
		segments:  map[string][]string{"s1": {"A", "B"}, "s2": {"B", "C"}},
		customers: customers("A", "B", "C"),
	}
	got, err := (&Resolver{Store: store}).Resolve(context.Background(), nil, []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(got))
}

func TestResolveSkipsSegmentLookupWithoutSegments(t *testing.T) {
	store := &fakeStore{customers: customers("A")}
	got, err := (&Resolver{Store: store}).Resolve(context.Background(), []string{"A"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(got))
	assert.Zero(t, store.segmentCalls)
}

func TestResolveEmpty(t *testing.T) {
	store := &fakeStore{}
	got, err := (&Resolver{Store: store}).Resolve(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Nil(t, store.lookedUp)
}

func TestResolveDropsUnknownIDs(t *testing.T) {
	store := &fakeStore{customers: customers("A")}
	got, err := (&Resolver{Store: store}).Resolve(context.Background(), []string{"A", "ghost"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(got))
}

func TestResolveFailsFastOnSegmentError(t *testing.T) {
	cause := errors.New("segment service down")
	store := &fakeStore{segmentErr: cause, customers: customers("A")}
	got, err := (&Resolver{Store: store}).Resolve(context.Background(), []string{"A"}, []string{"s1"})

	assert.Nil(t, got)
	var re *domain.ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "segments", re.Stage)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, store.lookedUp)
}

func TestResolveFailsOnRecipientLookupError(t *testing.T) {
	store := &fakeStore{recipErr: errors.New("timeout")}
	_, err := (&Resolver{Store: store}).Resolve(context.Background(), []string{"A"}, nil)
	var re *domain.ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "recipients", re.Stage)
}

func TestUnion(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, Union([]string{"A", " B", ""}, []string{"B", "C", "A"}))
	assert.Empty(t, Union(nil, nil))
}

func TestFilter(t *testing.T) {
	rs := []domain.Recipient{
		{ID: "1", Address: "a@example.com"},
		{ID: "2", Address: "  "},
		{ID: "3", Address: "c@example.com", Unsubscribed: true},
		{ID: "4", Address: "not-an-email"},
	}
	eligible, excluded := Filter(rs)

	assert.Equal(t, []string{"1", "4"}, ids(eligible))
	assert.Equal(t, map[string]int{ReasonMissingAddress: 1, ReasonUnsubscribed: 1}, excluded)
}
