// Package dispatch drives per-recipient sends in fixed-size batches.
//
// Batches run strictly one after another. Inside a batch every recipient is
// attempted concurrently and the batch is joined before the next one starts,
// so at most one batch width of sends is ever in flight.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"campaignd/internal/domain"
)

const DefaultBatchSize = 50

// Outcome is the result of one recipient's send attempt.
type Outcome struct {
	RecipientID       string
	ProviderMessageID string
	Err               error
}

func (o Outcome) OK() bool { return o.Err == nil }

type Totals struct {
	Sent    int
	Failed  int
	Batches int
}

func (t Totals) Attempted() int { return t.Sent + t.Failed }

// DeliverFunc runs the whole per-recipient pipeline and reports its outcome.
// It must not return until the send has resolved.
type DeliverFunc func(ctx context.Context, r domain.Recipient) Outcome

type Dispatcher struct {
	BatchSize int
}

func (d *Dispatcher) batchSize() int {
	if d == nil || d.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return d.BatchSize
}

// Partition returns [start, end) bounds of consecutive batches covering n items.
func Partition(n, size int) [][2]int {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if n <= 0 {
		return nil
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// Run attempts every recipient exactly once. A failing or panicking
// recipient never affects its siblings or later batches. Counts are merged
// by the calling goroutine after each join, never from the send tasks.
func (d *Dispatcher) Run(ctx context.Context, recipients []domain.Recipient, deliver DeliverFunc) Totals {
	var totals Totals
	size := d.batchSize()

	for _, b := range Partition(len(recipients), size) {
		batch := recipients[b[0]:b[1]]
		results := runBatch(ctx, batch, deliver)

		for _, o := range results {
			if o.OK() {
				totals.Sent++
			} else {
				totals.Failed++
			}
		}
		totals.Batches++
		slog.Debug("dispatch batch joined",
			"batch", totals.Batches,
			"size", len(batch),
			"sent_total", totals.Sent,
			"failed_total", totals.Failed,
		)
	}
	return totals
}

func runBatch(ctx context.Context, batch []domain.Recipient, deliver DeliverFunc) []Outcome {
	results := make([]Outcome, len(batch))

	var g errgroup.Group
	g.SetLimit(len(batch))
	for i, r := range batch {
		i, r := i, r
		g.Go(func() error {
			results[i] = SafeDeliver(ctx, r, deliver)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// SafeDeliver runs deliver for one recipient, turning a panic into a failed
// outcome for that recipient only.
func SafeDeliver(ctx context.Context, r domain.Recipient, deliver DeliverFunc) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("recipient send panicked", "recipient_id", r.ID, "panic", p, "stack", string(debug.Stack()))
			out = Outcome{RecipientID: r.ID, Err: fmt.Errorf("send panicked: %v", p)}
		}
	}()
	out = deliver(ctx, r)
	if out.RecipientID == "" {
		out.RecipientID = r.ID
	}
	return out
}
