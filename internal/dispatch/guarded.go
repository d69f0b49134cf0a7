package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"campaignd/internal/domain"
	"campaignd/internal/observability"
)

const defaultBreakerPoll = 250 * time.Millisecond

// Guarded wraps a provider transport with address validation, a local rate
// limit, a circuit breaker and a per-send timeout. It never calls the
// provider twice for one message.
//
// An open breaker is backpressure, not a failure: the send waits until the
// breaker admits it again or ctx is done.
type Guarded struct {
	Name      string
	Transport domain.Transport
	Limiter   *rate.Limiter
	Breaker   *gobreaker.CircuitBreaker
	Timeout   time.Duration
	// BreakerPoll is how often a held send re-checks the breaker.
	BreakerPoll time.Duration
}

func (g *Guarded) Send(ctx context.Context, msg domain.Message) (string, error) {
	if !govalidator.IsEmail(msg.To) {
		observability.Sends.WithLabelValues(g.Name, "invalid_address").Inc()
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidAddress, msg.To)
	}

	if g.Limiter != nil {
		if err := g.Limiter.Wait(ctx); err != nil {
			observability.Sends.WithLabelValues(g.Name, "rate_limited_local").Inc()
			return "", fmt.Errorf("send rate limiter: %w", err)
		}
	}

	start := time.Now()
	id, err := g.execute(ctx, msg)
	observability.SendLatency.WithLabelValues(g.Name).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		observability.Sends.WithLabelValues(g.Name, "cb_open").Inc()
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		observability.Sends.WithLabelValues(g.Name, "cancelled").Inc()
	case err != nil:
		observability.Sends.WithLabelValues(g.Name, "error").Inc()
	default:
		observability.Sends.WithLabelValues(g.Name, "ok").Inc()
	}
	return id, err
}

func (g *Guarded) execute(ctx context.Context, msg domain.Message) (string, error) {
	call := func() (any, error) {
		sendCtx := ctx
		if g.Timeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(ctx, g.Timeout)
			defer cancel()
		}
		return g.Transport.Send(sendCtx, msg)
	}

	if g.Breaker == nil {
		res, err := call()
		id, _ := res.(string)
		return id, err
	}
	held := false
	for {
		res, err := g.Breaker.Execute(call)
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			id, _ := res.(string)
			return id, err
		}
		// rejected by the breaker; the provider was not called
		if !held {
			held = true
			observability.Sends.WithLabelValues(g.Name, "cb_wait").Inc()
		}
		if werr := g.waitBreaker(ctx); werr != nil {
			return "", fmt.Errorf("%w (waiting for breaker: %v)", err, werr)
		}
	}
}

func (g *Guarded) waitBreaker(ctx context.Context) error {
	poll := g.BreakerPoll
	if poll <= 0 {
		poll = defaultBreakerPoll
	}
	t := time.NewTimer(poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NewBreaker trips after consecutiveFailures transient provider errors in a
// row. Permanent rejections (bad address, content refused) count as
// successes for the breaker: the provider answered.
func NewBreaker(name string, consecutiveFailures uint32, openFor time.Duration) *gobreaker.CircuitBreaker {
	if consecutiveFailures == 0 {
		consecutiveFailures = 10
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Timeout:     openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= consecutiveFailures },
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
	})
}

type temporary interface {
	Temporary() bool
}

// IsTransient reports whether err looks like a provider-side or network
// hiccup rather than a rejection of this particular message.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
