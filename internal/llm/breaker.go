package llm

import (
	"context"
	"time"

	"github.com/newsly/newsly/internal/pkg/logger"
	"github.com/sony/gobreaker/v2"
)

// breakerClient stops calling a backend after repeated failures so a
// model outage fails each tier fast instead of waiting out every timeout.
type breakerClient struct {
	next Client
	cb   *gobreaker.CircuitBreaker[*Response]
}

// WithBreaker wraps c in a circuit breaker that opens after three
// consecutive failures and probes again after a minute.
func WithBreaker(c Client) Client {
	return &breakerClient{
		next: c,
		cb: gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
			Name:        "llm-" + c.Provider(),
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("llm: circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (b *breakerClient) Provider() string { return b.next.Provider() }

func (b *breakerClient) Complete(ctx context.Context, req Request) (*Response, error) {
	return b.cb.Execute(func() (*Response, error) {
		return b.next.Complete(ctx, req)
	})
}
