package similarity

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/autobooks/internal/common"
)

type timeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

// WithTimeout bounds every query on g. A timeout or any other failure is
// reported as common.ErrGatewayUnavailable. Index calls pass through when g
// supports indexing.
func WithTimeout(g Gateway, d time.Duration) Gateway {
	if d <= 0 {
		return g
	}
	return &timeoutGateway{next: g, timeout: d}
}

func (t *timeoutGateway) Query(ctx context.Context, vendor, text string, k int) ([]Match, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		err     error
		matches []Match
	}
	done := make(chan result, 1)
	go func() {
		m, err := t.next.Query(ctx, vendor, text, k)
		done <- result{matches: m, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrGatewayUnavailable, r.err)
		}
		return r.matches, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", common.ErrGatewayUnavailable, ctx.Err())
	}
}

func (t *timeoutGateway) Index(ctx context.Context, p Pattern) error {
	idx, ok := t.next.(Indexer)
	if !ok {
		return nil
	}
	return idx.Index(ctx, p)
}
