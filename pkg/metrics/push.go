package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Pusher sends a batch job's registry to a Prometheus pushgateway.
type Pusher struct {
	pusher *push.Pusher
}

func NewPusher(url, job string, gatherer prometheus.Gatherer) *Pusher {
	return &Pusher{pusher: push.New(url, job).Gatherer(gatherer)}
}

func (p *Pusher) Push(ctx context.Context) error {
	if err := p.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
