// Package capture moves microphone audio into a live session.
//
// The pipeline is deliberately lossy: a block that cannot be delivered right
// now is dropped, never queued or retried. Stale audio is worse than missing
// audio in a realtime conversation.
package capture

import (
	"context"
	"log/slog"

	"github.com/kolan-ai/kolan/internal/observe"
	"github.com/kolan-ai/kolan/pkg/pcm"
	"github.com/kolan-ai/kolan/pkg/provider/live"
)

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline encodes microphone blocks and ships them upstream.
type Pipeline struct {
	log     *slog.Logger
	metrics *observe.Metrics
}

// New creates a capture Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		log:     slog.Default(),
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run consumes blocks until the channel closes or ctx is done, encoding each
// one and sending it on sess. A failed send drops that block silently apart
// from a debug log and a counter; the loop keeps going so capture survives
// transient transport hiccups.
func (p *Pipeline) Run(ctx context.Context, blocks <-chan []float32, sess live.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-blocks:
			if !ok {
				return
			}
			frame := pcm.EncodeFrame(block)
			if err := sess.SendAudio(frame); err != nil {
				p.metrics.AudioFramesDropped.Add(ctx, 1, observe.DropReason("send"))
				p.log.Debug("capture: dropping frame", "error", err)
				continue
			}
			p.metrics.AudioFramesSent.Add(ctx, 1)
		}
	}
}
