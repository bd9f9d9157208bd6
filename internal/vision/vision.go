// Package vision samples camera stills into a live session.
//
// The sampler grabs a frame at a fixed cadence, compresses it to JPEG, and
// ships it upstream. Each tick stands alone: a frame that cannot be grabbed,
// encoded, or sent is dropped and the next tick starts fresh, so the video
// path can never build a backlog of stale frames.
package vision

import (
	"bytes"
	"context"
	"image/jpeg"
	"log/slog"
	"time"

	"github.com/kolan-ai/kolan/internal/observe"
	"github.com/kolan-ai/kolan/pkg/device"
	"github.com/kolan-ai/kolan/pkg/pcm"
	"github.com/kolan-ai/kolan/pkg/provider/live"
)

const (
	// DefaultInterval is the cadence of frame sampling: two stills per second.
	DefaultInterval = 500 * time.Millisecond

	// DefaultQuality is the JPEG quality on Go's 1-100 scale.
	DefaultQuality = 70
)

// Option is a functional option for configuring a Sampler.
type Option func(*Sampler)

// WithInterval overrides the sampling cadence. Non-positive values keep the
// default.
func WithInterval(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithQuality overrides the JPEG quality (1-100). Out-of-range values keep
// the default.
func WithQuality(q int) Option {
	return func(s *Sampler) {
		if q >= 1 && q <= 100 {
			s.quality = q
		}
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Sampler) { s.log = l }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Sampler) { s.metrics = m }
}

// Sampler grabs, compresses, and ships camera stills.
type Sampler struct {
	interval time.Duration
	quality  int
	log      *slog.Logger
	metrics  *observe.Metrics
}

// New creates a Sampler.
func New(opts ...Option) *Sampler {
	s := &Sampler{
		interval: DefaultInterval,
		quality:  DefaultQuality,
		log:      slog.Default(),
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run samples cam into sess until ctx is done. One frame is in flight at a
// time; if grabbing and encoding overrun the tick, intervening ticks are
// skipped rather than queued.
func (s *Sampler) Run(ctx context.Context, cam device.Camera, sess live.Session) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOne(ctx, cam, sess)
		}
	}
}

// sampleOne processes a single tick. Every failure path drops exactly this
// frame and leaves the loop running.
func (s *Sampler) sampleOne(ctx context.Context, cam device.Camera, sess live.Session) {
	img, err := cam.Grab(ctx)
	if err != nil {
		s.metrics.VideoFramesDropped.Add(ctx, 1, observe.DropReason("grab"))
		s.log.Debug("vision: dropping frame", "stage", "grab", "error", err)
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		s.metrics.VideoFramesDropped.Add(ctx, 1, observe.DropReason("encode"))
		s.log.Debug("vision: dropping frame", "stage", "encode", "error", err)
		return
	}

	still, err := pcm.BlobToBase64(&buf)
	if err != nil {
		s.metrics.VideoFramesDropped.Add(ctx, 1, observe.DropReason("encode"))
		s.log.Debug("vision: dropping frame", "stage", "base64", "error", err)
		return
	}

	if err := sess.SendVideo(still); err != nil {
		s.metrics.VideoFramesDropped.Add(ctx, 1, observe.DropReason("send"))
		s.log.Debug("vision: dropping frame", "stage", "send", "error", err)
		return
	}
	s.metrics.VideoFramesSent.Add(ctx, 1)
}
