// Package playback schedules synthesised audio chunks for gapless output.
//
// Chunks arrive from the network faster than they play, so each one is
// scheduled to begin exactly when its predecessor ends. The [Scheduler] owns
// the monotonic cursor that makes this work and the set of voices still
// sounding, so teardown can silence everything at once.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kolan-ai/kolan/internal/observe"
	"github.com/kolan-ai/kolan/pkg/device"
	"github.com/kolan-ai/kolan/pkg/pcm"
)

// ErrEmptyChunk is returned by [Scheduler.Schedule] for a chunk with no
// playable duration. The cursor is never moved for such chunks.
var ErrEmptyChunk = errors.New("playback: empty chunk")

// Clock abstracts wall-clock reads so tests can drive scheduling
// deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the real [Clock] used outside of tests.
var SystemClock Clock = systemClock{}

// Option is a functional option for configuring a Scheduler.
type Option func(*Scheduler)

// WithClock substitutes the scheduling clock. Used in tests.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// handle tracks one scheduled voice from Schedule until it finishes or is
// force-stopped.
type handle struct {
	voice    device.Voice
	finished bool
}

// Scheduler places each chunk on the speaker immediately after the previous
// one. The cursor only ever moves forward: if the stream stalls and the
// cursor falls behind the clock, the next chunk starts now and the cursor
// jumps forward, leaving the silent gap in the past rather than replaying it.
//
// Schedule is expected to be called from a single goroutine (the session's
// event loop); the other methods are safe to call from anywhere.
type Scheduler struct {
	speaker device.Speaker
	clock   Clock
	log     *slog.Logger
	metrics *observe.Metrics

	mu     sync.Mutex
	next   time.Time
	active map[*handle]struct{}
}

// NewScheduler creates a Scheduler that plays through speaker.
func NewScheduler(speaker device.Speaker, opts ...Option) *Scheduler {
	s := &Scheduler{
		speaker: speaker,
		clock:   SystemClock,
		log:     slog.Default(),
		metrics: observe.DefaultMetrics(),
		active:  make(map[*handle]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule queues buf to start when the previous chunk ends, or immediately
// if the cursor has fallen behind the clock. A chunk with zero duration is
// dropped before scheduling and the cursor does not move; the same holds
// when the speaker rejects the chunk.
func (s *Scheduler) Schedule(buf pcm.Buffer) error {
	d := buf.Duration()
	if d <= 0 {
		s.metrics.ChunksDropped.Add(context.Background(), 1, observe.DropReason("empty"))
		s.log.Debug("playback: dropping empty chunk")
		return ErrEmptyChunk
	}

	s.mu.Lock()
	start := s.clock.Now()
	if s.next.After(start) {
		start = s.next
	}
	s.mu.Unlock()

	h := &handle{}
	voice, err := s.speaker.Play(buf, start, func() { s.finish(h) })
	if err != nil {
		s.metrics.ChunksDropped.Add(context.Background(), 1, observe.DropReason("speaker"))
		s.log.Debug("playback: speaker rejected chunk", "error", err)
		return fmt.Errorf("playback: schedule: %w", err)
	}

	s.mu.Lock()
	h.voice = voice
	if !h.finished {
		s.active[h] = struct{}{}
	}
	s.next = start.Add(d)
	s.mu.Unlock()

	s.metrics.ChunksScheduled.Add(context.Background(), 1)
	return nil
}

// finish is the done callback for a voice; it drops the handle from the
// active set whether the voice completed or was stopped.
func (s *Scheduler) finish(h *handle) {
	s.mu.Lock()
	h.finished = true
	delete(s.active, h)
	s.mu.Unlock()
}

// StopAll force-stops every voice still sounding and empties the active set.
// The cursor is left where it is; a later Schedule that finds it in the past
// simply starts immediately.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	stopping := make([]*handle, 0, len(s.active))
	for h := range s.active {
		stopping = append(stopping, h)
	}
	s.active = make(map[*handle]struct{})
	s.mu.Unlock()

	for _, h := range stopping {
		if h.voice != nil {
			h.voice.Stop()
		}
	}
}

// NextStart reports when the next scheduled chunk would begin.
func (s *Scheduler) NextStart() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Pending reports how many voices are scheduled or sounding.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
