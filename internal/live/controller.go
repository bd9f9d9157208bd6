// Package live implements the session controller: the state machine that owns
// every hardware handle and the provider session, wires the capture, playback,
// and vision components together, and dispatches downstream events.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kolan-ai/kolan/internal/capture"
	"github.com/kolan-ai/kolan/internal/observe"
	"github.com/kolan-ai/kolan/internal/playback"
	"github.com/kolan-ai/kolan/internal/transcript"
	"github.com/kolan-ai/kolan/internal/vision"
	"github.com/kolan-ai/kolan/pkg/device"
	"github.com/kolan-ai/kolan/pkg/pcm"
	provider "github.com/kolan-ai/kolan/pkg/provider/live"
)

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateLive
	StateClosing
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// ControllerConfig holds all dependencies for a [Controller].
type ControllerConfig struct {
	// Platform provides microphone, camera, and speaker access.
	Platform device.Platform

	// Provider opens live sessions against the remote endpoint.
	Provider provider.Provider

	// Session is the per-session configuration passed to the provider.
	Session provider.SessionConfig

	// VideoInterval is the camera sampling cadence. Zero means the
	// sampler's built-in default.
	VideoInterval time.Duration

	// VideoQuality is the JPEG quality (1-100). Zero means the sampler's
	// built-in default.
	VideoQuality int

	// OnTurn, if set, is invoked for every finalized transcript turn, in
	// order, from the controller's event goroutine.
	OnTurn func(transcript.Turn)

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics
}

// Controller drives the session lifecycle Idle → Connecting → Live → Closing
// → Idle, with video sampling as an optional sub-state while a session is up.
// Only one session can be active at a time. All exported methods are safe for
// concurrent use.
//
// The controller is the sole owner of the microphone, camera, speaker, and
// session handles: the capture pipeline and vision sampler only read handles
// the controller has already acquired, and teardown releases every slot
// independently so it is safe to run redundantly.
type Controller struct {
	platform device.Platform
	provider provider.Provider
	sessCfg  provider.SessionConfig
	onTurn   func(transcript.Turn)
	log      *slog.Logger
	metrics  *observe.Metrics

	videoInterval time.Duration
	videoQuality  int

	mu        sync.Mutex
	state     State
	mic       device.Microphone
	speaker   device.Speaker
	sess      provider.Session
	sched     *playback.Scheduler
	acc       *transcript.Accumulator
	cancel    context.CancelFunc
	sessCtx   context.Context
	startedAt time.Time

	// Video sub-state, populated only while video is on.
	cam         device.Camera
	videoCancel context.CancelFunc
}

// NewController creates a Controller with the given dependencies.
func NewController(cfg ControllerConfig) *Controller {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Controller{
		platform:      cfg.Platform,
		provider:      cfg.Provider,
		sessCfg:       cfg.Session,
		onTurn:        cfg.OnTurn,
		log:           log,
		metrics:       metrics,
		videoInterval: cfg.VideoInterval,
		videoQuality:  cfg.VideoQuality,
		acc:           transcript.NewAccumulator(),
	}
}

// Start begins a new session. It acquires the microphone and speaker, opens
// the provider session, and spawns the event goroutine. The transition to
// Live happens when the provider reports the session open.
//
// Starting while a session is already up is a no-op. A microphone or speaker
// acquisition failure aborts the start and leaves no resources held.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		c.log.Debug("start ignored", "state", c.state.String())
		return nil
	}
	c.state = StateConnecting
	c.acc.Reset()

	mic, err := c.platform.OpenMicrophone(ctx)
	if err != nil {
		c.state = StateIdle
		return fmt.Errorf("live: open microphone: %w", err)
	}

	speaker, err := c.platform.OpenSpeaker(ctx)
	if err != nil {
		_ = mic.Close()
		c.state = StateIdle
		return fmt.Errorf("live: open speaker: %w", err)
	}

	sess, err := c.provider.Connect(ctx, c.sessCfg)
	if err != nil {
		_ = mic.Close()
		_ = speaker.Close()
		c.state = StateIdle
		return fmt.Errorf("live: connect: %w", err)
	}

	// Session-scoped context for the capture and vision loops. Detached
	// from the caller's ctx: the session outlives the Start call.
	sessCtx, cancel := context.WithCancel(context.Background())

	c.mic = mic
	c.speaker = speaker
	c.sess = sess
	c.sched = playback.NewScheduler(speaker,
		playback.WithLogger(c.log),
		playback.WithMetrics(c.metrics),
	)
	c.cancel = cancel
	c.sessCtx = sessCtx
	c.startedAt = time.Now()

	c.metrics.ActiveSessions.Add(ctx, 1)
	c.log.Info("session connecting", "voice", c.sessCfg.Voice)

	go c.eventLoop(sessCtx, sess, mic, c.sched)

	return nil
}

// Stop ends the active session, releasing every held resource. Stopping twice
// in a row, or stopping when never started, is safe and returns nil.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teardownLocked("stop requested")
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// VideoActive reports whether the vision sampler is running.
func (c *Controller) VideoActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoCancel != nil
}

// StartVideo acquires the camera and begins periodic frame sampling into the
// active session. It is a no-op if video is already on, and an error if no
// session is up. A camera acquisition failure leaves no camera held.
func (c *Controller) StartVideo(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnecting && c.state != StateLive {
		return fmt.Errorf("live: start video: no active session")
	}
	if c.videoCancel != nil {
		c.log.Debug("start video ignored; already sampling")
		return nil
	}

	cam, err := c.platform.OpenCamera(ctx)
	if err != nil {
		return fmt.Errorf("live: open camera: %w", err)
	}

	videoCtx, cancel := context.WithCancel(c.sessCtx)
	c.cam = cam
	c.videoCancel = cancel

	sampler := vision.New(
		vision.WithInterval(c.videoInterval),
		vision.WithQuality(c.videoQuality),
		vision.WithLogger(c.log),
		vision.WithMetrics(c.metrics),
	)
	go sampler.Run(videoCtx, cam, c.sess)

	c.log.Info("video sampling started")
	return nil
}

// StopVideo stops frame sampling and releases the camera. It is a no-op if
// video is not on. The audio session is untouched.
func (c *Controller) StopVideo() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopVideoLocked()
}

// stopVideoLocked releases the video sub-state slots. Callers hold c.mu.
func (c *Controller) stopVideoLocked() {
	if c.videoCancel == nil {
		return
	}
	c.videoCancel()
	c.videoCancel = nil
	if c.cam != nil {
		if err := c.cam.Close(); err != nil {
			c.log.Warn("camera close error", "err", err)
		}
		c.cam = nil
	}
	c.log.Info("video sampling stopped")
}

// teardownLocked runs the slot-by-slot teardown and returns the controller to
// Idle. Every slot is released independently and unconditionally, so the
// routine is safe to run redundantly and identically for user stops, remote
// errors, and remote closes. Callers hold c.mu.
func (c *Controller) teardownLocked(reason string) error {
	if c.state == StateIdle {
		return nil
	}
	c.state = StateClosing
	c.log.Info("session closing", "reason", reason)

	// Stop the capture and vision loops first so nothing writes to the
	// session while it is being closed.
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.stopVideoLocked()

	if c.mic != nil {
		if err := c.mic.Close(); err != nil {
			c.log.Warn("microphone close error", "err", err)
		}
		c.mic = nil
	}
	if c.sched != nil {
		c.sched.StopAll()
		c.sched = nil
	}
	if c.sess != nil {
		if err := c.sess.Close(); err != nil {
			c.log.Warn("session close error", "err", err)
		}
		c.sess = nil
	}
	if c.speaker != nil {
		if err := c.speaker.Close(); err != nil {
			c.log.Warn("speaker close error", "err", err)
		}
		c.speaker = nil
	}
	c.acc.Reset()
	c.sessCtx = nil

	if !c.startedAt.IsZero() {
		c.metrics.RecordSessionEnd(context.Background(), time.Since(c.startedAt).Seconds())
		c.startedAt = time.Time{}
	}

	c.state = StateIdle
	c.log.Info("session closed")
	return nil
}

// eventLoop consumes the session's ordered event channel until it closes,
// then tears the session down. Running dispatch on a single goroutine keeps
// turn finalization atomic with respect to the surrounding events.
func (c *Controller) eventLoop(ctx context.Context, sess provider.Session, mic device.Microphone, sched *playback.Scheduler) {
	pipeline := capture.New(
		capture.WithLogger(c.log),
		capture.WithMetrics(c.metrics),
	)

	capturing := false
	for ev := range sess.Events() {
		if ev.Opened && !capturing {
			capturing = true
			c.markLive(sess)
			go pipeline.Run(ctx, mic.Blocks(), sess)
		}
		if ev.InputTranscription != "" {
			c.acc.AppendUser(ev.InputTranscription)
		}
		if ev.OutputTranscription != "" {
			c.acc.AppendModel(ev.OutputTranscription)
		}
		if ev.TurnComplete {
			c.finalizeTurns(ctx)
		}
		if len(ev.Audio) > 0 {
			buf := pcm.BytesToBuffer(ev.Audio, pcm.PlaybackRate, 1)
			if err := sched.Schedule(buf); err != nil {
				c.log.Debug("chunk dropped", "err", err)
			}
		}
	}

	if err := sess.Err(); err != nil {
		c.log.Error("session terminated by remote", "err", err)
	}

	// Remote close or error: run the same teardown as an explicit stop.
	// If the channel closed because Stop already ran, the state is Idle
	// and this is a no-op.
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.teardownLocked("remote close")
}

// markLive transitions Connecting → Live once the provider reports the
// session open.
func (c *Controller) markLive(sess provider.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting || c.sess != sess {
		return
	}
	c.state = StateLive
	c.log.Info("session live")
}

// finalizeTurns flushes the transcript buffers as a user turn followed by a
// model turn and hands both to the OnTurn callback.
func (c *Controller) finalizeTurns(ctx context.Context) {
	turns := c.acc.Finalize()
	c.metrics.TurnsFinalized.Add(ctx, int64(len(turns)))
	if c.onTurn == nil {
		return
	}
	for _, turn := range turns {
		c.onTurn(turn)
	}
}
