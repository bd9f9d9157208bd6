// Command kolan is the terminal front-end for the kolan live assistant: it
// streams microphone audio (and optionally camera stills) to a realtime
// generative voice session and plays the synthesized replies.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kolan-ai/kolan/internal/config"
	"github.com/kolan-ai/kolan/internal/health"
	"github.com/kolan-ai/kolan/internal/live"
	"github.com/kolan-ai/kolan/internal/observe"
	"github.com/kolan-ai/kolan/internal/transcript"
	"github.com/kolan-ai/kolan/pkg/device"
	"github.com/kolan-ai/kolan/pkg/device/filecam"
	devmock "github.com/kolan-ai/kolan/pkg/device/mock"
	"github.com/kolan-ai/kolan/pkg/device/portaudio"
	provider "github.com/kolan-ai/kolan/pkg/provider/live"
	geminilive "github.com/kolan-ai/kolan/pkg/provider/live/gemini"
)

const (
	defaultVoice             = "Zephyr"
	defaultSystemInstruction = "You are Aiven, a friendly and helpful AI assistant speaking Hebrew."
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kolan: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kolan: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := &slog.LevelVar{}
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("kolan starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
		"metrics_addr", cfg.Server.MetricsAddr,
	)

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownObserve, err := observe.InitProvider(observe.ProviderConfig{ServiceName: "kolan"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObserve(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltins(reg)

	liveProvider, err := reg.CreateLive(cfg.Live)
	if err != nil {
		slog.Error("failed to create live provider", "err", err)
		return 1
	}
	platform, err := reg.CreatePlatform(*cfg)
	if err != nil {
		slog.Error("failed to create device platform", "err", err)
		return 1
	}

	// ── Controller ────────────────────────────────────────────────────────────
	voice := cfg.Live.Voice
	if voice == "" {
		voice = defaultVoice
	}
	instructions := cfg.Live.SystemInstruction
	if instructions == "" {
		instructions = defaultSystemInstruction
	}

	ctrl := live.NewController(live.ControllerConfig{
		Platform: platform,
		Provider: liveProvider,
		Session: provider.SessionConfig{
			Voice:        voice,
			Instructions: instructions,
		},
		VideoInterval: cfg.Video.FrameInterval(),
		VideoQuality:  cfg.Video.JPEGQuality,
		OnTurn:        printTurn,
		Logger:        logger,
	})

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.VideoChanged {
			slog.Info("video settings changed; they apply the next time video starts")
		}
		if d.RestartRequired {
			slog.Warn("live/audio configuration changed; restart kolan to apply")
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	// ── Ops endpoint: /metrics, /healthz, /readyz ─────────────────────────────
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		health.New(
			health.Checker{Name: "config", Check: func(_ context.Context) error {
				_, err := os.Stat(*configPath)
				return err
			}},
			health.Checker{Name: "session", Check: func(_ context.Context) error {
				if ctrl.State() == live.StateClosing {
					return errors.New("session is shutting down")
				}
				return nil
			}},
		).Register(mux)

		handler := observe.Middleware(observe.DefaultMetrics())(mux)
		srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: handler}

		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// ── Session ───────────────────────────────────────────────────────────────
	if err := ctrl.Start(gctx); err != nil {
		if errors.Is(err, device.ErrPermissionDenied) {
			slog.Error("microphone access denied — check device permissions", "err", err)
		} else {
			slog.Error("failed to start session", "err", err)
		}
		cancel()
		_ = g.Wait()
		return 1
	}

	fmt.Println("kolan is listening — press 'v'+Enter to toggle video, 'q'+Enter or Ctrl+C to quit")

	// The command loop blocks on stdin reads, so it runs detached and is
	// abandoned at process exit rather than joined.
	go commandLoop(gctx, cancel, ctrl)

	<-gctx.Done()

	slog.Info("shutdown signal received, stopping…")
	if err := ctrl.Stop(); err != nil {
		slog.Warn("session stop error", "err", err)
	}
	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltins wires the provider and platform factories that ship with
// kolan into reg.
func registerBuiltins(reg *config.Registry) {
	reg.RegisterLive("gemini", func(lc config.LiveConfig) (provider.Provider, error) {
		apiKey := lc.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini: no API key; set live.api_key or GEMINI_API_KEY")
		}
		var opts []geminilive.Option
		if lc.Model != "" {
			opts = append(opts, geminilive.WithModel(lc.Model))
		}
		if lc.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(lc.BaseURL))
		}
		return geminilive.New(apiKey, opts...), nil
	})

	reg.RegisterPlatform("portaudio", func(cfg config.Config) (device.Platform, error) {
		p := &portaudio.Platform{}
		if dir := cfg.Video.SourceDir; dir != "" {
			p.OpenCameraFunc = func(_ context.Context) (device.Camera, error) {
				return filecam.Open(dir)
			}
		}
		return p, nil
	})

	// The mock platform produces no audio and swallows playback. Useful for
	// exercising the session protocol on machines without sound hardware.
	reg.RegisterPlatform("mock", func(cfg config.Config) (device.Platform, error) {
		p := &devmock.Platform{
			OpenMicrophoneResult: &devmock.Microphone{BlocksResult: make(chan []float32)},
			OpenSpeakerResult:    &devmock.Speaker{},
			OpenCameraResult:     &devmock.Camera{},
		}
		if dir := cfg.Video.SourceDir; dir != "" {
			cam, err := filecam.Open(dir)
			if err != nil {
				return nil, err
			}
			p.OpenCameraResult = cam
		}
		return p, nil
	})
}

// ── Terminal surface ──────────────────────────────────────────────────────────

// commandLoop reads single-letter commands from stdin until the context ends
// or the user quits.
func commandLoop(ctx context.Context, quit context.CancelFunc, ctrl *live.Controller) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "v":
			if ctrl.VideoActive() {
				ctrl.StopVideo()
				fmt.Println("video off")
			} else if err := ctrl.StartVideo(ctx); err != nil {
				slog.Error("failed to start video", "err", err)
			} else {
				fmt.Println("video on")
			}
		case "q":
			quit()
			return
		case "":
		default:
			fmt.Println("commands: v = toggle video, q = quit")
		}
	}
}

// printTurn renders one finalized transcript turn to the terminal. Empty
// turns keep the user/model alternation but have nothing to show.
func printTurn(turn transcript.Turn) {
	if turn.Text == "" {
		return
	}
	switch turn.Speaker {
	case transcript.SpeakerUser:
		fmt.Printf("you  › %s\n", turn.Text)
	case transcript.SpeakerModel:
		fmt.Printf("aiven› %s\n", turn.Text)
	}
}

// ── Logger ────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
