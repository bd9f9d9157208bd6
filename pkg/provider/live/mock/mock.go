// Package mock provides in-memory mock implementations of the [live.Provider]
// and [live.Session] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	sess := mock.NewSession()
//	provider := &mock.Provider{ConnectResult: sess}
//	got, err := provider.Connect(ctx, live.SessionConfig{})
//	sess.Emit(live.ServerEvent{Opened: true})
package mock

import (
	"context"
	"sync"

	"github.com/kolan-ai/kolan/pkg/pcm"
	"github.com/kolan-ai/kolan/pkg/provider/live"
)

// ─── Session ──────────────────────────────────────────────────────────────────

// Session is a mock implementation of [live.Session].
// Set the exported error fields before use; inspect the recorded calls after.
// Use [Session.Emit] to feed events and [Session.Close] to end the stream.
type Session struct {
	mu sync.Mutex

	// SendAudioError is returned by [Session.SendAudio].
	SendAudioError error

	// SendVideoError is returned by [Session.SendVideo].
	SendVideoError error

	// ErrResult is returned by [Session.Err].
	ErrResult error

	// CloseError is returned by [Session.Close].
	CloseError error

	// SendAudioCalls records the frames passed to SendAudio.
	SendAudioCalls []pcm.Frame

	// SendVideoCalls records the stills passed to SendVideo.
	SendVideoCalls []string

	// CallCountClose records how many times Close was called.
	CallCountClose int

	events chan live.ServerEvent
	closed bool
}

// NewSession returns a Session with a buffered events channel ready for Emit.
func NewSession() *Session {
	return &Session{events: make(chan live.ServerEvent, 64)}
}

// SendAudio implements [live.Session]. Records the frame.
func (s *Session) SendAudio(frame pcm.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = append(s.SendAudioCalls, frame)
	if s.closed && s.SendAudioError == nil {
		return live.ErrSessionClosed
	}
	return s.SendAudioError
}

// SendVideo implements [live.Session]. Records the still.
func (s *Session) SendVideo(jpegBase64 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendVideoCalls = append(s.SendVideoCalls, jpegBase64)
	if s.closed && s.SendVideoError == nil {
		return live.ErrSessionClosed
	}
	return s.SendVideoError
}

// Events implements [live.Session].
func (s *Session) Events() <-chan live.ServerEvent { return s.events }

// Err implements [live.Session]. Returns ErrResult.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrResult
}

// Close implements [live.Session]. On the first call it closes the events
// channel; subsequent calls only count. Returns CloseError.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return s.CloseError
}

// Emit queues ev on the events channel. Use this in tests to simulate
// downstream traffic. Emitting after Close panics, matching the invariant
// that a real session never produces events past termination.
func (s *Session) Emit(ev live.ServerEvent) {
	s.events <- ev
}

// AudioFrames returns a snapshot of the frames recorded by SendAudio.
func (s *Session) AudioFrames() []pcm.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pcm.Frame, len(s.SendAudioCalls))
	copy(out, s.SendAudioCalls)
	return out
}

// VideoStills returns a snapshot of the stills recorded by SendVideo.
func (s *Session) VideoStills() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.SendVideoCalls))
	copy(out, s.SendVideoCalls)
	return out
}

// ─── Provider ─────────────────────────────────────────────────────────────────

// ConnectCall records the arguments of a single [Provider.Connect] invocation.
type ConnectCall struct {
	// Config is the session configuration passed to Connect.
	Config live.SessionConfig
}

// Provider is a mock implementation of [live.Provider].
type Provider struct {
	mu sync.Mutex

	// ConnectResult is the [live.Session] returned by Connect.
	ConnectResult live.Session

	// ConnectError is the error returned by Connect.
	ConnectError error

	// ConnectCalls records all Connect invocations.
	ConnectCalls []ConnectCall
}

// Connect implements [live.Provider]. Records the call and returns
// ConnectResult / ConnectError.
func (p *Provider) Connect(_ context.Context, cfg live.SessionConfig) (live.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Config: cfg})
	return p.ConnectResult, p.ConnectError
}
