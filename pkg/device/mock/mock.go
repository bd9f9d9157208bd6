// Package mock provides in-memory mock implementations of the [device.Platform],
// [device.Microphone], [device.Camera], [device.Speaker], and [device.Voice]
// interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	blocks := make(chan []float32, 4)
//	mic := &mock.Microphone{BlocksResult: blocks}
//	platform := &mock.Platform{OpenMicrophoneResult: mic}
//	got, err := platform.OpenMicrophone(ctx)
package mock

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/kolan-ai/kolan/pkg/device"
	"github.com/kolan-ai/kolan/pkg/pcm"
)

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock implementation of [device.Microphone].
// Set the exported Result fields before use; inspect the Call* fields after.
type Microphone struct {
	mu sync.Mutex

	// BlocksResult is returned by [Microphone.Blocks].
	BlocksResult chan []float32

	// CloseError is returned by [Microphone.Close].
	CloseError error

	// CallCountBlocks records how many times Blocks was called.
	CallCountBlocks int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Blocks implements [device.Microphone]. Returns BlocksResult.
func (m *Microphone) Blocks() <-chan []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountBlocks++
	return m.BlocksResult
}

// Close implements [device.Microphone]. On the first call it closes
// BlocksResult (if set); subsequent calls only count. Returns CloseError.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountClose++
	if m.CallCountClose == 1 && m.BlocksResult != nil {
		close(m.BlocksResult)
	}
	return m.CloseError
}

// ─── Camera ───────────────────────────────────────────────────────────────────

// Camera is a mock implementation of [device.Camera].
type Camera struct {
	mu sync.Mutex

	// GrabResult is returned by [Camera.Grab]. Defaults to a 1x1 image if
	// left nil and GrabError is nil.
	GrabResult image.Image

	// GrabError is returned by [Camera.Grab].
	GrabError error

	// CloseError is returned by [Camera.Close].
	CloseError error

	// CallCountGrab records how many times Grab was called.
	CallCountGrab int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Grab implements [device.Camera]. Returns GrabResult / GrabError.
func (c *Camera) Grab(_ context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountGrab++
	if c.GrabError != nil {
		return nil, c.GrabError
	}
	if c.GrabResult == nil {
		return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
	}
	return c.GrabResult, nil
}

// Close implements [device.Camera]. Returns CloseError.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	return c.CloseError
}

// Grabs returns CallCountGrab under the mock's lock, for tests that poll
// while the camera is in use.
func (c *Camera) Grabs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountGrab
}

// ─── Speaker ──────────────────────────────────────────────────────────────────

// PlayCall records the arguments of a single [Speaker.Play] invocation.
type PlayCall struct {
	// Buffer is the audio passed to Play.
	Buffer pcm.Buffer
	// At is the scheduled start time passed to Play.
	At time.Time
	// Done is the completion callback passed to Play.
	Done func()
}

// Voice is a mock implementation of [device.Voice], returned by
// [Speaker.Play] for every call.
type Voice struct {
	mu sync.Mutex

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// Stop implements [device.Voice]. Records the call.
func (v *Voice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.CallCountStop++
}

// Speaker is a mock implementation of [device.Speaker]. Voices never finish
// on their own; call [PlayCall.Done] from the test to simulate natural
// completion.
type Speaker struct {
	mu sync.Mutex

	// PlayError is returned by [Speaker.Play].
	PlayError error

	// CloseError is returned by [Speaker.Close].
	CloseError error

	// PlayCalls records all Play invocations.
	PlayCalls []PlayCall

	// Voices holds the [Voice] returned for each successful Play, in order.
	Voices []*Voice

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Play implements [device.Speaker]. Records the call and returns a fresh
// [Voice], or PlayError if set.
func (s *Speaker) Play(buf pcm.Buffer, at time.Time, done func()) (device.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PlayCalls = append(s.PlayCalls, PlayCall{Buffer: buf, At: at, Done: done})
	if s.PlayError != nil {
		return nil, s.PlayError
	}
	v := &Voice{}
	s.Voices = append(s.Voices, v)
	return v, nil
}

// Plays returns len(PlayCalls) under the mock's lock, for tests that poll
// while the speaker is in use.
func (s *Speaker) Plays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.PlayCalls)
}

// Close implements [device.Speaker]. Returns CloseError.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [device.Platform].
type Platform struct {
	mu sync.Mutex

	// OpenMicrophoneResult is returned by OpenMicrophone.
	OpenMicrophoneResult device.Microphone

	// OpenMicrophoneError is returned by OpenMicrophone.
	OpenMicrophoneError error

	// OpenCameraResult is returned by OpenCamera.
	OpenCameraResult device.Camera

	// OpenCameraError is returned by OpenCamera.
	OpenCameraError error

	// OpenSpeakerResult is returned by OpenSpeaker.
	OpenSpeakerResult device.Speaker

	// OpenSpeakerError is returned by OpenSpeaker.
	OpenSpeakerError error

	// CallCountOpenMicrophone records how many times OpenMicrophone was called.
	CallCountOpenMicrophone int

	// CallCountOpenCamera records how many times OpenCamera was called.
	CallCountOpenCamera int

	// CallCountOpenSpeaker records how many times OpenSpeaker was called.
	CallCountOpenSpeaker int
}

// OpenMicrophone implements [device.Platform].
func (p *Platform) OpenMicrophone(_ context.Context) (device.Microphone, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountOpenMicrophone++
	return p.OpenMicrophoneResult, p.OpenMicrophoneError
}

// OpenCamera implements [device.Platform].
func (p *Platform) OpenCamera(_ context.Context) (device.Camera, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountOpenCamera++
	return p.OpenCameraResult, p.OpenCameraError
}

// OpenSpeaker implements [device.Platform].
func (p *Platform) OpenSpeaker(_ context.Context) (device.Speaker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountOpenSpeaker++
	return p.OpenSpeakerResult, p.OpenSpeakerError
}
