package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kolan-ai/kolan/pkg/device"
	"github.com/kolan-ai/kolan/pkg/pcm"
)

// writeChunk is the number of frames handed to the device per write. Small
// enough that a stopped voice falls silent within ~43 ms at 24 kHz.
const writeChunk = 1024

// Platform implements [device.Platform] on the default PortAudio input and
// output devices. PortAudio has no video support, so OpenCamera delegates to
// OpenCameraFunc when set and fails otherwise.
type Platform struct {
	// OpenCameraFunc supplies the camera device. Wire a camera adapter such
	// as filecam here. If nil, OpenCamera returns an error.
	OpenCameraFunc func(ctx context.Context) (device.Camera, error)
}

// OpenMicrophone implements [device.Platform]. The microphone captures mono
// float32 at [pcm.CaptureRate] in blocks of [device.BlockSize] samples.
func (p *Platform) OpenMicrophone(_ context.Context) (device.Microphone, error) {
	st, err := openStream(true, pcm.CaptureRate, device.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open microphone: %w", err)
	}
	m := &microphone{
		stream: st,
		blocks: make(chan []float32, 4),
		stop:   make(chan struct{}),
	}
	go m.captureLoop()
	return m, nil
}

// OpenCamera implements [device.Platform].
func (p *Platform) OpenCamera(ctx context.Context) (device.Camera, error) {
	if p.OpenCameraFunc == nil {
		return nil, errors.New("portaudio: no camera adapter configured")
	}
	return p.OpenCameraFunc(ctx)
}

// OpenSpeaker implements [device.Platform]. The speaker plays mono float32
// at [pcm.PlaybackRate].
func (p *Platform) OpenSpeaker(_ context.Context) (device.Speaker, error) {
	st, err := openStream(false, pcm.PlaybackRate, writeChunk)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open speaker: %w", err)
	}
	return &speaker{stream: st, voices: make(map[*voice]struct{})}, nil
}

// ─── Microphone ───────────────────────────────────────────────────────────────

type microphone struct {
	stream *stream
	blocks chan []float32
	stop   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (m *microphone) captureLoop() {
	defer close(m.blocks)
	for {
		select {
		case <-m.stop:
			return
		default:
		}
		block := make([]float32, device.BlockSize)
		if err := m.stream.read(block); err != nil {
			return
		}
		// Drop the block if the reader is behind; capture never queues
		// without bound.
		select {
		case m.blocks <- block:
		default:
		}
	}
}

// Blocks implements [device.Microphone].
func (m *microphone) Blocks() <-chan []float32 {
	return m.blocks
}

// Close implements [device.Microphone].
func (m *microphone) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
		m.closeErr = m.stream.close()
	})
	return m.closeErr
}

// ─── Speaker ──────────────────────────────────────────────────────────────────

type speaker struct {
	stream *stream

	mu     sync.Mutex
	voices map[*voice]struct{}
	closed bool
}

// Play implements [device.Speaker]. Each voice runs on its own goroutine
// that sleeps until its start time and then feeds the device in chunks;
// chunked writes keep Stop responsive mid-buffer.
func (s *speaker) Play(buf pcm.Buffer, at time.Time, done func()) (device.Voice, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("portaudio: speaker closed")
	}
	v := &voice{stop: make(chan struct{})}
	s.voices[v] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.voices, v)
			s.mu.Unlock()
			if done != nil {
				done()
			}
		}()

		if wait := time.Until(at); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-v.stop:
				return
			}
		}

		samples := buf.Samples
		for len(samples) > 0 {
			select {
			case <-v.stop:
				return
			default:
			}
			n := min(len(samples), writeChunk)
			if err := s.stream.write(samples[:n]); err != nil {
				return
			}
			samples = samples[n:]
		}
	}()
	return v, nil
}

// Close implements [device.Speaker]. Stops every live voice before closing
// the underlying stream.
func (s *speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	live := make([]*voice, 0, len(s.voices))
	for v := range s.voices {
		live = append(live, v)
	}
	s.mu.Unlock()

	for _, v := range live {
		v.Stop()
	}
	return s.stream.close()
}

type voice struct {
	stopOnce sync.Once
	stop     chan struct{}
}

// Stop implements [device.Voice].
func (v *voice) Stop() {
	v.stopOnce.Do(func() { close(v.stop) })
}
