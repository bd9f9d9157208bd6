// Package device defines the interfaces for local audio and video hardware
// used by a live session: a microphone delivering fixed-size sample blocks,
// a camera delivering still frames, and a speaker playing scheduled audio.
//
// The two primary abstractions are:
//
//   - [Platform] — opens the individual devices on demand.
//   - [Microphone] / [Camera] / [Speaker] — the opened devices themselves.
//
// Implementations are provided by adapter packages (device/portaudio for
// real hardware, device/filecam for image sequences, device/mock for tests).
// The interfaces are intentionally narrow to keep the session controller
// decoupled from hardware details.
//
// This package lives under pkg/ because external code (alternative hardware
// adapters) is expected to implement these interfaces.
package device

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/kolan-ai/kolan/pkg/pcm"
)

// BlockSize is the number of samples per microphone block.
const BlockSize = 4096

// ErrPermissionDenied is returned by [Platform] open methods when the
// operating system refuses access to the device. Callers match it with
// [errors.Is] to distinguish a denied device from a broken one.
var ErrPermissionDenied = errors.New("device: permission denied")

// Microphone is an open audio capture device.
//
// A Microphone is obtained from [Platform.OpenMicrophone] and remains valid
// until [Microphone.Close] is called. The blocks channel is closed
// automatically when the device closes.
//
// Implementations must be safe for concurrent use.
type Microphone interface {
	// Blocks returns the read-only channel of captured sample blocks.
	// Each block holds exactly [BlockSize] mono float32 samples in [-1, 1]
	// at [pcm.CaptureRate]. The channel is closed when the microphone is
	// closed; a slow reader causes blocks to be dropped, never buffered
	// without bound.
	Blocks() <-chan []float32

	// Close releases the device and closes the blocks channel. It is safe
	// to call Close more than once; subsequent calls are no-ops and
	// return nil.
	Close() error
}

// Camera is an open still-frame video capture device.
//
// Implementations must be safe for concurrent use.
type Camera interface {
	// Grab captures and returns the current frame at the device's native
	// resolution. It blocks until a frame is available or ctx is done.
	Grab(ctx context.Context) (image.Image, error)

	// Close releases the device. Safe to call more than once.
	Close() error
}

// Voice is a single scheduled utterance on a [Speaker]. It is handed out by
// [Speaker.Play] so the caller can cut playback short.
type Voice interface {
	// Stop halts playback immediately. It is safe to call more than once
	// and after the voice has already finished naturally.
	Stop()
}

// Speaker is an open audio output device.
//
// Implementations must be safe for concurrent use.
type Speaker interface {
	// Play schedules buf to begin sounding at the given wall-clock time
	// and returns a [Voice] handle for it. If at is in the past the buffer
	// starts immediately. The done callback, if non-nil, is invoked exactly
	// once when the voice finishes, whether it played to completion or was
	// stopped; it runs on an internal goroutine and must not block.
	Play(buf pcm.Buffer, at time.Time, done func()) (Voice, error)

	// Close stops all voices and releases the device. Safe to call more
	// than once.
	Close() error
}

// Platform is the entry point for a hardware provider. Implementations wrap
// OS or library specifics (PortAudio, V4L2, …) and expose uniform device
// handles. Each open method acquires the device fresh; callers own the
// returned handle and must close it.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// OpenMicrophone acquires the capture device. The supplied ctx governs
	// the acquisition only; once open, the microphone remains alive until
	// [Microphone.Close]. Returns [ErrPermissionDenied] (possibly wrapped)
	// when access is refused.
	OpenMicrophone(ctx context.Context) (Microphone, error)

	// OpenCamera acquires the video device. Same contract as OpenMicrophone.
	OpenCamera(ctx context.Context) (Camera, error)

	// OpenSpeaker acquires the output device. Same contract as OpenMicrophone.
	OpenSpeaker(ctx context.Context) (Speaker, error)
}
