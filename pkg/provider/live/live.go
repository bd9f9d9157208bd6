// Package live defines the Provider interface for bidirectional realtime
// voice backends.
//
// A live provider wraps a service that accepts streamed microphone audio and
// camera stills and returns synthesised speech plus rolling transcription
// text in a single, stateful session.
//
// The central abstraction is [Session]: a bidirectional channel carrying
// upstream media and downstream server events. Downstream traffic arrives on
// one ordered event channel rather than per-kind channels, so consumers see
// transcription fragments, audio, and turn boundaries in exactly the order
// the server produced them.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"errors"

	"github.com/kolan-ai/kolan/pkg/pcm"
)

// ErrSessionClosed is returned by send methods after [Session.Close].
var ErrSessionClosed = errors.New("live: session closed")

// SessionConfig is the initial configuration for a new live session.
type SessionConfig struct {
	// Voice is the provider-specific name of the synthesised voice.
	// Empty selects the provider default.
	Voice string

	// Instructions is the system-level prompt that shapes the assistant's
	// behaviour for the whole session.
	Instructions string
}

// ServerEvent is one downstream message from the provider. Any combination
// of fields may be set; zero-valued fields carry no information.
type ServerEvent struct {
	// Opened reports that the provider acknowledged session setup and is
	// ready to receive media.
	Opened bool

	// InputTranscription is a fragment of the recognised user speech.
	InputTranscription string

	// OutputTranscription is a fragment of the text form of the model's
	// spoken response.
	OutputTranscription string

	// TurnComplete marks the end of a conversation turn. Transcription
	// fragments received before this event belong to the finished turn;
	// fragments after it belong to the next one.
	TurnComplete bool

	// Audio is a chunk of raw little-endian 16-bit PCM at
	// [pcm.PlaybackRate], already base64-decoded.
	Audio []byte
}

// Session represents an open live session. It is an interface so that test
// code can supply mock implementations without a live provider connection.
//
// The session is the hot path of the media loop — every method must return
// quickly. All methods must be safe for concurrent use.
//
// Callers must call Close when the session is no longer needed.
type Session interface {
	// SendAudio delivers one captured audio frame to the provider. Returns
	// [ErrSessionClosed] after Close, or the transport error if the write
	// fails. Callers treat failures as a dropped frame; the session itself
	// never retries.
	SendAudio(frame pcm.Frame) error

	// SendVideo delivers one base64-encoded JPEG still to the provider.
	// Same error contract as SendAudio.
	SendVideo(jpegBase64 string) error

	// Events returns the single ordered channel of downstream events.
	// The channel is closed when the session ends, whether by Close, a
	// transport error, or the server closing the connection. After it
	// closes, call [Session.Err] to learn whether the end was clean.
	// Consumers must drain promptly; a stalled consumer stalls the
	// session's receive loop.
	Events() <-chan ServerEvent

	// Err returns the error that terminated the session, or nil if it
	// ended cleanly.
	Err() error

	// Close terminates the session, releases all resources, and closes the
	// Events channel. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any realtime voice backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Connect establishes a new live session with the given configuration.
	// The returned Session accepts media immediately. The supplied ctx
	// governs the connection attempt only. The caller owns the Session and
	// is responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
