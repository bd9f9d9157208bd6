// Package portaudio implements [device.Platform] on top of the PortAudio
// C library for real microphone and speaker hardware.
//
// Building requires portaudio installed via pkg-config
// (apt install portaudio19-dev / brew install portaudio).
package portaudio

/*
#cgo pkg-config: portaudio-2.0

#include <portaudio.h>
#include <stdlib.h>
#include <string.h>

// Wrapper functions using void* to avoid CGO type issues with PaStream
static PaError pa_open_stream(void **stream,
                              const PaStreamParameters *inputParams,
                              const PaStreamParameters *outputParams,
                              double sampleRate,
                              unsigned long framesPerBuffer,
                              PaStreamFlags streamFlags) {
    return Pa_OpenStream((PaStream**)stream, inputParams, outputParams, sampleRate,
                         framesPerBuffer, streamFlags, NULL, NULL);
}

static PaError pa_start_stream(void *stream) {
    return Pa_StartStream((PaStream*)stream);
}

static PaError pa_stop_stream(void *stream) {
    return Pa_StopStream((PaStream*)stream);
}

static PaError pa_close_stream(void *stream) {
    return Pa_CloseStream((PaStream*)stream);
}

static PaError pa_read_stream(void *stream, void *buffer, unsigned long frames) {
    return Pa_ReadStream((PaStream*)stream, buffer, frames);
}

static PaError pa_write_stream(void *stream, const void *buffer, unsigned long frames) {
    return Pa_WriteStream((PaStream*)stream, buffer, frames);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

var (
	initOnce sync.Once
	initErr  error
)

// paError converts a PortAudio error code to a Go error.
func paError(code C.PaError) error {
	if code == C.paNoError {
		return nil
	}
	return errors.New(C.GoString(C.Pa_GetErrorText(code)))
}

// initialize initializes the PortAudio library once per process.
func initialize() error {
	initOnce.Do(func() {
		initErr = paError(C.Pa_Initialize())
	})
	if initErr != nil {
		return fmt.Errorf("portaudio: initialize: %w", initErr)
	}
	return nil
}

// stream is a mono float32 PortAudio stream in blocking read/write mode.
type stream struct {
	mu     sync.Mutex
	ptr    unsafe.Pointer
	buf    unsafe.Pointer
	frames int
	closed bool
}

// openStream opens the default input or output device as mono float32.
// Exactly one of input/output must be true.
func openStream(input bool, sampleRate float64, framesPerBuffer int) (*stream, error) {
	if err := initialize(); err != nil {
		return nil, err
	}

	var dev C.PaDeviceIndex
	if input {
		dev = C.Pa_GetDefaultInputDevice()
	} else {
		dev = C.Pa_GetDefaultOutputDevice()
	}
	if dev == C.paNoDevice {
		return nil, errors.New("portaudio: no default device")
	}
	info := C.Pa_GetDeviceInfo(dev)
	if info == nil {
		return nil, errors.New("portaudio: device info unavailable")
	}

	params := &C.PaStreamParameters{
		device:                    dev,
		channelCount:              1,
		sampleFormat:              C.paFloat32,
		hostApiSpecificStreamInfo: nil,
	}
	var inParams, outParams *C.PaStreamParameters
	if input {
		params.suggestedLatency = info.defaultLowInputLatency
		inParams = params
	} else {
		params.suggestedLatency = info.defaultLowOutputLatency
		outParams = params
	}

	var ptr unsafe.Pointer
	if err := paError(C.pa_open_stream(&ptr, inParams, outParams,
		C.double(sampleRate), C.ulong(framesPerBuffer), C.paClipOff)); err != nil {
		return nil, fmt.Errorf("portaudio: open stream: %w", err)
	}
	if err := paError(C.pa_start_stream(ptr)); err != nil {
		C.pa_close_stream(ptr)
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}

	return &stream{
		ptr:    ptr,
		buf:    C.malloc(C.size_t(framesPerBuffer * 4)), // float32 = 4 bytes
		frames: framesPerBuffer,
	}, nil
}

// read fills dst with up to one buffer of captured samples.
// dst must hold at least the stream's frames-per-buffer samples.
func (s *stream) read(dst []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("portaudio: stream closed")
	}
	if err := paError(C.pa_read_stream(s.ptr, s.buf, C.ulong(s.frames))); err != nil {
		return fmt.Errorf("portaudio: read: %w", err)
	}
	C.memcpy(unsafe.Pointer(&dst[0]), s.buf, C.size_t(s.frames*4))
	return nil
}

// write plays the given samples, blocking until the device accepts them.
// len(src) must not exceed the stream's frames-per-buffer.
func (s *stream) write(src []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("portaudio: stream closed")
	}
	if len(src) == 0 {
		return nil
	}
	C.memcpy(s.buf, unsafe.Pointer(&src[0]), C.size_t(len(src)*4))
	if err := paError(C.pa_write_stream(s.ptr, s.buf, C.ulong(len(src)))); err != nil {
		return fmt.Errorf("portaudio: write: %w", err)
	}
	return nil
}

// close stops and closes the stream. Safe to call more than once.
func (s *stream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	C.pa_stop_stream(s.ptr)
	err := paError(C.pa_close_stream(s.ptr))
	C.free(s.buf)
	return err
}
