// Package transcript accumulates the rolling transcription fragments of a
// live session into finalized conversation turns.
package transcript

import "sync"

// Speaker identifies who produced a transcript turn.
type Speaker string

const (
	// SpeakerUser marks recognised user speech.
	SpeakerUser Speaker = "user"

	// SpeakerModel marks the text form of the assistant's spoken response.
	SpeakerModel Speaker = "model"
)

// Turn is one finalized conversation turn.
type Turn struct {
	// Speaker is who said it.
	Speaker Speaker

	// Text is the concatenation of every fragment received for this turn.
	// May be empty: a turn boundary finalizes whatever accumulated, even
	// nothing.
	Text string
}

// Accumulator collects transcription fragments until a turn boundary and
// emits them as a user/model turn pair. Fragments concatenate verbatim with
// no separator, so partial words split across fragments reassemble exactly.
//
// Accumulator is safe for concurrent use, though a session feeds it from a
// single event loop in practice.
type Accumulator struct {
	mu     sync.Mutex
	input  string
	output string
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// AppendUser adds a fragment of recognised user speech to the current turn.
func (a *Accumulator) AppendUser(fragment string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input += fragment
}

// AppendModel adds a fragment of the model's spoken-response text to the
// current turn.
func (a *Accumulator) AppendModel(fragment string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.output += fragment
}

// Pending returns the in-progress user and model text without finalizing.
func (a *Accumulator) Pending() (user, model string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.input, a.output
}

// Finalize closes the current turn: it returns the user turn followed by the
// model turn and clears both buffers. Both turns are always returned, even
// when one or both are empty, so the conversation log keeps its strict
// user/model alternation.
func (a *Accumulator) Finalize() [2]Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	turns := [2]Turn{
		{Speaker: SpeakerUser, Text: a.input},
		{Speaker: SpeakerModel, Text: a.output},
	}
	a.input = ""
	a.output = ""
	return turns
}

// Reset discards any in-progress fragments without emitting turns. Used when
// a session starts so stale fragments from a previous session never leak
// into the new one.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input = ""
	a.output = ""
}
