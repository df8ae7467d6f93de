package automation

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Op identifies a Sink method.
type Op string

const (
	OpType   Op = "type"
	OpKey    Op = "key"
	OpNotify Op = "notify"
)

// Call is one recorded Sink invocation.
type Call struct {
	Op    Op
	Text  string
	Delay time.Duration
	At    time.Time
}

// Recorder is a Sink that remembers every call instead of acting on it. When
// Out is set each call is also printed, passed through Redact first.
type Recorder struct {
	Out    io.Writer
	Redact func(string) string

	mu    sync.Mutex
	calls []Call
}

// NewRecorder creates a Recorder that prints to out, which may be nil.
func NewRecorder(out io.Writer, redact func(string) string) *Recorder {
	return &Recorder{Out: out, Redact: redact}
}

func (r *Recorder) TypeText(_ context.Context, text string, delay time.Duration) error {
	r.record(Call{Op: OpType, Text: text, Delay: delay})
	return nil
}

func (r *Recorder) SendKey(_ context.Context, key string) error {
	r.record(Call{Op: OpKey, Text: key})
	return nil
}

func (r *Recorder) Notify(_ context.Context, text string) error {
	r.record(Call{Op: OpNotify, Text: text})
	return nil
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

func (r *Recorder) record(c Call) {
	c.At = time.Now()

	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()

	if r.Out == nil {
		return
	}
	text := c.Text
	if r.Redact != nil {
		text = r.Redact(text)
	}
	if c.Op == OpType {
		fmt.Fprintf(r.Out, "%s %q (delay %s)\n", c.Op, text, c.Delay)
		return
	}
	fmt.Fprintf(r.Out, "%s %q\n", c.Op, text)
}
