// Package pwmtest provides a recording pwm.Facade for tests.
package pwmtest

import (
	"sync"
)

// Call is one recorded facade call.
type Call struct {
	Op    string // "output", "input", "frequency", "pulsewidth", "dutycycle", "stop"
	Pin   int
	Value int
}

// Recorder records facade calls. Set Err[op] to make that operation fail.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	Err   map[string]error
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{Err: make(map[string]error)}
}

func (r *Recorder) record(op string, pin, value int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: op, Pin: pin, Value: value})
	return r.Err[op]
}

func (r *Recorder) SetOutputMode(pin int) error      { return r.record("output", pin, 0) }
func (r *Recorder) SetInputMode(pin int) error       { return r.record("input", pin, 0) }
func (r *Recorder) SetFrequency(pin, hz int) error   { return r.record("frequency", pin, hz) }
func (r *Recorder) SetPulseWidth(pin, us int) error  { return r.record("pulsewidth", pin, us) }
func (r *Recorder) SetDutyCycle(pin, duty int) error { return r.record("dutycycle", pin, duty) }
func (r *Recorder) Stop() error                      { return r.record("stop", 0, 0) }

// Calls returns a copy of every recorded call.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsOf returns the recorded calls for op.
func (r *Recorder) CallsOf(op string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
