package servo

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cjeanneret/ServoGo/internal/debug"
)

// CLIServoName is the registry key used by one-shot mode.
const CLIServoName = "cli"

// Servo is a named servo motor on a BCM GPIO pin.
type Servo struct {
	Name string
	Pin  int
}

// Registry maps servo names to GPIO pins. It is filled once at startup and
// only read afterwards.
type Registry struct {
	pins map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{pins: make(map[string]int)}
}

// Register parses pinSpec and maps name to it. Registering a name twice
// keeps the last pin.
func (r *Registry) Register(name, pinSpec string) (Servo, error) {
	pin, err := strconv.Atoi(strings.TrimSpace(pinSpec))
	if err != nil {
		return Servo{}, &ConfigError{Spec: pinSpec, Msg: "GPIO pin is not an integer"}
	}
	if pin < 1 {
		return Servo{}, &ConfigError{Spec: pinSpec, Msg: "GPIO pins must be positive integers"}
	}
	if old, ok := r.pins[name]; ok && old != pin {
		debug.Verbose("Servo %q re-registered: pin %d replaces pin %d", name, pin, old)
	}
	r.pins[name] = pin
	return Servo{Name: name, Pin: pin}, nil
}

// Lookup returns the pin of the named servo.
func (r *Registry) Lookup(name string) (int, error) {
	pin, ok := r.pins[name]
	if !ok {
		return 0, &NotFoundError{Name: name}
	}
	return pin, nil
}

// Len returns the number of registered servos.
func (r *Registry) Len() int { return len(r.pins) }

// Servos returns all servos sorted by name.
func (r *Registry) Servos() []Servo {
	out := make([]Servo, 0, len(r.pins))
	for name, pin := range r.pins {
		out = append(out, Servo{Name: name, Pin: pin})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Pins returns the distinct registered pins in ascending order.
func (r *Registry) Pins() []int {
	seen := make(map[int]bool, len(r.pins))
	out := make([]int, 0, len(r.pins))
	for _, pin := range r.pins {
		if !seen[pin] {
			seen[pin] = true
			out = append(out, pin)
		}
	}
	sort.Ints(out)
	return out
}

// ParsePair splits a KEY=VALUE argument on its first '='.
func ParsePair(s string) (key, value string, err error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return "", "", &ConfigError{Spec: s, Msg: "expected KEY=VALUE"}
	}
	return key, value, nil
}

// RegisterPairs registers every NAME=PIN pair in order.
func (r *Registry) RegisterPairs(pairs []string) error {
	for _, p := range pairs {
		name, pin, err := ParsePair(p)
		if err != nil {
			return err
		}
		if _, err := r.Register(name, pin); err != nil {
			return err
		}
	}
	return nil
}
