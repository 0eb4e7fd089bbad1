package pwm

import (
	"fmt"
	"strings"

	"github.com/cjeanneret/ServoGo/internal/debug"
)

// Backend names a PWM implementation.
type Backend string

const (
	BackendAuto   Backend = "auto"   // probe the host once at startup
	BackendPigpio Backend = "pigpio" // pigpiod socket interface
	BackendRPIO   Backend = "rpio"   // memory-mapped hardware PWM (go-rpio)
	BackendPeriph Backend = "periph" // periph.io PWM
	BackendDebug  Backend = "debug"  // no hardware, log only
)

// Backends lists every accepted backend name.
var Backends = []Backend{BackendAuto, BackendPigpio, BackendRPIO, BackendPeriph, BackendDebug}

// ParseBackend converts a config or flag value to a Backend.
// An empty string means BackendAuto.
func ParseBackend(s string) (Backend, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return BackendAuto, nil
	}
	for _, b := range Backends {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown PWM backend %q", s)
}

// Facade is the set of calls the servo layer needs from a PWM service.
// Pins are BCM numbers. Duty cycles use the 0..255 range of pigpio.
type Facade interface {
	SetOutputMode(pin int) error
	SetInputMode(pin int) error
	SetFrequency(pin, hz int) error
	SetPulseWidth(pin, us int) error
	SetDutyCycle(pin, duty int) error
	Stop() error
}

// DutyRange is the full-scale value accepted by SetDutyCycle.
const DutyRange = 255

// maxFrequencyHz keeps the PWM period at one microsecond or more.
const maxFrequencyHz = 1_000_000

// Options configures the connection to a PWM service.
type Options struct {
	// PigpioAddr is host:port of pigpiod. Empty means $PIGPIO_ADDR:$PIGPIO_PORT
	// with localhost:8888 as fallback.
	PigpioAddr string
}

// Open connects to the PWM service for backend. BackendAuto must be resolved
// with Probe first; BackendDebug has no facade.
func Open(backend Backend, opts Options) (Facade, error) {
	debug.Verbose("Opening PWM backend %s", backend)
	var (
		f   Facade
		err error
	)
	switch backend {
	case BackendPigpio:
		f, err = DialPigpio(opts.PigpioAddr)
	case BackendRPIO:
		f, err = OpenRPIO()
	case BackendPeriph:
		f, err = OpenPeriph()
	default:
		return nil, fmt.Errorf("PWM backend %q cannot be opened", backend)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}
