package servo

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/ServoGo/internal/debug"
	"github.com/cjeanneret/ServoGo/internal/hw/pwm"
)

// DefaultSettle is how long Move blocks after issuing a pulse width, giving
// the servo time to reach its position.
const DefaultSettle = time.Second

// Driver moves servos. RealDriver talks to a PWM service, FallbackDriver
// only logs.
type Driver interface {
	// Configure prepares pins for servo output. Must run before Move.
	Configure(pins []int) error
	// Move drives pin to position and blocks until the servo settled.
	Move(pin int, position float64) error
	// Shutdown releases every configured pin and the PWM service.
	Shutdown() error
	// Mode names the active strategy.
	Mode() string
}

// Options tunes a driver.
type Options struct {
	FrequencyHz int
	Settle      time.Duration
	Calibration Calibration
}

// DefaultOptions returns the 50 Hz, 1 s settle, 500..2500us settings.
func DefaultOptions() Options {
	return Options{
		FrequencyHz: DefaultFrequency,
		Settle:      DefaultSettle,
		Calibration: DefaultCalibration,
	}
}

// State is the lifecycle state of a RealDriver.
type State int

const (
	Uninitialized State = iota
	Connected
	ShuttingDown
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Connected:
		return "connected"
	case ShuttingDown:
		return "shutting-down"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// OpenFunc opens the connection to the PWM service.
type OpenFunc func() (pwm.Facade, error)

// RealDriver drives servos through a pwm.Facade.
type RealDriver struct {
	open  OpenFunc
	opts  Options
	sleep func(time.Duration)

	state  State
	facade pwm.Facade
	pins   []int
}

// NewRealDriver returns an unconnected driver that uses open in Connect.
func NewRealDriver(open OpenFunc, opts Options) *RealDriver {
	return &RealDriver{open: open, opts: opts, sleep: time.Sleep}
}

// State returns the current lifecycle state.
func (d *RealDriver) State() State { return d.state }

func (d *RealDriver) Mode() string { return "hardware" }

// Connect opens the PWM service. Failure is a DriverConnectionError.
func (d *RealDriver) Connect() error {
	if d.state != Uninitialized {
		return fmt.Errorf("connect: driver is %s", d.state)
	}
	f, err := d.open()
	if err != nil {
		return &DriverConnectionError{Err: err}
	}
	d.facade = f
	d.state = Connected
	return nil
}

// Configure sets output mode and the PWM frequency on every pin.
func (d *RealDriver) Configure(pins []int) error {
	if d.state != Connected {
		return fmt.Errorf("configure: driver is %s", d.state)
	}
	for _, pin := range pins {
		if err := d.facade.SetOutputMode(pin); err != nil {
			return fmt.Errorf("set output mode on pin %d: %w", pin, err)
		}
		if err := d.facade.SetFrequency(pin, d.opts.FrequencyHz); err != nil {
			return fmt.Errorf("set PWM frequency on pin %d: %w", pin, err)
		}
		d.pins = append(d.pins, pin)
	}
	return nil
}

// Move issues the pulse width for position and waits for the servo to settle.
func (d *RealDriver) Move(pin int, position float64) error {
	if d.state != Connected {
		return fmt.Errorf("move: driver is %s", d.state)
	}
	if !ValidPosition(position) {
		return &ValidationError{Msg: fmt.Sprintf("position %v outside [0, 1]", position)}
	}
	debug.Info("Rotate servo motor on pin %d to angle %g degrees ...", pin, Angle(position))
	width := d.opts.Calibration.PulseWidth(position)
	if err := d.facade.SetPulseWidth(pin, width); err != nil {
		return fmt.Errorf("set pulse width %dus on pin %d: %w", width, pin, err)
	}
	d.sleep(d.opts.Settle)
	return nil
}

// Shutdown zeroes the duty cycle and reverts every configured pin to input,
// then stops the PWM service. Only the first call does anything; later calls
// return ErrDriverClosed. Shutdown of a never-connected driver is a no-op.
func (d *RealDriver) Shutdown() error {
	switch d.state {
	case Uninitialized:
		return nil
	case ShuttingDown, Closed:
		return ErrDriverClosed
	}
	d.state = ShuttingDown
	debug.Verbose("Resetting %d servo pin(s)", len(d.pins))

	var errs []error
	for _, pin := range d.pins {
		if err := d.facade.SetDutyCycle(pin, 0); err != nil {
			errs = append(errs, fmt.Errorf("zero duty cycle on pin %d: %w", pin, err))
		}
		if err := d.facade.SetInputMode(pin); err != nil {
			errs = append(errs, fmt.Errorf("set input mode on pin %d: %w", pin, err))
		}
	}
	if err := d.facade.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop PWM service: %w", err))
	}
	d.pins = nil
	d.facade = nil
	d.state = Closed
	return errors.Join(errs...)
}

// FallbackDriver replaces hardware calls with log lines. Used when no PWM
// service is available on the host.
type FallbackDriver struct{}

func (FallbackDriver) Mode() string { return "debug" }

func (FallbackDriver) Configure(pins []int) error { return nil }

func (FallbackDriver) Move(pin int, position float64) error {
	debug.Info("Debug: Rotate servo motor on pin %d to angle %g degrees ...", pin, Angle(position))
	return nil
}

func (FallbackDriver) Shutdown() error { return nil }

// NewDriver selects the strategy for backend once. BackendAuto is probed;
// the debug backend yields a FallbackDriver. A RealDriver is returned
// connected, or with a DriverConnectionError.
func NewDriver(backend pwm.Backend, pwmOpts pwm.Options, opts Options) (Driver, error) {
	backend = pwm.Probe(backend)
	if backend == pwm.BackendDebug {
		debug.Info("Enabling GPIO debug mode, because no PWM service is available.")
		return FallbackDriver{}, nil
	}
	d := NewRealDriver(func() (pwm.Facade, error) {
		return pwm.Open(backend, pwmOpts)
	}, opts)
	if err := d.Connect(); err != nil {
		return d, err
	}
	debug.Verbose("Connected to PWM backend %s", backend)
	return d, nil
}
