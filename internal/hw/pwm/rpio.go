package pwm

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/cjeanneret/ServoGo/internal/debug"
)

// rpioCycle is the number of PWM clock ticks per period. With a 50 Hz servo
// period one tick is one microsecond.
const rpioCycle = 20000

// rpioPWMPins are the BCM pins wired to the hardware PWM channels.
var rpioPWMPins = map[int]bool{
	12: true,
	13: true,
	18: true,
	19: true,
}

// RPIODriver drives servos from the BCM2835 hardware PWM through go-rpio.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
type RPIODriver struct {
	freq map[int]int
}

// OpenRPIO memory-maps the GPIO registers.
func OpenRPIO() (*RPIODriver, error) {
	debug.Verbose("Initializing hardware PWM driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	return &RPIODriver{freq: make(map[int]int)}, nil
}

func (r *RPIODriver) pin(pin int) (rpio.Pin, error) {
	if !rpioPWMPins[pin] {
		return 0, fmt.Errorf("rpio: pin %d has no hardware PWM channel (use 12, 13, 18 or 19)", pin)
	}
	return rpio.Pin(pin), nil
}

func (r *RPIODriver) SetOutputMode(pin int) error {
	debug.PWM("SetOutputMode", pin, "pwm")
	p, err := r.pin(pin)
	if err != nil {
		return err
	}
	p.Mode(rpio.Pwm)
	return nil
}

func (r *RPIODriver) SetInputMode(pin int) error {
	debug.PWM("SetInputMode", pin, "input")
	p, err := r.pin(pin)
	if err != nil {
		return err
	}
	p.Input()
	delete(r.freq, pin)
	return nil
}

func (r *RPIODriver) SetFrequency(pin, hz int) error {
	debug.PWM("SetFrequency", pin, hz)
	p, err := r.pin(pin)
	if err != nil {
		return err
	}
	if hz <= 0 || hz > maxFrequencyHz {
		return fmt.Errorf("rpio: frequency must be 1-%d Hz, got %d", maxFrequencyHz, hz)
	}
	p.Freq(hz * rpioCycle)
	r.freq[pin] = hz
	return nil
}

func (r *RPIODriver) SetPulseWidth(pin, us int) error {
	debug.PWM("SetPulseWidth", pin, us)
	p, err := r.pin(pin)
	if err != nil {
		return err
	}
	hz, ok := r.freq[pin]
	if !ok {
		return fmt.Errorf("rpio: pin %d has no frequency set", pin)
	}
	periodUS := 1_000_000 / hz
	if us < 0 || us > periodUS {
		return fmt.Errorf("rpio: pulse width %dus outside period %dus", us, periodUS)
	}
	p.DutyCycle(uint32(us*rpioCycle/periodUS), rpioCycle)
	return nil
}

func (r *RPIODriver) SetDutyCycle(pin, duty int) error {
	debug.PWM("SetDutyCycle", pin, duty)
	p, err := r.pin(pin)
	if err != nil {
		return err
	}
	if duty < 0 || duty > DutyRange {
		return fmt.Errorf("rpio: duty cycle %d outside 0..%d", duty, DutyRange)
	}
	p.DutyCycle(uint32(duty*rpioCycle/DutyRange), rpioCycle)
	return nil
}

// Stop unmaps the GPIO registers.
func (r *RPIODriver) Stop() error {
	debug.Trace("GPIO Close (go-rpio)")
	return rpio.Close()
}
