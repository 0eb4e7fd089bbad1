package pwm

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/cjeanneret/ServoGo/internal/debug"
)

// PeriphDriver drives servos through periph.io, which picks the best PWM
// source the host offers for each pin.
type PeriphDriver struct {
	mu   sync.Mutex
	pins map[int]gpio.PinIO
	freq map[int]int
}

// OpenPeriph initializes the periph.io host drivers.
func OpenPeriph() (*PeriphDriver, error) {
	debug.Verbose("Initializing periph.io PWM driver")
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &PeriphDriver{
		pins: make(map[int]gpio.PinIO),
		freq: make(map[int]int),
	}, nil
}

func (d *PeriphDriver) resolvePin(pin int) (gpio.PinIO, error) {
	if p, ok := d.pins[pin]; ok {
		return p, nil
	}
	name := fmt.Sprintf("GPIO%d", pin)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("pin %d (%s) not found in hardware", pin, name)
	}
	d.pins[pin] = p
	return p, nil
}

func (d *PeriphDriver) SetOutputMode(pin int) error {
	debug.PWM("SetOutputMode", pin, gpio.Low)
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.resolvePin(pin)
	if err != nil {
		return err
	}
	return p.Out(gpio.Low)
}

func (d *PeriphDriver) SetInputMode(pin int) error {
	debug.PWM("SetInputMode", pin, gpio.PullNoChange)
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.resolvePin(pin)
	if err != nil {
		return err
	}
	if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return fmt.Errorf("set pin %d to input: %w", pin, err)
	}
	return nil
}

// SetFrequency records the PWM frequency; periph applies it with the next duty.
func (d *PeriphDriver) SetFrequency(pin, hz int) error {
	debug.PWM("SetFrequency", pin, hz)
	if hz <= 0 || hz > maxFrequencyHz {
		return fmt.Errorf("periph: frequency must be 1-%d Hz, got %d", maxFrequencyHz, hz)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.resolvePin(pin); err != nil {
		return err
	}
	d.freq[pin] = hz
	return nil
}

func (d *PeriphDriver) SetPulseWidth(pin, us int) error {
	debug.PWM("SetPulseWidth", pin, us)
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.resolvePin(pin)
	if err != nil {
		return err
	}
	hz, ok := d.freq[pin]
	if !ok {
		return fmt.Errorf("periph: pin %d has no frequency set", pin)
	}
	periodUS := int64(1_000_000 / hz)
	if us < 0 || int64(us) > periodUS {
		return fmt.Errorf("periph: pulse width %dus outside period %dus", us, periodUS)
	}
	duty := gpio.Duty(int64(us) * int64(gpio.DutyMax) / periodUS)
	return p.PWM(duty, physic.Frequency(hz)*physic.Hertz)
}

func (d *PeriphDriver) SetDutyCycle(pin, duty int) error {
	debug.PWM("SetDutyCycle", pin, duty)
	if duty < 0 || duty > DutyRange {
		return fmt.Errorf("periph: duty cycle %d outside 0..%d", duty, DutyRange)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.resolvePin(pin)
	if err != nil {
		return err
	}
	if duty == 0 {
		return p.Out(gpio.Low)
	}
	hz := d.freq[pin]
	if hz == 0 {
		return fmt.Errorf("periph: pin %d has no frequency set", pin)
	}
	return p.PWM(gpio.Duty(int64(duty)*int64(gpio.DutyMax)/DutyRange), physic.Frequency(hz)*physic.Hertz)
}

// Stop halts every pin touched by the driver.
func (d *PeriphDriver) Stop() error {
	debug.Trace("periph.io driver stop")
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for pin, p := range d.pins {
		if err := p.Halt(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("halt pin %d: %w", pin, err)
		}
	}
	d.pins = make(map[int]gpio.PinIO)
	d.freq = make(map[int]int)
	return firstErr
}
