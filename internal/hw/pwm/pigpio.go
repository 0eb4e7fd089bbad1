package pwm

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cjeanneret/ServoGo/internal/debug"
)

// pigpiod socket command numbers.
const (
	cmdModes = 0
	cmdPWM   = 5
	cmdPFS   = 7
	cmdServo = 8
)

// pigpio GPIO modes.
const (
	modeInput  = 0
	modeOutput = 1
)

const (
	defaultPigpioHost = "localhost"
	defaultPigpioPort = "8888"
	pigpioDialTimeout = 5 * time.Second
)

var pigpioErrors = map[int32]string{
	-2:  "bad gpio level",
	-3:  "bad gpio number",
	-4:  "bad gpio mode",
	-7:  "bad pulsewidth",
	-8:  "bad dutycycle",
	-41: "gpio operation not permitted",
	-92: "bad dutyrange",
}

// PigpioError is a negative result returned by pigpiod.
type PigpioError struct {
	Cmd  uint32
	Code int32
}

func (e *PigpioError) Error() string {
	if msg, ok := pigpioErrors[e.Code]; ok {
		return fmt.Sprintf("pigpio command %d: %s (%d)", e.Cmd, msg, e.Code)
	}
	return fmt.Sprintf("pigpio command %d failed with code %d", e.Cmd, e.Code)
}

// PigpioClient talks to pigpiod over its socket interface.
// Each request is four little-endian uint32 words {cmd, p1, p2, p3};
// the reply echoes the first three and carries the result in the fourth.
type PigpioClient struct {
	mu   sync.Mutex
	conn net.Conn
}

// PigpioAddr returns the pigpiod address used when none is configured,
// honouring the PIGPIO_ADDR and PIGPIO_PORT variables of the pigpio tools.
func PigpioAddr() string {
	host := os.Getenv("PIGPIO_ADDR")
	if host == "" {
		host = defaultPigpioHost
	}
	port := os.Getenv("PIGPIO_PORT")
	if port == "" {
		port = defaultPigpioPort
	}
	return net.JoinHostPort(host, port)
}

// DialPigpio connects to pigpiod at addr (PigpioAddr() when empty).
func DialPigpio(addr string) (*PigpioClient, error) {
	if addr == "" {
		addr = PigpioAddr()
	}
	debug.Verbose("Connecting to pigpiod at %s", addr)
	conn, err := net.DialTimeout("tcp", addr, pigpioDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to pigpiod at %s: %w", addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return &PigpioClient{conn: conn}, nil
}

func (c *PigpioClient) command(cmd, p1, p2 uint32) (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return 0, fmt.Errorf("pigpio: connection closed")
	}

	var req [16]byte
	binary.LittleEndian.PutUint32(req[0:], cmd)
	binary.LittleEndian.PutUint32(req[4:], p1)
	binary.LittleEndian.PutUint32(req[8:], p2)
	if _, err := c.conn.Write(req[:]); err != nil {
		return 0, fmt.Errorf("pigpio: write command %d: %w", cmd, err)
	}

	var resp [16]byte
	if _, err := io.ReadFull(c.conn, resp[:]); err != nil {
		return 0, fmt.Errorf("pigpio: read reply to command %d: %w", cmd, err)
	}
	res := int32(binary.LittleEndian.Uint32(resp[12:]))
	if res < 0 {
		return res, &PigpioError{Cmd: cmd, Code: res}
	}
	return res, nil
}

func (c *PigpioClient) SetOutputMode(pin int) error {
	debug.PWM("SetOutputMode", pin, modeOutput)
	_, err := c.command(cmdModes, uint32(pin), modeOutput)
	return err
}

func (c *PigpioClient) SetInputMode(pin int) error {
	debug.PWM("SetInputMode", pin, modeInput)
	_, err := c.command(cmdModes, uint32(pin), modeInput)
	return err
}

func (c *PigpioClient) SetFrequency(pin, hz int) error {
	debug.PWM("SetFrequency", pin, hz)
	got, err := c.command(cmdPFS, uint32(pin), uint32(hz))
	if err != nil {
		return err
	}
	if int(got) != hz {
		debug.Verbose("pigpiod set pin %d to %d Hz (requested %d Hz)", pin, got, hz)
	}
	return nil
}

func (c *PigpioClient) SetPulseWidth(pin, us int) error {
	debug.PWM("SetPulseWidth", pin, us)
	_, err := c.command(cmdServo, uint32(pin), uint32(us))
	return err
}

func (c *PigpioClient) SetDutyCycle(pin, duty int) error {
	debug.PWM("SetDutyCycle", pin, duty)
	_, err := c.command(cmdPWM, uint32(pin), uint32(duty))
	return err
}

// Stop closes the connection to pigpiod.
func (c *PigpioClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	debug.Trace("pigpiod connection close")
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
