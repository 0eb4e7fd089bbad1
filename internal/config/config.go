package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/ServoGo/internal/hw/pwm"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Listen  string `yaml:"listen"`   // bind address (default: localhost)
	Port    int    `yaml:"port"`     // bind port (default: 1234)
	CORS    string `yaml:"cors"`     // Access-Control-Allow-Origin value, empty = no header
	SSLKey  string `yaml:"ssl_key"`  // TLS key path; TLS needs both key and cert
	SSLCert string `yaml:"ssl_cert"` // TLS certificate path
}

// DriverConfig selects and tunes the PWM backend.
type DriverConfig struct {
	Backend     string `yaml:"backend"`      // auto, pigpio, rpio, periph or debug
	PigpioAddr  string `yaml:"pigpio_addr"`  // host:port of pigpiod, empty = $PIGPIO_ADDR or localhost:8888
	FrequencyHz int    `yaml:"frequency_hz"` // PWM frequency (default: 50)
	SettleMs    *int   `yaml:"settle_ms"`    // wait after each move (default: 1000)
	MinPulseUs  int    `yaml:"min_pulse_us"` // pulse width at position 0 (default: 500)
	MaxPulseUs  int    `yaml:"max_pulse_us"` // pulse width at position 1 (default: 2500)
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Server   ServerConfig      `yaml:"server"`
	Servos   map[string]string `yaml:"servos"` // NAME: PIN, validated by the servo registry
	Driver   DriverConfig      `yaml:"driver"`
	Defaults DefaultsConfig    `yaml:"defaults"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Defaults: DefaultsConfig{DebugLevel: 1}}
	if err := cfg.applyDefaults(); err != nil {
		panic(err) // defaults are always valid
	}
	return cfg
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Defaults: DefaultsConfig{DebugLevel: 1}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Server.Listen == "" {
		c.Server.Listen = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 1234
	}
	if c.Driver.Backend == "" {
		c.Driver.Backend = string(pwm.BackendAuto)
	}
	if c.Driver.FrequencyHz == 0 {
		c.Driver.FrequencyHz = 50
	}
	if c.Driver.SettleMs == nil {
		settle := 1000
		c.Driver.SettleMs = &settle
	}
	if c.Driver.MinPulseUs == 0 {
		c.Driver.MinPulseUs = 500
	}
	if c.Driver.MaxPulseUs == 0 {
		c.Driver.MaxPulseUs = 2500
	}
	if c.Servos == nil {
		c.Servos = make(map[string]string)
	}
	return c.Validate()
}

// MaxFrequencyHz is the highest accepted servo PWM frequency. Digital servos
// top out around 333 Hz.
const MaxFrequencyHz = 400

// Validate checks value ranges. Servo pins are left to the servo registry.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if _, err := pwm.ParseBackend(c.Driver.Backend); err != nil {
		return fmt.Errorf("driver.backend: %w", err)
	}
	if c.Driver.FrequencyHz <= 0 || c.Driver.FrequencyHz > MaxFrequencyHz {
		return fmt.Errorf("driver.frequency_hz must be 1-%d, got %d", MaxFrequencyHz, c.Driver.FrequencyHz)
	}
	if c.Driver.SettleMs != nil && *c.Driver.SettleMs < 0 {
		return fmt.Errorf("driver.settle_ms must be >= 0, got %d", *c.Driver.SettleMs)
	}
	if c.Driver.MinPulseUs <= 0 || c.Driver.MinPulseUs >= c.Driver.MaxPulseUs {
		return fmt.Errorf("driver pulse range must satisfy 0 < min_pulse_us < max_pulse_us, got %d..%d",
			c.Driver.MinPulseUs, c.Driver.MaxPulseUs)
	}
	if period := 1_000_000 / c.Driver.FrequencyHz; c.Driver.MaxPulseUs > period {
		return fmt.Errorf("driver.max_pulse_us %d does not fit the %dus period of %d Hz",
			c.Driver.MaxPulseUs, period, c.Driver.FrequencyHz)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// TLSEnabled reports whether both the key and the certificate are set.
func (c *Config) TLSEnabled() bool {
	return c.Server.SSLKey != "" && c.Server.SSLCert != ""
}

// Backend returns the parsed PWM backend.
func (c *Config) Backend() pwm.Backend {
	b, err := pwm.ParseBackend(c.Driver.Backend)
	if err != nil {
		return pwm.BackendAuto
	}
	return b
}

// Settle returns the wait after each servo move.
func (c *Config) Settle() time.Duration {
	if c.Driver.SettleMs == nil {
		return time.Second
	}
	return time.Duration(*c.Driver.SettleMs) * time.Millisecond
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Listen, strconv.Itoa(c.Server.Port))
}
