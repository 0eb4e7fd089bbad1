package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/cjeanneret/ServoGo/internal/config"
)

// cliOptions holds the parsed command line.
type cliOptions struct {
	configPath string
	cors       string
	sslKey     string
	sslCert    string
	servos     servoPairsFlag
	moveServo  string
	listen     string
	port       int
	driver     string
	pigpioAddr string
	debugLevel int

	set map[string]bool // flags given explicitly
}

// servoPairsFlag implements flag.Value for -servos: each value holds one or
// more comma separated NAME=PIN pairs and the flag may be repeated.
type servoPairsFlag []string

func (s *servoPairsFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *servoPairsFlag) Set(v string) error {
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if !strings.Contains(pair, "=") {
			return fmt.Errorf("expected NAME=PIN, got %q", pair)
		}
		*s = append(*s, pair)
	}
	return nil
}

// parseFlags parses args. NAME=PIN words directly after a -servos value are
// added to the servo list, so "-servos a=17 b=18" works like a repeated flag.
func parseFlags(args []string, stderr io.Writer) (*cliOptions, error) {
	o := &cliOptions{set: make(map[string]bool)}
	fs := flag.NewFlagSet("servogo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&o.cors, "cors", "", "set access-control-allow-origin header value")
	fs.StringVar(&o.sslKey, "ssl-key", "", "set SSL key file `PATH`")
	fs.StringVar(&o.sslCert, "ssl-cert", "", "set SSL cert file `PATH`")
	fs.Var(&o.servos, "servos", "set name and GPIO pin for servo motor (`NAME=PIN`, repeatable)")
	fs.StringVar(&o.moveServo, "move-servo", "", "move servo motor on pin PIN to position POSITION and exit (`PIN=POSITION`)")
	fs.StringVar(&o.listen, "listen", "localhost", "set IP `ADDRESS` on which the server listens")
	fs.IntVar(&o.port, "port", 1234, "set port on which the server listens")
	fs.StringVar(&o.driver, "driver", "", "PWM backend: auto, pigpio, rpio, periph or debug")
	fs.StringVar(&o.pigpioAddr, "pigpio-addr", "", "pigpiod `HOST:PORT` (default $PIGPIO_ADDR:$PIGPIO_PORT or localhost:8888)")
	fs.IntVar(&o.debugLevel, "debug", 1, "debug level 0-4")

	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return nil, err
		}
		parsed := rest[:len(rest)-len(fs.Args())]
		rest = fs.Args()
		if endsWithServos(parsed) {
			for len(rest) > 0 && !strings.HasPrefix(rest[0], "-") && strings.Contains(rest[0], "=") {
				if err := o.servos.Set(rest[0]); err != nil {
					return nil, err
				}
				rest = rest[1:]
			}
		}
		if len(rest) == 0 {
			break
		}
		if rest[0] == "-" || !strings.HasPrefix(rest[0], "-") {
			return nil, fmt.Errorf("unexpected argument %q", rest[0])
		}
	}

	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	if len(o.servos) > 0 {
		o.set["servos"] = true
	}
	return o, nil
}

// endsWithServos reports whether the last flag in parsed is -servos.
func endsWithServos(parsed []string) bool {
	n := len(parsed)
	if n == 0 {
		return false
	}
	last := strings.TrimLeft(parsed[n-1], "-")
	if strings.HasPrefix(parsed[n-1], "-") && strings.HasPrefix(last, "servos=") {
		return true
	}
	return n >= 2 && (parsed[n-2] == "-servos" || parsed[n-2] == "--servos")
}

// oneShot reports whether -move-servo selects one-shot mode.
func (o *cliOptions) oneShot() bool {
	return o.set["move-servo"]
}

// applyOverrides copies explicitly given flags into cfg.
func applyOverrides(cfg *config.Config, o *cliOptions) error {
	if o.set["cors"] {
		cfg.Server.CORS = o.cors
	}
	if o.set["ssl-key"] {
		cfg.Server.SSLKey = o.sslKey
	}
	if o.set["ssl-cert"] {
		cfg.Server.SSLCert = o.sslCert
	}
	if o.set["listen"] {
		cfg.Server.Listen = o.listen
	}
	if o.set["port"] {
		cfg.Server.Port = o.port
	}
	if o.set["driver"] {
		cfg.Driver.Backend = o.driver
	}
	if o.set["pigpio-addr"] {
		cfg.Driver.PigpioAddr = o.pigpioAddr
	}
	if o.set["debug"] {
		cfg.Defaults.DebugLevel = o.debugLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid command line: %w", err)
	}
	return nil
}
