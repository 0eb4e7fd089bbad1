package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/cjeanneret/ServoGo/internal/config"
	"github.com/cjeanneret/ServoGo/internal/debug"
	"github.com/cjeanneret/ServoGo/internal/hw/pwm"
	"github.com/cjeanneret/ServoGo/internal/servo"
	"github.com/cjeanneret/ServoGo/internal/web"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// driverFactory selects and connects the servo driver for cfg.
type driverFactory func(cfg *config.Config) (servo.Driver, error)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, newDriver)
	cancel()
	os.Exit(code)
}

// newDriver probes the configured backend and connects to it.
func newDriver(cfg *config.Config) (servo.Driver, error) {
	return servo.NewDriver(cfg.Backend(), pwm.Options{PigpioAddr: cfg.Driver.PigpioAddr}, driverOptions(cfg))
}

func driverOptions(cfg *config.Config) servo.Options {
	return servo.Options{
		FrequencyHz: cfg.Driver.FrequencyHz,
		Settle:      cfg.Settle(),
		Calibration: servo.Calibration{
			MinPulseUS: cfg.Driver.MinPulseUs,
			MaxPulseUS: cfg.Driver.MaxPulseUs,
		},
	}
}

// run executes the command line and returns the process exit code. The
// driver is shut down on every path once it has been created.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, openDriver driverFactory) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	debug.SetOutput(stdout)
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", opts.configPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("PWM backend", cfg.Driver.Backend)
	debug.PrintStruct("Server config", cfg.Server)

	debug.Step(1, "Registering servos")
	reg, position, err := buildRegistry(cfg, opts)
	if err != nil {
		debug.Error(err)
		return exitError
	}
	for _, s := range reg.Servos() {
		debug.Value("Servo "+s.Name, s.Pin)
	}

	debug.Step(2, "Connecting PWM driver")
	driver, err := openDriver(cfg)
	var ctrl *servo.Controller
	if driver != nil {
		ctrl = servo.NewController(reg, driver)
		defer func() {
			if err := ctrl.Shutdown(); err != nil {
				debug.Errorf("servo cleanup failed: %v", err)
			}
			if ctx.Err() != nil {
				fmt.Fprintln(stdout)
			}
		}()
	}
	if err != nil {
		var connErr *servo.DriverConnectionError
		if errors.As(err, &connErr) {
			debug.Errorf("cannot connect to pigpio: %v", connErr.Err)
		} else {
			debug.Error(err)
		}
		return exitError
	}
	debug.Value("Driver mode", driver.Mode())

	debug.Step(3, "Configuring servo pins")
	if err := driver.Configure(reg.Pins()); err != nil {
		debug.Error(err)
		return exitError
	}

	if opts.oneShot() {
		return moveOnce(ctx, ctrl, position)
	}
	return serve(ctx, cfg, ctrl)
}

// loadConfig reads the config file when given, then applies flag overrides.
func loadConfig(opts *cliOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config failed: %w", err)
		}
	}
	if err := applyOverrides(cfg, opts); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildRegistry returns the servos for the selected mode. In one-shot mode
// the registry holds the single "cli" servo and position is the raw value
// given on the command line.
func buildRegistry(cfg *config.Config, opts *cliOptions) (*servo.Registry, string, error) {
	reg := servo.NewRegistry()
	if opts.oneShot() {
		pin, pos, err := servo.ParsePair(opts.moveServo)
		if err != nil {
			return nil, "", fmt.Errorf("-move-servo: %w", err)
		}
		if _, err := reg.Register(servo.CLIServoName, pin); err != nil {
			return nil, "", err
		}
		return reg, pos, nil
	}

	for _, name := range sortedKeys(cfg.Servos) {
		if _, err := reg.Register(name, cfg.Servos[name]); err != nil {
			return nil, "", fmt.Errorf("servo %q: %w", name, err)
		}
	}
	if err := reg.RegisterPairs(opts.servos); err != nil {
		return nil, "", err
	}
	if reg.Len() == 0 {
		debug.Warn("no servos registered; every move request will be rejected")
	}
	return reg, "", nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// moveOnce validates position and moves the "cli" servo. An interrupt
// before the move is not an error.
func moveOnce(ctx context.Context, ctrl *servo.Controller, position string) int {
	p, err := servo.ParsePosition(position)
	if err != nil {
		debug.Error(err)
		return exitError
	}
	if err := ctrl.Move(ctx, servo.CLIServoName, p); err != nil {
		if errors.Is(err, context.Canceled) {
			return exitOK
		}
		debug.Error(err)
		return exitError
	}
	return exitOK
}

// serve runs the HTTP control endpoint until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, ctrl *servo.Controller) int {
	if !cfg.TLSEnabled() && (cfg.Server.SSLKey != "" || cfg.Server.SSLCert != "") {
		debug.Warn("TLS needs both -ssl-key and -ssl-cert; serving plain HTTP")
	}
	srv := web.NewServer(cfg.Addr(), web.NewHandlers(ctrl, cfg.Server.CORS), web.TLSFiles{
		KeyPath:  cfg.Server.SSLKey,
		CertPath: cfg.Server.SSLCert,
	})
	if err := srv.Run(ctx); err != nil {
		debug.Errorf("web server: %v", err)
		return exitError
	}
	return exitOK
}
