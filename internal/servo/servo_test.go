package servo

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/ServoGo/internal/hw/pwm"
	"github.com/cjeanneret/ServoGo/internal/hw/pwm/pwmtest"
)

// ---------- Registry ----------

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	s, err := r.Register("pan", "17")
	require.NoError(t, err)
	assert.Equal(t, Servo{Name: "pan", Pin: 17}, s)

	pin, err := r.Lookup("pan")
	require.NoError(t, err)
	assert.Equal(t, 17, pin)
}

func TestRegistry_RegisterInvalidPin(t *testing.T) {
	cases := []struct {
		name string
		spec string
		msg  string
	}{
		{"not_integer", "abc", "not an integer"},
		{"float", "17.5", "not an integer"},
		{"empty", "", "not an integer"},
		{"zero", "0", "positive"},
		{"negative", "-4", "positive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			_, err := r.Register("a", tc.spec)
			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr), "expected ConfigError, got %v", err)
			assert.Contains(t, cerr.Error(), tc.msg)
			assert.Equal(t, 0, r.Len())
		})
	}
}

func TestRegistry_DuplicateNameLastWins(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("a", "17")
	require.NoError(t, err)
	_, err = r.Register("a", "18")
	require.NoError(t, err)

	pin, err := r.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, 18, pin)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_LookupNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("ghost")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "ghost", nf.Name)
}

func TestRegistry_PinsSortedAndDistinct(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterPairs([]string{"tilt=18", "pan=17", "mirror=17"}))
	assert.Equal(t, []int{17, 18}, r.Pins())
	assert.Equal(t, []Servo{{"mirror", 17}, {"pan", 17}, {"tilt", 18}}, r.Servos())
}

func TestRegisterPairs_Malformed(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterPairs([]string{"pan17"})
	var cerr *ConfigError
	assert.True(t, errors.As(err, &cerr))

	err = r.RegisterPairs([]string{"pan=x"})
	assert.True(t, errors.As(err, &cerr))
}

func TestParsePair_SplitsOnFirstEquals(t *testing.T) {
	k, v, err := ParsePair("17=0.5")
	require.NoError(t, err)
	assert.Equal(t, "17", k)
	assert.Equal(t, "0.5", v)

	k, v, err = ParsePair("a=b=c")
	require.NoError(t, err)
	assert.Equal(t, "a", k)
	assert.Equal(t, "b=c", v)
}

// ---------- Position ----------

func TestPulseWidth_Formula(t *testing.T) {
	cases := []struct {
		p    float64
		want int
	}{
		{0, 500},
		{0.25, 1000},
		{0.5, 1500},
		{0.75, 2000},
		{1, 2500},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PulseWidth(tc.p), "position %v", tc.p)
	}
}

func TestPulseWidth_AlwaysInRange(t *testing.T) {
	for i := 0; i <= 1000; i++ {
		p := float64(i) / 1000
		w := PulseWidth(p)
		assert.GreaterOrEqual(t, w, 500)
		assert.LessOrEqual(t, w, 2500)
		assert.InDelta(t, 500+2000*p, float64(w), 0.5)
	}
}

func TestCalibration_Custom(t *testing.T) {
	c := Calibration{MinPulseUS: 1000, MaxPulseUS: 2000}
	assert.Equal(t, 1000, c.PulseWidth(0))
	assert.Equal(t, 1500, c.PulseWidth(0.5))
	assert.Equal(t, 2000, c.PulseWidth(1))
}

func TestAngle(t *testing.T) {
	assert.Equal(t, 90.0, Angle(0.5))
	assert.Equal(t, 180.0, Angle(1))
}

func TestParsePosition_Valid(t *testing.T) {
	cases := map[string]float64{
		"0":      0,
		"1":      1,
		"0.5":    0.5,
		" 0.25 ": 0.25,
		"1e-1":   0.1,
	}
	for in, want := range cases {
		got, err := ParsePosition(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got)
	}
}

func TestParsePosition_Invalid(t *testing.T) {
	cases := []string{"abc", "", "1.5", "-0.1", "NaN", "inf", "-Inf", "1e999"}
	for _, in := range cases {
		t.Run(in, func(t *testing.T) {
			_, err := ParsePosition(in)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "input %q: expected ValidationError, got %v", in, err)
		})
	}
}

func TestValidPosition_NaN(t *testing.T) {
	assert.False(t, ValidPosition(math.NaN()))
}

// ---------- RealDriver ----------

func newTestDriver(t *testing.T, rec *pwmtest.Recorder) *RealDriver {
	t.Helper()
	opts := DefaultOptions()
	opts.Settle = 0
	d := NewRealDriver(func() (pwm.Facade, error) { return rec, nil }, opts)
	require.NoError(t, d.Connect())
	return d
}

func TestRealDriver_Lifecycle(t *testing.T) {
	rec := pwmtest.New()
	d := newTestDriver(t, rec)
	assert.Equal(t, Connected, d.State())

	require.NoError(t, d.Configure([]int{17, 18}))
	require.NoError(t, d.Move(17, 0.5))
	require.NoError(t, d.Shutdown())
	assert.Equal(t, Closed, d.State())

	assert.Equal(t, []pwmtest.Call{
		{Op: "output", Pin: 17},
		{Op: "frequency", Pin: 17, Value: 50},
		{Op: "output", Pin: 18},
		{Op: "frequency", Pin: 18, Value: 50},
		{Op: "pulsewidth", Pin: 17, Value: 1500},
		{Op: "dutycycle", Pin: 17, Value: 0},
		{Op: "input", Pin: 17},
		{Op: "dutycycle", Pin: 18, Value: 0},
		{Op: "input", Pin: 18},
		{Op: "stop"},
	}, rec.Calls())
}

func TestRealDriver_ConnectFailure(t *testing.T) {
	boom := errors.New("connection refused")
	d := NewRealDriver(func() (pwm.Facade, error) { return nil, boom }, DefaultOptions())

	err := d.Connect()
	var cerr *DriverConnectionError
	require.True(t, errors.As(err, &cerr))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Uninitialized, d.State())

	// Nothing to release when the connection never opened.
	assert.NoError(t, d.Shutdown())
}

func TestRealDriver_ShutdownTwice(t *testing.T) {
	rec := pwmtest.New()
	d := newTestDriver(t, rec)
	require.NoError(t, d.Shutdown())
	assert.ErrorIs(t, d.Shutdown(), ErrDriverClosed)
	assert.Len(t, rec.CallsOf("stop"), 1)
}

func TestRealDriver_MoveAfterShutdown(t *testing.T) {
	rec := pwmtest.New()
	d := newTestDriver(t, rec)
	require.NoError(t, d.Shutdown())
	assert.Error(t, d.Move(17, 0.5))
	assert.Empty(t, rec.CallsOf("pulsewidth"))
}

func TestRealDriver_MoveRejectsOutOfRange(t *testing.T) {
	rec := pwmtest.New()
	d := newTestDriver(t, rec)
	require.NoError(t, d.Configure([]int{17}))
	rec.Reset()

	for _, p := range []float64{-0.01, 1.01, math.NaN()} {
		assert.Error(t, d.Move(17, p))
	}
	assert.Empty(t, rec.Calls())
}

func TestRealDriver_MoveWaitsForSettle(t *testing.T) {
	rec := pwmtest.New()
	d := newTestDriver(t, rec)
	d.opts.Settle = 250 * time.Millisecond
	var slept time.Duration
	d.sleep = func(dur time.Duration) { slept += dur }

	require.NoError(t, d.Configure([]int{17}))
	require.NoError(t, d.Move(17, 1))
	assert.Equal(t, 250*time.Millisecond, slept)
}

func TestRealDriver_ShutdownCollectsErrors(t *testing.T) {
	rec := pwmtest.New()
	d := newTestDriver(t, rec)
	require.NoError(t, d.Configure([]int{17}))
	rec.Err["dutycycle"] = errors.New("bad dutycycle")

	err := d.Shutdown()
	assert.ErrorContains(t, err, "bad dutycycle")
	// Cleanup continues past the failing call.
	assert.Len(t, rec.CallsOf("input"), 1)
	assert.Len(t, rec.CallsOf("stop"), 1)
	assert.Equal(t, Closed, d.State())
}

// ---------- FallbackDriver ----------

func TestNewDriver_DebugBackendFallsBack(t *testing.T) {
	d, err := NewDriver(pwm.BackendDebug, pwm.Options{}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "debug", d.Mode())
	assert.NoError(t, d.Configure([]int{17}))
	assert.NoError(t, d.Move(17, 0.5))
	assert.NoError(t, d.Shutdown())
}

func TestNewDriver_ConnectionFailure(t *testing.T) {
	// Port 1 on localhost is not a pigpiod.
	_, err := NewDriver(pwm.BackendPigpio, pwm.Options{PigpioAddr: "127.0.0.1:1"}, DefaultOptions())
	var cerr *DriverConnectionError
	assert.True(t, errors.As(err, &cerr), "expected DriverConnectionError, got %v", err)
}

// ---------- Controller ----------

func TestController_Move(t *testing.T) {
	rec := pwmtest.New()
	d := newTestDriver(t, rec)
	reg := NewRegistry()
	_, err := reg.Register("a", "17")
	require.NoError(t, err)
	require.NoError(t, d.Configure(reg.Pins()))
	rec.Reset()

	c := NewController(reg, d)
	require.NoError(t, c.Move(context.Background(), "a", 0.5))
	assert.Equal(t, []pwmtest.Call{{Op: "pulsewidth", Pin: 17, Value: 1500}}, rec.Calls())
}

func TestController_UnknownServoNoHardwareCall(t *testing.T) {
	rec := pwmtest.New()
	d := newTestDriver(t, rec)
	reg := NewRegistry()
	rec.Reset()

	c := NewController(reg, d)
	var nf *NotFoundError
	assert.True(t, errors.As(c.Move(context.Background(), "ghost", 0.5), &nf))
	assert.Empty(t, rec.Calls())
	assert.Equal(t, Connected, d.State())
}

func TestController_OutOfRangeNoHardwareCall(t *testing.T) {
	rec := pwmtest.New()
	d := newTestDriver(t, rec)
	reg := NewRegistry()
	_, err := reg.Register("a", "17")
	require.NoError(t, err)
	rec.Reset()

	c := NewController(reg, d)
	var verr *ValidationError
	assert.True(t, errors.As(c.Move(context.Background(), "a", 1.5), &verr))
	assert.Empty(t, rec.Calls())
}

// timedDriver records the interval of every Move and can hold a move until
// release is closed.
type timedDriver struct {
	mu      sync.Mutex
	events  []string
	spans   [][2]time.Time
	hold    time.Duration
	started chan struct{}
	release chan struct{}
}

func (d *timedDriver) log(ev string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *timedDriver) Mode() string               { return "timed" }
func (d *timedDriver) Configure(pins []int) error { return nil }

func (d *timedDriver) Move(pin int, position float64) error {
	start := time.Now()
	d.log("move start")
	if d.started != nil {
		d.started <- struct{}{}
	}
	if d.release != nil {
		<-d.release
	}
	time.Sleep(d.hold)
	d.log("move end")
	d.mu.Lock()
	d.spans = append(d.spans, [2]time.Time{start, time.Now()})
	d.mu.Unlock()
	return nil
}

func (d *timedDriver) Shutdown() error {
	d.log("shutdown")
	return nil
}

func newTimedController(t *testing.T, d *timedDriver) *Controller {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.RegisterPairs([]string{"a=17", "b=18"}))
	return NewController(reg, d)
}

func TestController_ConcurrentMovesNeverOverlap(t *testing.T) {
	d := &timedDriver{hold: 20 * time.Millisecond}
	c := newTimedController(t, d)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "a"
			if i%2 == 1 {
				name = "b"
			}
			assert.NoError(t, c.Move(context.Background(), name, float64(i)/n))
		}(i)
	}
	wg.Wait()

	require.Len(t, d.spans, n)
	for i, a := range d.spans {
		for j, b := range d.spans {
			if i == j {
				continue
			}
			overlap := a[0].Before(b[1]) && b[0].Before(a[1])
			assert.False(t, overlap, "moves %d and %d overlap", i, j)
		}
	}
}

func TestController_CancelledMoveIsDropped(t *testing.T) {
	d := &timedDriver{}
	c := newTimedController(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Move(ctx, "a", 0.5), context.Canceled)
	assert.Empty(t, d.events)
}

func TestController_ShutdownWaitsForRunningMove(t *testing.T) {
	d := &timedDriver{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := newTimedController(t, d)

	moved := make(chan error, 1)
	go func() { moved <- c.Move(context.Background(), "a", 0.5) }()
	<-d.started

	stopped := make(chan error, 1)
	go func() { stopped <- c.Shutdown() }()
	select {
	case <-stopped:
		t.Fatal("shutdown ran while a move was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(d.release)
	require.NoError(t, <-moved)
	require.NoError(t, <-stopped)
	assert.Equal(t, []string{"move start", "move end", "shutdown"}, d.events)

	assert.ErrorIs(t, c.Move(context.Background(), "a", 0.5), ErrDriverClosed)
	assert.ErrorIs(t, c.Shutdown(), ErrDriverClosed)
	assert.Len(t, d.events, 3)
}

func TestController_ShutdownRealDriver(t *testing.T) {
	rec := pwmtest.New()
	d := newTestDriver(t, rec)
	reg := NewRegistry()
	_, err := reg.Register("a", "17")
	require.NoError(t, err)
	require.NoError(t, d.Configure(reg.Pins()))
	rec.Reset()

	c := NewController(reg, d)
	require.NoError(t, c.Shutdown())
	assert.Equal(t, Closed, d.State())
	assert.Len(t, rec.CallsOf("stop"), 1)
}
