package servo

import (
	"math"
	"strconv"
	"strings"
)

// Default pulse range in microseconds (e.g. Tower Pro SG92R).
const (
	DefaultMinPulseUS = 500
	DefaultMaxPulseUS = 2500
	DefaultFrequency  = 50
)

// Calibration maps a position in [0,1] onto a pulse width range.
type Calibration struct {
	MinPulseUS int
	MaxPulseUS int
}

// DefaultCalibration is the 500..2500us range.
var DefaultCalibration = Calibration{MinPulseUS: DefaultMinPulseUS, MaxPulseUS: DefaultMaxPulseUS}

// PulseWidth returns the pulse width in microseconds for position,
// linearly interpolated and rounded to the nearest microsecond.
func (c Calibration) PulseWidth(position float64) int {
	span := float64(c.MaxPulseUS - c.MinPulseUS)
	return int(math.Round(float64(c.MinPulseUS) + span*position))
}

// PulseWidth uses DefaultCalibration: 500 + 2000*position.
func PulseWidth(position float64) int {
	return DefaultCalibration.PulseWidth(position)
}

// Angle returns the shaft angle in degrees for position.
func Angle(position float64) float64 {
	return position * 180
}

// ValidPosition reports whether p lies in [0,1]. NaN is never valid.
func ValidPosition(p float64) bool {
	return p >= 0 && p <= 1
}

// ParsePosition parses a move value and checks it lies in [0,1].
func ParsePosition(s string) (float64, error) {
	p, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(p) {
		return 0, &ValidationError{Msg: "position value must be a number"}
	}
	if !ValidPosition(p) {
		return 0, &ValidationError{Msg: "position value must be a number in the range [0, 1]"}
	}
	return p, nil
}
