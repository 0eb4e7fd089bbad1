package debug

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T, level int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(level)
	t.Cleanup(func() {
		Init(LevelOff)
		SetOutput(os.Stdout)
	})
	return &buf
}

func TestLevelOff_PrintsNothing(t *testing.T) {
	buf := capture(t, LevelOff)
	Info("hello")
	Error(errors.New("boom"))
	Trace("pin")
	assert.Empty(t, buf.String())
}

func TestLevels_Filter(t *testing.T) {
	buf := capture(t, LevelLive)
	Info("info %d", 1)
	Live("live %d", 2)
	Verbose("verbose %d", 3)
	PWM("SetPulseWidth", 17, 1500)

	out := buf.String()
	assert.Contains(t, out, "[ServoGo] ")
	assert.Contains(t, out, "[INFO] info 1")
	assert.Contains(t, out, "[LIVE] live 2")
	assert.NotContains(t, out, "verbose 3")
	assert.NotContains(t, out, "SetPulseWidth")
}

func TestTrace_PWM(t *testing.T) {
	buf := capture(t, LevelTrace)
	PWM("SetPulseWidth", 17, 1500)
	Step(2, "Connecting")
	assert.Contains(t, buf.String(), "[PWM] SetPulseWidth pin=17 value=1500")
	assert.Contains(t, buf.String(), "Step 2: Connecting")
}

func TestErrorAndWarn(t *testing.T) {
	buf := capture(t, LevelInfo)
	Error(errors.New("boom"))
	Errorf("bad %s", "request")
	Warn("careful")
	assert.Contains(t, buf.String(), "[ERROR] boom")
	assert.Contains(t, buf.String(), "[ERROR] bad request")
	assert.Contains(t, buf.String(), "[WARN] careful")
}

func TestIsEnabled(t *testing.T) {
	capture(t, LevelVerbose)
	assert.Equal(t, LevelVerbose, Level())
	assert.True(t, IsEnabled(LevelInfo))
	assert.False(t, IsEnabled(LevelTrace))
}
