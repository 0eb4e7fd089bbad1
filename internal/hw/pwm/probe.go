package pwm

import (
	"periph.io/x/host/v3/rpi"

	"github.com/cjeanneret/ServoGo/internal/debug"
)

// piPresent reports whether the process runs on a Raspberry Pi.
var piPresent = rpi.Present

// Probe resolves BackendAuto to a concrete backend: pigpio on a Raspberry Pi,
// debug anywhere else. Explicit backends are returned unchanged, so a remote
// pigpiod can still be driven from a workstation.
func Probe(backend Backend) Backend {
	if backend != BackendAuto {
		return backend
	}
	if piPresent() {
		debug.Verbose("Raspberry Pi detected, using %s backend", BackendPigpio)
		return BackendPigpio
	}
	return BackendDebug
}
