//go:build !tinygo

package hx711

// interruptState is a placeholder for interrupt state on regular Go.
type interruptState uintptr

// disableInterrupts is a no-op on regular Go. Host backends cannot mask
// interrupts. A preempted read is caught by the MaxDelta guard, which the
// host configuration enables with DefaultHostMaxDelta.
func disableInterrupts() interruptState {
	return 0
}

// restoreInterrupts is a no-op on regular Go.
func restoreInterrupts(interruptState) {}
