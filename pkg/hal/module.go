package hal

import "time"

const (
	DefaultBaud          = 115200
	DefaultResetHold     = 250 * time.Millisecond
	DefaultBootTime      = 750 * time.Millisecond
	defaultPlateAttempts = 250
)

// ModuleConfig describes how a gateway plate is wired to the host
type ModuleConfig struct {
	TTY      string
	Baud     int
	GPIOChip string
	// line offsets on the GPIO chip
	ActivityPin int
	PCTSPin     int
	PRTSPin     int
	NRSTPin     int
}

func (obj ModuleConfig) withDefaults() ModuleConfig {
	if obj.Baud == 0 {
		obj.Baud = DefaultBaud
	}
	if obj.GPIOChip == "" {
		obj.GPIOChip = "gpiochip0"
	}
	return obj
}
