package sensor

import (
	"fmt"
	"time"
)

type LEDMode uint8

const (
	LEDAlwaysOff     LEDMode = 0
	LEDAlwaysOn      LEDMode = 1
	LEDFlashWithPoll LEDMode = 2
)

type SwitchOption uint8

const (
	SwitchOpen   SwitchOption = 1
	SwitchClose  SwitchOption = 2
	SwitchToggle SwitchOption = 3
)

// ParseSwitchOption accepts "open", "close" or "toggle"
func ParseSwitchOption(value string) (SwitchOption, error) {
	switch value {
	case "open":
		return SwitchOpen, nil
	case "close":
		return SwitchClose, nil
	case "toggle":
		return SwitchToggle, nil
	}
	return 0, fmt.Errorf("unknown switch option %q", value)
}

const (
	controlSubID = 3
	// low power devices only listen when they poll, the command waits for that
	lowPowerRetry = 10
	// negative answers tolerated before the command is dropped
	maxControlRetries = 15
)

// BasicControl is the relay output of a basic control sensor
type BasicControl struct {
	sensor *Sensor

	defaultClosed bool
	lowPower      bool
	led           LEDMode
	pollRate      uint16

	option   SwitchOption
	duration uint16
	ack      uint8
}

func newBasicControl(s *Sensor) *BasicControl {
	return &BasicControl{
		sensor:   s,
		lowPower: true,
		led:      LEDFlashWithPoll,
		pollRate: 60,
		option:   SwitchOpen,
	}
}

func (obj *BasicControl) DefaultSwitchClosed() bool { return obj.defaultClosed }
func (obj *BasicControl) UseLowPower() bool         { return obj.lowPower }
func (obj *BasicControl) LEDMode() LEDMode          { return obj.led }
func (obj *BasicControl) PollRate() uint16          { return obj.pollRate }

func (obj *BasicControl) touch() {
	obj.sensor.dirty[3] = true
	obj.sensor.queueRequired = true
}

// SetDefaultSwitchClosed selects the relay state after power up
func (obj *BasicControl) SetDefaultSwitchClosed(closed bool) {
	obj.defaultClosed = closed
	obj.touch()
}

func (obj *BasicControl) SetUseLowPower(lowPower bool) {
	obj.lowPower = lowPower
	obj.touch()
}

func (obj *BasicControl) SetLEDMode(mode LEDMode) {
	obj.led = mode
	obj.touch()
}

// SetPollRate sets how often, in seconds, a low power device listens for commands
func (obj *BasicControl) SetPollRate(seconds uint16) {
	obj.pollRate = seconds
	obj.touch()
}

// SendControl queues a relay command. duration is in seconds, 0 keeps the
// new state until the next command.
func (obj *BasicControl) SendControl(option SwitchOption, duration uint16) {
	s := obj.sensor
	obj.option = option
	obj.duration = duration
	s.appPending = true
	s.queueRequired = true
	if obj.lowPower {
		s.appRetry = lowPowerRetry
		s.appHeld = true
	} else {
		// push on the next scheduler pass
		s.appRetry = 0
		s.appHeld = false
		s.appNextSend = time.Time{}
	}
}

func (obj *BasicControl) command() ([]byte, bool) {
	obj.ack++
	data := []byte{controlSubID, byte(obj.option), byte(obj.duration), byte(obj.duration >> 8), obj.ack}
	return data, !obj.lowPower
}

func (obj *BasicControl) parseResponse(data []byte) {
	if at(data, 0) == controlSubID && at(data, 1) == 0 && at(data, 2) == obj.ack {
		obj.sensor.appPending = false
		return
	}
	obj.sensor.appRetry++
	if obj.sensor.appRetry > maxControlRetries {
		obj.sensor.appPending = false
	}
}

func (obj *BasicControl) page() Page {
	var p Page
	if obj.defaultClosed {
		p[0] = 1
	}
	p[4] = byte(obj.pollRate)
	p[5] = byte(obj.pollRate >> 8)
	if !obj.lowPower {
		p[8] = 1
	}
	p[12] = byte(obj.led)
	return p
}

func (obj *BasicControl) parsePage(page []byte) {
	obj.defaultClosed = at(page, 0) != 0
	obj.pollRate = uint16At(page, 4)
	obj.lowPower = at(page, 8) == 0
	obj.led = LEDMode(at(page, 12))
}
