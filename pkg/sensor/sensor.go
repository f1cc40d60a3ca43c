package sensor

import (
	"fmt"
	"time"

	"github.com/mbalug7/go-tarts/pkg/gwapi"
	"github.com/mbalug7/go-tarts/pkg/ident"
)

const (
	DefaultReportInterval uint16 = 60
	DefaultLinkInterval   uint8  = 110
	DefaultRetryCount     uint8  = 2
	DefaultRecovery       uint8  = 2
)

// Settings are the general configuration values kept on the device
type Settings struct {
	ReportInterval uint16 `yaml:"report_interval" toml:"report_interval" json:"reportInterval"`
	LinkInterval   uint8  `yaml:"link_interval" toml:"link_interval" json:"linkInterval"`
	RetryCount     uint8  `yaml:"retry_count" toml:"retry_count" json:"retryCount"`
	Recovery       uint8  `yaml:"recovery" toml:"recovery" json:"recovery"`
}

// DefaultSettings returns the factory configuration
func DefaultSettings() Settings {
	return Settings{
		ReportInterval: DefaultReportInterval,
		LinkInterval:   DefaultLinkInterval,
		RetryCount:     DefaultRetryCount,
		Recovery:       DefaultRecovery,
	}
}

// Sensor is the host side record of one wireless device.
// It tracks which configuration pages still have to be written to or read
// from the device and the state of a pending application command.
// A Sensor is not safe for concurrent use, it is owned by the poll loop.
type Sensor struct {
	id         uint32
	sensorType Type

	reportInterval uint16
	linkInterval   uint8
	retryCount     uint8
	recovery       uint8

	dirty [len(sectors)]bool
	read  [len(sectors)]bool

	queueRequired bool

	appPending  bool
	appRetry    int
	appNextSend time.Time
	appHeld     bool

	control *BasicControl
}

// New creates a sensor with default settings
func New(id uint32, t Type) *Sensor {
	return NewWithSettings(id, t, DefaultSettings())
}

func NewWithSettings(id uint32, t Type, settings Settings) *Sensor {
	obj := &Sensor{
		id:             id,
		sensorType:     t,
		reportInterval: settings.ReportInterval,
		linkInterval:   settings.LinkInterval,
		retryCount:     settings.RetryCount,
		recovery:       settings.Recovery,
	}
	if spec, ok := specs[t]; ok && spec.control {
		obj.control = newBasicControl(obj)
	}
	return obj
}

// Parse creates a sensor from its printed id
func Parse(label string, t Type) (*Sensor, error) {
	id := ident.Decode(label)
	if id == 0 {
		return nil, fmt.Errorf("failed to parse sensor id %q", label)
	}
	return New(id, t), nil
}

func (obj *Sensor) ID() uint32 {
	return obj.id
}

// Label returns the printed id, e.g. "T00A1B"
func (obj *Sensor) Label() string {
	return ident.Encode(obj.id)
}

func (obj *Sensor) Type() Type {
	return obj.sensorType
}

// Profile returns the archetype of the sensor type, interval when unknown
func (obj *Sensor) Profile() Profile {
	if spec, ok := specs[obj.sensorType]; ok {
		return spec.profile
	}
	return ProfileInterval
}

// Name returns the human readable type label
func (obj *Sensor) Name() string {
	if spec, ok := specs[obj.sensorType]; ok {
		return spec.label
	}
	return "Unknown Sensor"
}

func (obj *Sensor) Settings() Settings {
	return Settings{
		ReportInterval: obj.reportInterval,
		LinkInterval:   obj.linkInterval,
		RetryCount:     obj.retryCount,
		Recovery:       obj.recovery,
	}
}

func (obj *Sensor) ReportInterval() uint16 { return obj.reportInterval }
func (obj *Sensor) LinkInterval() uint8    { return obj.linkInterval }
func (obj *Sensor) RetryCount() uint8      { return obj.retryCount }
func (obj *Sensor) Recovery() uint8        { return obj.recovery }

func (obj *Sensor) markDirty(slot int) {
	obj.dirty[slot] = true
	obj.read[slot] = false
	obj.queueRequired = true
}

// SetReportInterval sets the heartbeat in seconds
func (obj *Sensor) SetReportInterval(seconds uint16) {
	obj.reportInterval = seconds
	obj.markDirty(0)
}

// SetLinkInterval sets the number of missed reports before the device relinks
func (obj *Sensor) SetLinkInterval(reports uint8) {
	obj.linkInterval = reports
	obj.markDirty(0)
}

func (obj *Sensor) SetRetryCount(count uint8) {
	obj.retryCount = count
	obj.markDirty(1)
}

func (obj *Sensor) SetRecovery(count uint8) {
	obj.recovery = count
	obj.markDirty(1)
}

// Control returns the control surface of actuator types
func (obj *Sensor) Control() (*BasicControl, bool) {
	return obj.control, obj.control != nil
}

// RequestConfigurations schedules a read back of every configuration page.
// Pending writes are discarded.
func (obj *Sensor) RequestConfigurations() {
	for i := range sectors {
		obj.read[i] = true
		obj.dirty[i] = false
	}
	obj.queueRequired = true
}

// PendingActions reports whether anything still has to be exchanged with the device
func (obj *Sensor) PendingActions() bool {
	for i := range sectors {
		if obj.dirty[i] || obj.read[i] {
			return true
		}
	}
	return obj.appPending
}

// QueueRequired reports whether the radio must be told that messages wait for this sensor
func (obj *Sensor) QueueRequired() bool {
	return obj.queueRequired
}

// AcknowledgeQueue is called by the scheduler once the radio confirmed the queued flag
func (obj *Sensor) AcknowledgeQueue() {
	obj.queueRequired = false
}

// Dirty reports whether a sector waits to be written
func (obj *Sensor) Dirty(sector gwapi.Sector) bool {
	slot, err := slotOf(sector)
	return err == nil && obj.dirty[slot]
}

// NeedsRead reports whether a sector waits to be read back
func (obj *Sensor) NeedsRead(sector gwapi.Sector) bool {
	slot, err := slotOf(sector)
	return err == nil && obj.read[slot]
}

// HandleReadResponse applies a sector read back by the device. The read
// request is considered served whatever the status.
func (obj *Sensor) HandleReadResponse(sector gwapi.Sector, status uint8, page []byte) {
	slot, err := slotOf(sector)
	if err != nil {
		return
	}
	obj.read[slot] = false
	if status != 0 {
		return
	}
	switch sector {
	case gwapi.SectorGeneral1:
		obj.reportInterval = uint16At(page, 10)
		obj.linkInterval = at(page, 12)
	case gwapi.SectorGeneral2:
		obj.retryCount = at(page, 0)
		obj.recovery = at(page, 1)
	case gwapi.SectorProfile2:
		if obj.control != nil {
			obj.control.parsePage(page)
		}
	}
}

// HandleWriteResponse marks a sector as written
func (obj *Sensor) HandleWriteResponse(sector gwapi.Sector) {
	if slot, err := slotOf(sector); err == nil {
		obj.dirty[slot] = false
	}
}

// HandleAppResponse applies the device answer to an application command
func (obj *Sensor) HandleAppResponse(data []byte) {
	if obj.control != nil {
		obj.control.parseResponse(data)
		return
	}
	obj.appPending = false
}

// AppCommand renders the pending application command. It returns nil when the
// sensor type has nothing to send, which also drops the pending flag.
func (obj *Sensor) AppCommand() (data []byte, urgent bool) {
	if obj.control != nil {
		return obj.control.command()
	}
	obj.appPending = false
	return nil, false
}

// AppCommandPending reports whether an application command waits for delivery
func (obj *Sensor) AppCommandPending() bool {
	return obj.appPending
}

// AppCommandDue reports whether a pending application command should be pushed now
func (obj *Sensor) AppCommandDue(now time.Time) bool {
	return obj.appPending && !obj.appHeld && !obj.appNextSend.After(now)
}

// AdvanceAppCommand books one delivery attempt and schedules the next one:
// 1s after the first two attempts, 3s after the third, 5s up to the fifth,
// then the command waits for the device to poll.
func (obj *Sensor) AdvanceAppCommand(now time.Time) {
	obj.appRetry++
	switch {
	case obj.appRetry <= 2:
		obj.appNextSend = now.Add(time.Second)
	case obj.appRetry == 3:
		obj.appNextSend = now.Add(3 * time.Second)
	case obj.appRetry <= 5:
		obj.appNextSend = now.Add(5 * time.Second)
	default:
		obj.appHeld = true
	}
}

// NextRequest returns the next frame of the configuration exchange, in order:
// page writes, page reads, then the application command. ok is false when
// nothing is left to send.
func (obj *Sensor) NextRequest() (frame gwapi.Frame, ok bool, err error) {
	for i, sector := range sectors {
		if obj.dirty[i] {
			page, err := obj.EncodePage(sector)
			if err != nil {
				return frame, false, err
			}
			return gwapi.ConfigWriteRequest(obj.id, sector, page), true, nil
		}
	}
	for i, sector := range sectors {
		if obj.read[i] {
			return gwapi.ConfigReadRequest(obj.id, sector), true, nil
		}
	}
	if obj.appPending {
		data, urgent := obj.AppCommand()
		if len(data) == 0 {
			return frame, false, nil
		}
		frame, err = gwapi.AppCommandRequest(obj.id, data, urgent)
		if err != nil {
			return frame, false, err
		}
		return frame, true, nil
	}
	return frame, false, nil
}

func (obj *Sensor) String() string {
	return fmt.Sprintf("%s(%s)", obj.Label(), obj.sensorType)
}
