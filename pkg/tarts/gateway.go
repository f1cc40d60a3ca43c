package tarts

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mbalug7/go-tarts/pkg/gwapi"
	"github.com/mbalug7/go-tarts/pkg/hal"
	"github.com/mbalug7/go-tarts/pkg/ident"
	"github.com/mbalug7/go-tarts/pkg/sensor"
)

// AllChannels lets the radio pick any channel when it forms its network
const AllChannels uint32 = 0xFFFFFFFF

// Gateway is one radio plate and the sensors it serves.
// All mutation happens on the goroutine calling Lib.Process.
type Gateway struct {
	id          uint32
	channelMask uint32
	transport   hal.Transport

	sensors []*sensor.Sensor
	// sensor ids waiting to be unregistered from the radio, served from the end
	removals []uint32
	// sensors left to assign while loading, counts down
	processCount int

	state           State
	lastTx          time.Time
	lastUnknownID   uint32
	lastUnknownType sensor.Type
	wirelessState   uint8
	sensorCount     uint16
	channel         uint8
	errors          int

	reformNeeded bool
	removeNeeded bool
	loadNeeded   bool
	netStatsRXD  bool
	firstActive  bool
	queuePending bool
}

// NewGateway creates a gateway record. id is the printed id on the plate
// label, channelMask selects the channels allowed when the network is formed.
func NewGateway(id string, channelMask uint32, transport hal.Transport) *Gateway {
	return &Gateway{
		id:          ident.Decode(id),
		channelMask: channelMask,
		transport:   transport,
		state:       StateUninitialized,
		firstActive: true,
	}
}

// ID returns the printed gateway id
func (obj *Gateway) ID() string {
	return ident.Encode(obj.id)
}

func (obj *Gateway) ChannelMask() uint32 {
	return obj.channelMask
}

// OperatingChannel returns the radio channel, 0xFF unless the gateway is active
func (obj *Gateway) OperatingChannel() uint8 {
	if obj.state != StateActive {
		return channelUnassigned
	}
	return obj.channel
}

func (obj *Gateway) State() State {
	return obj.state
}

// LastUnknownID returns the printed id of the last unregistered device heard
func (obj *Gateway) LastUnknownID() string {
	return ident.Encode(obj.lastUnknownID)
}

// LastUnknownSensorType returns the type reported by the last unregistered device, 0 if none
func (obj *Gateway) LastUnknownSensorType() sensor.Type {
	return obj.lastUnknownType
}

// ReportedSensorCount is the number of sensors the radio holds in its own table
func (obj *Gateway) ReportedSensorCount() uint16 {
	return obj.sensorCount
}

// Sensors returns the registered sensors in registration order
func (obj *Gateway) Sensors() []*sensor.Sensor {
	out := make([]*sensor.Sensor, len(obj.sensors))
	copy(out, obj.sensors)
	return out
}

// PendingRemovals returns the number of sensors still to unregister from the radio
func (obj *Gateway) PendingRemovals() int {
	return len(obj.removals)
}

// ReformNetwork makes the radio forget its sensors and pick a new channel.
// All registered sensors are loaded again afterwards.
func (obj *Gateway) ReformNetwork() {
	obj.reformNeeded = true
}

func (obj *Gateway) ReformNetworkWithMask(mask uint32) {
	obj.channelMask = mask
	obj.ReformNetwork()
}

func (obj *Gateway) findSensor(id uint32) *sensor.Sensor {
	for _, s := range obj.sensors {
		if s.ID() == id {
			return s
		}
	}
	return nil
}

func (obj *Gateway) send(f gwapi.Frame) {
	if obj.transport == nil {
		return
	}
	if err := obj.transport.Send(f.Bytes()); err != nil {
		log.Warn().Err(err).Str("gateway", obj.ID()).Stringer("cmd", f.Command()).Msg("failed to send frame")
		return
	}
	log.Debug().Str("gateway", obj.ID()).Stringer("frame", f).Msg("sent")
}

// dispose idles the radio and releases the transport
func (obj *Gateway) dispose() {
	if obj.transport == nil {
		return
	}
	obj.send(gwapi.IdleRequest())
	if err := obj.transport.Close(); err != nil {
		log.Warn().Err(err).Str("gateway", obj.ID()).Msg("failed to close transport")
	}
}

func (obj *Gateway) sendRemoveNext() {
	obj.send(gwapi.RemoveSensorRequest(obj.removals[len(obj.removals)-1]))
}

func (obj *Gateway) sendAssignNext() {
	obj.send(gwapi.AssignSensorRequest(obj.sensors[obj.processCount-1].ID()))
}

func (obj *Gateway) sendReform() {
	obj.send(gwapi.ReformRequest(obj.channelMask))
}
