package tarts

import (
	"fmt"
	"time"

	"github.com/mbalug7/go-tarts/pkg/ident"
	"github.com/mbalug7/go-tarts/pkg/sensor"
)

// OnGatewayPersistCb is called when a gateway reached the active state for the
// first time after a (re)form, its settings are worth saving
type OnGatewayPersistCb func(gatewayID string)

// OnGatewayMessageCb receives informational gateway events
type OnGatewayMessageCb func(gatewayID string, msg GatewayMessage)

// OnSensorPersistCb is called when a sensor was registered or its configuration
// exchange with the device completed
type OnSensorPersistCb func(sensorID string)

// OnSensorMessageCb receives decoded sensor data
type OnSensorMessageCb func(msg sensor.Message)

// OnLogExceptionCb receives diagnostic codes
type OnLogExceptionCb func(ex Exception)

// Lib is the gateway registry and scheduler. Process must be called
// periodically, every 100ms or faster. Lib is not safe for concurrent use.
type Lib struct {
	gateways []*Gateway
	now      func() time.Time

	maxGateways int
	maxSensors  int
	maxRemovals int

	onGatewayPersist OnGatewayPersistCb
	onGatewayMessage OnGatewayMessageCb
	onSensorPersist  OnSensorPersistCb
	onSensorMessage  OnSensorMessageCb
	onLogException   OnLogExceptionCb
}

type Option func(*Lib)

// WithClock replaces the wall clock, used by tests and simulations
func WithClock(now func() time.Time) Option {
	return func(obj *Lib) {
		obj.now = now
	}
}

// WithMaxGateways limits the number of registered gateways, 0 means no limit
func WithMaxGateways(n int) Option {
	return func(obj *Lib) {
		obj.maxGateways = n
	}
}

// WithMaxSensors limits the number of sensors per gateway, 0 means no limit
func WithMaxSensors(n int) Option {
	return func(obj *Lib) {
		obj.maxSensors = n
	}
}

// WithMaxPendingRemovals limits the per gateway removal queue, 0 means no limit
func WithMaxPendingRemovals(n int) Option {
	return func(obj *Lib) {
		obj.maxRemovals = n
	}
}

func New(opts ...Option) *Lib {
	obj := &Lib{now: time.Now}
	for _, opt := range opts {
		opt(obj)
	}
	return obj
}

func (obj *Lib) RegisterOnGatewayPersistCb(cb OnGatewayPersistCb) {
	if cb != nil {
		obj.onGatewayPersist = cb
	}
}

func (obj *Lib) RegisterOnGatewayMessageCb(cb OnGatewayMessageCb) {
	if cb != nil {
		obj.onGatewayMessage = cb
	}
}

func (obj *Lib) RegisterOnSensorPersistCb(cb OnSensorPersistCb) {
	if cb != nil {
		obj.onSensorPersist = cb
	}
}

func (obj *Lib) RegisterOnSensorMessageCb(cb OnSensorMessageCb) {
	if cb != nil {
		obj.onSensorMessage = cb
	}
}

func (obj *Lib) RegisterOnLogExceptionCb(cb OnLogExceptionCb) {
	if cb != nil {
		obj.onLogException = cb
	}
}

func (obj *Lib) gatewayPersist(gw *Gateway) {
	if obj.onGatewayPersist != nil {
		obj.onGatewayPersist(gw.ID())
	}
}

func (obj *Lib) gatewayMessage(id string, msg GatewayMessage) {
	if obj.onGatewayMessage != nil {
		obj.onGatewayMessage(id, msg)
	}
}

func (obj *Lib) sensorPersist(s *sensor.Sensor) {
	if obj.onSensorPersist != nil {
		obj.onSensorPersist(s.Label())
	}
}

func (obj *Lib) exception(ex Exception) {
	if obj.onLogException != nil {
		obj.onLogException(ex)
	}
}

// RegisterGateway initializes the gateway hardware and adds it to the scheduler.
// Registering the same gateway twice is a no-op.
func (obj *Lib) RegisterGateway(gw *Gateway) error {
	if gw == nil {
		obj.exception(ExGatewayNil)
		return ErrNilGateway
	}
	for _, existing := range obj.gateways {
		if existing == gw {
			obj.exception(ExGatewayDuplicateObject)
			return nil
		}
		if existing.id == gw.id {
			obj.exception(ExGatewayDuplicateID)
			return fmt.Errorf("%w: %s", ErrGatewayIDInUse, gw.ID())
		}
	}
	if obj.maxGateways > 0 && len(obj.gateways) >= obj.maxGateways {
		obj.exception(ExGatewayCapacity)
		return fmt.Errorf("failed to register gateway %s: %w", gw.ID(), ErrCapacity)
	}
	if gw.transport != nil {
		if err := gw.transport.Initialize(); err != nil {
			obj.exception(ExGatewayHardwareInit)
			return fmt.Errorf("%w: %s", ErrHardwareInit, err)
		}
	}
	obj.gateways = append(obj.gateways, gw)
	obj.gatewayMessage(gw.ID(), MsgGatewayRegistered)
	return nil
}

// RemoveGateway idles the radio, releases its transport and forgets the gateway
func (obj *Lib) RemoveGateway(id string) error {
	if len(obj.gateways) == 0 {
		obj.exception(ExGatewayListEmpty)
		return ErrNoGateways
	}
	gwid := ident.Decode(id)
	for i, gw := range obj.gateways {
		if gw.id != gwid {
			continue
		}
		obj.gateways = append(obj.gateways[:i], obj.gateways[i+1:]...)
		gw.dispose()
		obj.gatewayMessage(id, MsgGatewayUnregistered)
		return nil
	}
	obj.exception(ExGatewayNotFound)
	return fmt.Errorf("failed to remove gateway %s: %w", id, ErrGatewayNotFound)
}

// FindGateway returns the gateway with the printed id, nil if unknown
func (obj *Lib) FindGateway(id string) *Gateway {
	gwid := ident.Decode(id)
	for _, gw := range obj.gateways {
		if gw.id == gwid {
			return gw
		}
	}
	return nil
}

// Gateways returns the registered gateways in registration order
func (obj *Lib) Gateways() []*Gateway {
	out := make([]*Gateway, len(obj.gateways))
	copy(out, obj.gateways)
	return out
}

// RegisterSensor attaches a sensor to a gateway. The same sensor object may be
// served by several gateways, but two objects may not share an id.
func (obj *Lib) RegisterSensor(gatewayID string, s *sensor.Sensor) error {
	if s == nil || s.ID() == 0 {
		obj.exception(ExSensorInvalid)
		return ErrInvalidSensor
	}
	gwid := ident.Decode(gatewayID)
	var target *Gateway
	for _, gw := range obj.gateways {
		if gw.id == gwid {
			target = gw
		}
		for _, existing := range gw.sensors {
			if existing.ID() != s.ID() {
				continue
			}
			if existing != s {
				obj.exception(ExSensorDuplicateID)
				return fmt.Errorf("%w: %s", ErrDuplicateID, s.Label())
			}
			if target == gw {
				obj.exception(ExSensorAlreadyRegistered)
				return nil
			}
		}
	}
	if target == nil {
		obj.exception(ExSensorUnknownGateway)
		return fmt.Errorf("%w: %s", ErrUnknownGateway, gatewayID)
	}
	if obj.maxSensors > 0 && len(target.sensors) >= obj.maxSensors {
		obj.exception(ExSensorCapacity)
		return fmt.Errorf("failed to register sensor %s: %w", s.Label(), ErrCapacity)
	}
	target.sensors = append(target.sensors, s)
	target.loadNeeded = true
	obj.sensorPersist(s)
	return nil
}

// RemoveSensor detaches a sensor from every gateway and queues its removal
// from the radio tables. Unknown ids are ignored. When any owning gateway has
// no room left in its removal queue nothing is changed.
func (obj *Lib) RemoveSensor(id string) error {
	senid := ident.Decode(id)
	var owners []*Gateway
	for _, gw := range obj.gateways {
		if gw.findSensor(senid) == nil {
			continue
		}
		if obj.maxRemovals > 0 && len(gw.removals) >= obj.maxRemovals {
			obj.exception(ExSensorRemovalCapacity)
			return fmt.Errorf("failed to queue removal of %s on gateway %s: %w", id, gw.ID(), ErrCapacity)
		}
		owners = append(owners, gw)
	}
	for _, gw := range owners {
		kept := gw.sensors[:0]
		for _, s := range gw.sensors {
			if s.ID() != senid {
				kept = append(kept, s)
			}
		}
		for i := len(kept); i < len(gw.sensors); i++ {
			gw.sensors[i] = nil
		}
		gw.sensors = kept
		gw.removals = append(gw.removals, senid)
		gw.removeNeeded = true
	}
	return nil
}

// FindSensor returns the sensor with the printed id, nil if unknown
func (obj *Lib) FindSensor(id string) *sensor.Sensor {
	return obj.findSensor(ident.Decode(id))
}

func (obj *Lib) findSensor(id uint32) *sensor.Sensor {
	for _, gw := range obj.gateways {
		if s := gw.findSensor(id); s != nil {
			return s
		}
	}
	return nil
}

// Close removes every gateway
func (obj *Lib) Close() error {
	for len(obj.gateways) > 0 {
		if err := obj.RemoveGateway(obj.gateways[0].ID()); err != nil {
			return err
		}
	}
	return nil
}
