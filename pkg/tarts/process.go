package tarts

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mbalug7/go-tarts/pkg/gwapi"
	"github.com/mbalug7/go-tarts/pkg/sensor"
)

// sensor status indicator codes
const (
	statusNotAllowed   = 1
	statusQueueSet     = 2
	statusNotHandled   = 3
	readResponseOffset = 10
)

// Process services every gateway once: it consumes at most one inbound frame
// per gateway and advances the gateway state machine by one step.
func (obj *Lib) Process() {
	for _, gw := range obj.gateways {
		obj.receive(gw)
		obj.step(gw)
	}
}

func (obj *Lib) receive(gw *Gateway) {
	if gw.transport == nil || !gw.transport.InboundReady() {
		return
	}
	raw := gw.transport.RetrieveInbound()
	if raw == nil {
		return
	}
	now := obj.now()
	f, err := gwapi.Parse(raw)
	gw.lastTx = now
	if err != nil {
		log.Debug().Err(err).Str("gateway", gw.ID()).Hex("raw", raw).Msg("dropped inbound frame")
		return
	}
	log.Debug().Str("gateway", gw.ID()).Stringer("frame", f).Msg("received")

	id, ok := f.ID()
	if !ok || id == 0 {
		obj.handleLocal(gw, &f)
		return
	}
	if gw.state == StateActive {
		obj.handleSensorTraffic(gw, id, &f)
	}
}

func (obj *Lib) handleLocal(gw *Gateway, f *gwapi.Frame) {
	switch f.Command() {
	case gwapi.CmdNetworkStatusMessage:
		gwid := f.Uint32At(4)
		if gwid != gw.id {
			gw.lastUnknownID = gwid
			obj.gatewayMessage(gw.ID(), MsgUnexpectedGatewayID)
			gw.state = StateOff
			gw.lastTx = time.Time{}
		}
		gw.sensorCount = f.Uint16At(8)
		gw.wirelessState = f.At(12)
		if f.At(11) == 0 {
			gw.channel = channelUnassigned
		} else {
			gw.channel = f.At(10)
		}
		gw.netStatsRXD = true

	case gwapi.CmdSensorStatusIndicator:
		id := f.Uint32At(4)
		switch f.At(10) {
		case statusNotAllowed:
			gw.lastUnknownID = id
			gw.lastUnknownType = sensor.Type(f.Uint16At(8))
			obj.gatewayMessage(gw.ID(), MsgUnregisteredSensor)
		case statusQueueSet:
			if s := obj.findSensor(id); s != nil {
				s.AcknowledgeQueue()
			}
			gw.queuePending = false
			gw.errors = 0
		case statusNotHandled:
			gw.send(gwapi.QueuedNotifyRequest(id, true))
			obj.exception(ExUnknownSensorQueued)
		}
	}
}

func (obj *Lib) handleSensorTraffic(gw *Gateway, id uint32, f *gwapi.Frame) {
	cmd := f.Command()
	s := obj.findSensor(id)
	if s == nil {
		if cmd == gwapi.CmdDataMessage || cmd == gwapi.CmdDataMessageDL {
			gw.lastUnknownID = id
			gw.lastUnknownType = sensor.Type(f.Uint16At(11))
			obj.gatewayMessage(gw.ID(), MsgUnregisteredSensor)
		}
		return
	}

	if s.PendingActions() {
		obj.syncSensor(gw, s, f)
	}

	switch cmd {
	case gwapi.CmdDataMessage:
		obj.sensorData(gw, s, int8(f.At(9)), f.At(10), sensor.Type(f.Uint16At(11)), f.From(13))
	case gwapi.CmdDataMessageDL:
		obj.sensorData(gw, s, int8(f.At(13)), f.At(14), sensor.Type(f.Uint16At(15)), f.From(17))
	}
}

// syncSensor applies the device answer to the previous configuration request
// and pushes the next one
func (obj *Lib) syncSensor(gw *Gateway, s *sensor.Sensor, f *gwapi.Frame) {
	switch f.Command() {
	case gwapi.CmdReadDataSectorResponse:
		s.HandleReadResponse(gwapi.Sector(f.At(8)), f.At(9), f.From(readResponseOffset))
	case gwapi.CmdAppCommandResponse:
		s.HandleAppResponse(f.From(8))
	case gwapi.CmdWriteDataSectorResponse:
		s.HandleWriteResponse(gwapi.Sector(f.At(8)))
	}

	next, ok, err := s.NextRequest()
	if err != nil {
		log.Warn().Err(err).Str("sensor", s.Label()).Msg("failed to build configuration request")
	} else if ok {
		gw.send(next)
	}

	if !s.PendingActions() {
		gw.send(gwapi.QueuedNotifyRequest(s.ID(), false))
		obj.sensorPersist(s)
	}
}

func (obj *Lib) sensorData(gw *Gateway, s *sensor.Sensor, rssi int8, battery uint8, reported sensor.Type, data []byte) {
	if reported != s.Type() && reported != sensor.TypeUnknown {
		obj.exception(ExSensorTypeMismatch)
	}
	if obj.onSensorMessage == nil {
		return
	}
	obj.onSensorMessage(sensor.Message{
		SensorID:       s.ID(),
		GatewayID:      gw.ID(),
		Type:           s.Type(),
		RSSI:           rssi,
		BatteryVoltage: uint16(battery) + 150,
		Readings:       sensor.Decode(s.Type(), data),
	})
}

// elapsed reports whether more than d passed since the last transaction
func (obj *Gateway) elapsed(now time.Time, d time.Duration) bool {
	return now.After(obj.lastTx.Add(d))
}

func (obj *Lib) setState(gw *Gateway, state State) {
	if gw.state != state {
		log.Debug().Str("gateway", gw.ID()).Stringer("from", gw.state).Stringer("to", state).Msg("state change")
	}
	gw.state = state
}

func (obj *Lib) goOff(gw *Gateway) {
	obj.setState(gw, StateOff)
	gw.lastTx = time.Time{}
}

func (obj *Lib) startReforming(gw *Gateway) {
	obj.setState(gw, StateReforming)
	obj.gatewayMessage(gw.ID(), MsgStateReforming)
	gw.sendReform()
}

func (obj *Lib) startRemoving(gw *Gateway) {
	obj.setState(gw, StateRemoving)
	obj.gatewayMessage(gw.ID(), MsgStateRemoving)
	gw.sendRemoveNext()
}

func (obj *Lib) startLoading(gw *Gateway) {
	if len(gw.sensors) == 0 {
		gw.loadNeeded = false
		obj.startActivating(gw)
		return
	}
	obj.setState(gw, StateLoading)
	obj.gatewayMessage(gw.ID(), MsgStateLoading)
	gw.processCount = len(gw.sensors)
	gw.sendAssignNext()
}

func (obj *Lib) startActivating(gw *Gateway) {
	obj.setState(gw, StateActivating)
	obj.gatewayMessage(gw.ID(), MsgStateActivating)
	gw.send(gwapi.ActiveRequest())
}

// retry runs the shared give-up ladder of the handshake states. It reports
// whether the gateway should resend its last request.
func (obj *Lib) retry(gw *Gateway, now time.Time) bool {
	switch {
	case gw.elapsed(now, giveUp):
		obj.goOff(gw)
	case gw.elapsed(now, firstRetry) && gw.errors == 0,
		gw.elapsed(now, secondRetry) && gw.errors == 1:
		gw.errors++
		return true
	}
	return false
}

func (obj *Lib) step(gw *Gateway) {
	now := obj.now()
	switch gw.state {
	case StateUninitialized:
		obj.setState(gw, StateInitialized)
		gw.lastTx = now

	case StateOff:
		if gw.lastTx.IsZero() {
			obj.gatewayMessage(gw.ID(), MsgStateOff)
			gw.lastTx = now
			if gw.transport != nil {
				if err := gw.transport.Initialize(); err != nil {
					log.Warn().Err(err).Str("gateway", gw.ID()).Msg("failed to reinitialize gateway")
				}
			}
			gw.errors = 0
		} else if gw.elapsed(now, offCooldown) {
			obj.setState(gw, StateInitialized)
			gw.lastTx = now
		}

	case StateInitialized:
		gw.netStatsRXD = false
		obj.setState(gw, StateStarting)
		gw.send(gwapi.IdleRequest())
		if gw.lastTx.Add(startingAnnounce).After(now) {
			obj.gatewayMessage(gw.ID(), MsgStateStarting)
		}

	case StateStarting:
		if gw.netStatsRXD {
			gw.netStatsRXD = false
			gw.errors = 0
			switch {
			case gw.channel == channelUnassigned || gw.reformNeeded:
				obj.startReforming(gw)
			case gw.removeNeeded && len(gw.removals) > 0:
				obj.startRemoving(gw)
			case gw.loadNeeded || len(gw.sensors) > 0:
				obj.startLoading(gw)
			default:
				obj.startActivating(gw)
			}
		} else if obj.retry(gw, now) {
			obj.setState(gw, StateInitialized)
		}

	case StateReforming:
		if gw.netStatsRXD && gw.wirelessState == wirelessStateUp {
			gw.firstActive = true
			gw.reformNeeded = false
			gw.netStatsRXD = false
			gw.removeNeeded = false
			gw.removals = nil
			if len(gw.sensors) > 0 {
				obj.startLoading(gw)
			} else {
				gw.errors = 0
				obj.startActivating(gw)
			}
		} else if gw.elapsed(now, reformGiveUp) {
			obj.goOff(gw)
		}

	case StateRemoving:
		if gw.netStatsRXD {
			gw.netStatsRXD = false
			gw.errors = 0
			gw.removals = gw.removals[:len(gw.removals)-1]
			if len(gw.removals) > 0 {
				gw.sendRemoveNext()
			} else {
				gw.removals = nil
				gw.removeNeeded = false
				if gw.loadNeeded {
					obj.startLoading(gw)
				} else {
					obj.startActivating(gw)
				}
			}
		} else if obj.retry(gw, now) {
			gw.netStatsRXD = false
			gw.sendRemoveNext()
		}

	case StateLoading:
		if gw.processCount > len(gw.sensors) {
			// sensors were removed while loading
			gw.processCount = len(gw.sensors)
		}
		if gw.processCount == 0 {
			gw.loadNeeded = false
			obj.startActivating(gw)
		} else if gw.netStatsRXD {
			gw.netStatsRXD = false
			gw.errors = 0
			gw.processCount--
			if gw.processCount > 0 {
				gw.sendAssignNext()
			} else {
				gw.loadNeeded = false
				obj.startActivating(gw)
			}
		} else if obj.retry(gw, now) {
			gw.netStatsRXD = false
			gw.sendAssignNext()
		}

	case StateActivating:
		if gw.wirelessState == wirelessStateUp {
			obj.setState(gw, StateActive)
			gw.errors = 0
			obj.gatewayMessage(gw.ID(), MsgStateActive)
		} else if obj.retry(gw, now) {
			gw.send(gwapi.ActiveRequest())
		}

	case StateActive:
		obj.stepActive(gw, now)

	default:
		obj.exception(ExUnknownState)
	}
}

func (obj *Lib) stepActive(gw *Gateway, now time.Time) {
	switch {
	case gw.firstActive:
		gw.firstActive = false
		obj.gatewayPersist(gw)
	case gw.reformNeeded:
		gw.reformNeeded = false
		gw.netStatsRXD = false
		gw.lastTx = now
		obj.startReforming(gw)
	case gw.removeNeeded && len(gw.removals) > 0:
		obj.startRemoving(gw)
	case gw.loadNeeded:
		obj.startLoading(gw)
	case gw.elapsed(now, activeKeepalive):
		// keepalive, not reported as a state change
		gw.wirelessState = wirelessStateIdle
		gw.netStatsRXD = false
		gw.errors = 0
		gw.lastTx = now
		obj.setState(gw, StateActivating)
		gw.send(gwapi.ActiveRequest())
	case gw.queuePending:
		if gw.elapsed(now, queueAckTimeout) {
			gw.queuePending = false
			gw.errors++
		}
	case gw.errors > activeErrorLimit:
		obj.goOff(gw)
	default:
		obj.serviceSensors(gw, now)
	}
}

// serviceSensors sends at most one sensor directed message per tick
func (obj *Lib) serviceSensors(gw *Gateway, now time.Time) {
	for _, s := range gw.sensors {
		if s.QueueRequired() {
			gw.queuePending = true
			gw.lastTx = now
			gw.send(gwapi.QueuedNotifyRequest(s.ID(), true))
			return
		}
		if s.AppCommandDue(now) {
			s.AdvanceAppCommand(now)
			data, urgent := s.AppCommand()
			if len(data) != 0 {
				f, err := gwapi.AppCommandRequest(s.ID(), data, urgent)
				if err != nil {
					log.Warn().Err(err).Str("sensor", s.Label()).Msg("failed to build application command")
					return
				}
				gw.send(f)
			}
			return
		}
	}
}
