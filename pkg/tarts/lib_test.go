package tarts

import (
	"errors"
	"testing"

	"github.com/mbalug7/go-tarts/pkg/gwapi"
	"github.com/mbalug7/go-tarts/pkg/sensor"
)

func TestRegisterGateway(t *testing.T) {
	h := newHarness(t)
	if h.tr.initCalls != 1 {
		t.Fatalf("transport initialized %d times", h.tr.initCalls)
	}
	if len(h.rec.gwMessages) != 1 || h.rec.gwMessages[0] != (gwEvent{"T00001", MsgGatewayRegistered}) {
		t.Fatalf("unexpected messages %+v", h.rec.gwMessages)
	}
	if h.lib.FindGateway("T00001") != h.gw {
		t.Fatalf("gateway not found")
	}

	if err := h.lib.RegisterGateway(h.gw); err != nil {
		t.Fatalf("re-registering the same object must be a no-op: %v", err)
	}
	if h.rec.lastException(t) != ExGatewayDuplicateObject || len(h.lib.Gateways()) != 1 {
		t.Fatalf("duplicate object not reported")
	}

	err := h.lib.RegisterGateway(NewGateway("T00001", AllChannels, &fakeTransport{}))
	if !errors.Is(err, ErrGatewayIDInUse) || h.rec.lastException(t) != ExGatewayDuplicateID {
		t.Fatalf("duplicate id: err %v", err)
	}

	if err := h.lib.RegisterGateway(nil); !errors.Is(err, ErrNilGateway) || h.rec.lastException(t) != ExGatewayNil {
		t.Fatalf("nil gateway: err %v", err)
	}

	broken := &fakeTransport{initErr: errors.New("no plate")}
	err = h.lib.RegisterGateway(NewGateway("T00002", AllChannels, broken))
	if !errors.Is(err, ErrHardwareInit) || h.rec.lastException(t) != ExGatewayHardwareInit {
		t.Fatalf("hardware failure: err %v", err)
	}
	if len(h.lib.Gateways()) != 1 {
		t.Fatalf("failed gateway was registered")
	}
}

func TestGatewayCapacity(t *testing.T) {
	h := newHarness(t, WithMaxGateways(1))
	rejected := &fakeTransport{}
	err := h.lib.RegisterGateway(NewGateway("T00002", AllChannels, rejected))
	if !errors.Is(err, ErrCapacity) || h.rec.lastException(t) != ExGatewayCapacity {
		t.Fatalf("capacity: err %v", err)
	}
	if rejected.initCalls != 0 {
		t.Fatalf("rejected gateway transport initialized %d times", rejected.initCalls)
	}
	if len(h.lib.Gateways()) != 1 {
		t.Fatalf("rejected gateway was registered")
	}
}

func TestRemoveGateway(t *testing.T) {
	h := newHarness(t)
	if err := h.lib.RemoveGateway("T00009"); !errors.Is(err, ErrGatewayNotFound) || h.rec.lastException(t) != ExGatewayNotFound {
		t.Fatalf("unknown gateway: err %v", err)
	}
	if err := h.lib.RemoveGateway("T00001"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !h.tr.closed {
		t.Fatalf("transport not closed")
	}
	idle := h.tr.last(t)
	if idle.Command() != gwapi.CmdUpdateNetworkState || idle.Payload()[0] != 0 {
		t.Fatalf("radio not idled: %s", idle)
	}
	if !h.rec.hasMessage(MsgGatewayUnregistered) {
		t.Fatalf("unregistered message missing")
	}
	if err := h.lib.RemoveGateway("T00001"); !errors.Is(err, ErrNoGateways) || h.rec.lastException(t) != ExGatewayListEmpty {
		t.Fatalf("empty list: err %v", err)
	}
}

func TestRegisterSensor(t *testing.T) {
	h := newHarness(t)
	s := sensor.New(10, sensor.TypeTemperature)
	if err := h.lib.RegisterSensor("T00001", s); err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(h.rec.senPersist) != 1 || h.rec.senPersist[0] != "T0000A" {
		t.Fatalf("sensor persist %v", h.rec.senPersist)
	}
	if !h.gw.loadNeeded {
		t.Fatalf("load not scheduled")
	}
	if h.lib.FindSensor("T0000A") != s {
		t.Fatalf("sensor not found")
	}

	if err := h.lib.RegisterSensor("T00001", s); err != nil || h.rec.lastException(t) != ExSensorAlreadyRegistered {
		t.Fatalf("same object twice: err %v", err)
	}
	if len(h.gw.Sensors()) != 1 {
		t.Fatalf("sensor added twice")
	}

	twin := sensor.New(10, sensor.TypeButton)
	if err := h.lib.RegisterSensor("T00001", twin); !errors.Is(err, ErrDuplicateID) || h.rec.lastException(t) != ExSensorDuplicateID {
		t.Fatalf("duplicate id: err %v", err)
	}

	if err := h.lib.RegisterSensor("T00001", nil); !errors.Is(err, ErrInvalidSensor) || h.rec.lastException(t) != ExSensorInvalid {
		t.Fatalf("nil sensor: err %v", err)
	}
	if err := h.lib.RegisterSensor("T00001", sensor.New(0, sensor.TypeButton)); !errors.Is(err, ErrInvalidSensor) {
		t.Fatalf("zero id: err %v", err)
	}

	other := sensor.New(11, sensor.TypeButton)
	if err := h.lib.RegisterSensor("T00099", other); !errors.Is(err, ErrUnknownGateway) || h.rec.lastException(t) != ExSensorUnknownGateway {
		t.Fatalf("unknown gateway: err %v", err)
	}
}

func TestSensorSharedBetweenGateways(t *testing.T) {
	h := newHarness(t)
	second := NewGateway("T00002", AllChannels, &fakeTransport{})
	if err := h.lib.RegisterGateway(second); err != nil {
		t.Fatalf("register second gateway: %v", err)
	}
	s := sensor.New(10, sensor.TypeTemperature)
	if err := h.lib.RegisterSensor("T00001", s); err != nil {
		t.Fatalf("register on first: %v", err)
	}
	if err := h.lib.RegisterSensor("T00002", s); err != nil {
		t.Fatalf("register on second: %v", err)
	}
	if len(second.Sensors()) != 1 {
		t.Fatalf("sensor not attached to second gateway")
	}
	if err := h.lib.RemoveSensor("T0000A"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if h.gw.PendingRemovals() != 1 || second.PendingRemovals() != 1 {
		t.Fatalf("removal not queued on both gateways")
	}
}

func TestSensorCapacity(t *testing.T) {
	h := newHarness(t, WithMaxSensors(1), WithMaxPendingRemovals(1))
	if err := h.lib.RegisterSensor("T00001", sensor.New(10, sensor.TypeTemperature)); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := h.lib.RegisterSensor("T00001", sensor.New(11, sensor.TypeTemperature))
	if !errors.Is(err, ErrCapacity) || h.rec.lastException(t) != ExSensorCapacity {
		t.Fatalf("sensor capacity: err %v", err)
	}

	if err := h.lib.RemoveSensor("T0000A"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := h.lib.RegisterSensor("T00001", sensor.New(11, sensor.TypeTemperature)); err != nil {
		t.Fatalf("register after remove: %v", err)
	}
	err = h.lib.RemoveSensor("T0000B")
	if !errors.Is(err, ErrCapacity) || h.rec.lastException(t) != ExSensorRemovalCapacity {
		t.Fatalf("removal capacity: err %v", err)
	}
	if len(h.gw.Sensors()) != 1 || h.lib.FindSensor("T0000B") == nil {
		t.Fatalf("sensor detached although its removal was refused")
	}
	if h.gw.PendingRemovals() != 1 || h.gw.removals[0] != 10 {
		t.Fatalf("removal queue changed: %v", h.gw.removals)
	}
}

func TestRemovalCapacityOnSecondGateway(t *testing.T) {
	h := newHarness(t, WithMaxPendingRemovals(1))
	second := NewGateway("T00002", AllChannels, &fakeTransport{})
	if err := h.lib.RegisterGateway(second); err != nil {
		t.Fatalf("register second gateway: %v", err)
	}
	a := sensor.New(10, sensor.TypeTemperature)
	b := sensor.New(11, sensor.TypeTemperature)
	for _, s := range []*sensor.Sensor{a, b} {
		if err := h.lib.RegisterSensor("T00001", s); err != nil {
			t.Fatalf("register %s on first: %v", s.Label(), err)
		}
	}
	if err := h.lib.RegisterSensor("T00002", b); err != nil {
		t.Fatalf("register on second: %v", err)
	}

	if err := h.lib.RemoveSensor("T0000A"); err != nil {
		t.Fatalf("remove first: %v", err)
	}
	err := h.lib.RemoveSensor("T0000B")
	if !errors.Is(err, ErrCapacity) || h.rec.lastException(t) != ExSensorRemovalCapacity {
		t.Fatalf("removal capacity: err %v", err)
	}
	if h.gw.findSensor(11) == nil || second.findSensor(11) == nil {
		t.Fatalf("refused removal detached the sensor from a gateway")
	}
	if len(h.gw.removals) != 1 || h.gw.removals[0] != 10 || len(second.removals) != 0 {
		t.Fatalf("removal queues changed: %v %v", h.gw.removals, second.removals)
	}
	if second.removeNeeded {
		t.Fatalf("second gateway scheduled a removal")
	}
}

func TestRemoveUnknownSensor(t *testing.T) {
	h := newHarness(t)
	if err := h.lib.RegisterSensor("T00001", sensor.New(11, sensor.TypeTemperature)); err != nil {
		t.Fatalf("register: %v", err)
	}
	exceptions := len(h.rec.exceptions)
	if err := h.lib.RemoveSensor("T0000A"); err != nil {
		t.Fatalf("unknown id must be ignored: %v", err)
	}
	if len(h.gw.Sensors()) != 1 || h.gw.PendingRemovals() != 0 || h.gw.removeNeeded {
		t.Fatalf("unknown id changed the gateway")
	}
	if len(h.rec.exceptions) != exceptions {
		t.Fatalf("unknown id logged %v", h.rec.exceptions[exceptions:])
	}
}

func TestNilCallbacksIgnored(t *testing.T) {
	h := newHarness(t)
	h.lib.RegisterOnLogExceptionCb(nil)
	h.lib.RegisterGateway(nil)
	if h.rec.lastException(t) != ExGatewayNil {
		t.Fatalf("nil registration replaced the callback")
	}
}

func TestCodes(t *testing.T) {
	if MsgStateActive.String() != "STATE::ACTIVE" {
		t.Fatalf("message text %q", MsgStateActive)
	}
	if ExSensorTypeMismatch.String() != "WARN  :: Sensor type mismatch!" {
		t.Fatalf("exception text %q", ExSensorTypeMismatch)
	}
	if ExGatewayNotFound.Severity().String() != "warn" || ExUnknownState.Severity().String() != "error" {
		t.Fatalf("severity mapping broken")
	}
	if StateReforming.String() != "REFORMING" {
		t.Fatalf("state name %q", StateReforming)
	}
}
