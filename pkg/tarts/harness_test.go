package tarts

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/mbalug7/go-tarts/pkg/gwapi"
	"github.com/mbalug7/go-tarts/pkg/sensor"
)

type fakeTransport struct {
	inbound   [][]byte
	sent      []gwapi.Frame
	initCalls int
	initErr   error
	closed    bool
}

func (obj *fakeTransport) Initialize() error {
	obj.initCalls++
	return obj.initErr
}

func (obj *fakeTransport) InboundReady() bool {
	return len(obj.inbound) > 0
}

func (obj *fakeTransport) RetrieveInbound() []byte {
	if len(obj.inbound) == 0 {
		return nil
	}
	raw := obj.inbound[0]
	obj.inbound = obj.inbound[1:]
	return raw
}

func (obj *fakeTransport) Send(frame []byte) error {
	f, err := gwapi.Parse(frame)
	if err != nil {
		return err
	}
	obj.sent = append(obj.sent, f)
	return nil
}

func (obj *fakeTransport) Close() error {
	obj.closed = true
	return nil
}

func (obj *fakeTransport) push(raw []byte) {
	obj.inbound = append(obj.inbound, raw)
}

func (obj *fakeTransport) last(t *testing.T) *gwapi.Frame {
	t.Helper()
	if len(obj.sent) == 0 {
		t.Fatalf("nothing was sent")
	}
	return &obj.sent[len(obj.sent)-1]
}

type fakeClock struct {
	t time.Time
}

func (obj *fakeClock) now() time.Time {
	return obj.t
}

func (obj *fakeClock) advance(d time.Duration) {
	obj.t = obj.t.Add(d)
}

type gwEvent struct {
	gateway string
	msg     GatewayMessage
}

// recorder collects every callback fired by the library
type recorder struct {
	gwPersist  []string
	gwMessages []gwEvent
	senPersist []string
	messages   []sensor.Message
	exceptions []Exception
}

func (obj *recorder) attach(lib *Lib) {
	lib.RegisterOnGatewayPersistCb(func(id string) { obj.gwPersist = append(obj.gwPersist, id) })
	lib.RegisterOnGatewayMessageCb(func(id string, msg GatewayMessage) {
		obj.gwMessages = append(obj.gwMessages, gwEvent{id, msg})
	})
	lib.RegisterOnSensorPersistCb(func(id string) { obj.senPersist = append(obj.senPersist, id) })
	lib.RegisterOnSensorMessageCb(func(msg sensor.Message) { obj.messages = append(obj.messages, msg) })
	lib.RegisterOnLogExceptionCb(func(ex Exception) { obj.exceptions = append(obj.exceptions, ex) })
}

func (obj *recorder) hasMessage(msg GatewayMessage) bool {
	for _, ev := range obj.gwMessages {
		if ev.msg == msg {
			return true
		}
	}
	return false
}

func (obj *recorder) lastException(t *testing.T) Exception {
	t.Helper()
	if len(obj.exceptions) == 0 {
		t.Fatalf("no exception logged")
	}
	return obj.exceptions[len(obj.exceptions)-1]
}

type harness struct {
	clock *fakeClock
	tr    *fakeTransport
	lib   *Lib
	gw    *Gateway
	rec   *recorder
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	h := &harness{
		clock: clock,
		tr:    &fakeTransport{},
		lib:   New(append([]Option{WithClock(clock.now)}, opts...)...),
		rec:   &recorder{},
	}
	h.rec.attach(h.lib)
	h.gw = NewGateway("T00001", AllChannels, h.tr)
	if err := h.lib.RegisterGateway(h.gw); err != nil {
		t.Fatalf("register gateway: %v", err)
	}
	return h
}

func (obj *harness) process(n int) {
	for i := 0; i < n; i++ {
		obj.lib.Process()
	}
}

// start drives the gateway into the starting state
func (obj *harness) start(t *testing.T) {
	t.Helper()
	obj.process(2)
	if obj.gw.State() != StateStarting {
		t.Fatalf("state = %s, want STARTING", obj.gw.State())
	}
}

// activate drives the gateway through loading every owned sensor into the
// active state
func (obj *harness) activate(t *testing.T) {
	t.Helper()
	obj.start(t)
	obj.tr.push(networkStatus(obj.gw.id, 0, 12, 1))
	obj.process(1)
	for acked := 1; obj.gw.State() == StateLoading; acked++ {
		if acked > len(obj.gw.sensors) {
			t.Fatalf("loading did not finish after %d acks", acked-1)
		}
		obj.tr.push(networkStatus(obj.gw.id, uint16(acked), 12, 1))
		obj.process(1)
	}
	obj.process(2)
	if obj.gw.State() != StateActive {
		t.Fatalf("state = %s, want ACTIVE", obj.gw.State())
	}
	obj.tr.sent = nil
}

// expectRetryLadder checks that the pending request is resent once after
// firstRetry and once after secondRetry, and that the gateway turns off once
// giveUp passed since t0
func (obj *harness) expectRetryLadder(t *testing.T, t0 time.Time, state State, cmd gwapi.Command) {
	t.Helper()
	sent := len(obj.tr.sent)
	steps := []struct {
		at   time.Duration
		sent int
	}{
		{firstRetry, sent},
		{firstRetry + time.Millisecond, sent + 1},
		{secondRetry, sent + 1},
		{secondRetry + time.Millisecond, sent + 2},
		{giveUp, sent + 2},
	}
	for _, st := range steps {
		obj.clock.t = t0.Add(st.at)
		obj.process(1)
		if obj.gw.State() != state || len(obj.tr.sent) != st.sent {
			t.Fatalf("after %s: state %s with %d sent, want %s with %d", st.at, obj.gw.State(), len(obj.tr.sent), state, st.sent)
		}
		if f := obj.tr.last(t); f.Command() != cmd {
			t.Fatalf("after %s: resent %s, want %s", st.at, f.Command(), cmd)
		}
	}
	obj.clock.t = t0.Add(giveUp + time.Millisecond)
	obj.process(1)
	if obj.gw.State() != StateOff {
		t.Fatalf("state = %s, want OFF", obj.gw.State())
	}
	if len(obj.tr.sent) != sent+2 {
		t.Fatalf("%d frames sent while giving up", len(obj.tr.sent)-sent-2)
	}
}

func mustBuild(cmd gwapi.Command, payload []byte) []byte {
	f, err := gwapi.Build(cmd, gwapi.NoOpts, payload)
	if err != nil {
		panic(err)
	}
	return append([]byte(nil), f.Bytes()...)
}

// networkStatus renders a status report, channel 0 means no channel selected
func networkStatus(gwid uint32, sensorCount uint16, channel, wireless byte) []byte {
	p := make([]byte, 9)
	binary.LittleEndian.PutUint32(p, gwid)
	binary.LittleEndian.PutUint16(p[4:], sensorCount)
	p[6] = channel
	if channel != 0 {
		p[7] = 1
	}
	p[8] = wireless
	return mustBuild(gwapi.CmdNetworkStatusMessage, p)
}

func statusIndicator(id uint32, t sensor.Type, code byte) []byte {
	p := make([]byte, 7)
	binary.LittleEndian.PutUint32(p, id)
	binary.LittleEndian.PutUint16(p[4:], uint16(t))
	p[6] = code
	return mustBuild(gwapi.CmdSensorStatusIndicator, p)
}

func dataMessage(id uint32, t sensor.Type, rssi int8, battery byte, data []byte) []byte {
	p := make([]byte, 9, 9+len(data))
	binary.LittleEndian.PutUint32(p, id)
	p[5] = byte(rssi)
	p[6] = battery
	binary.LittleEndian.PutUint16(p[7:], uint16(t))
	return mustBuild(gwapi.CmdDataMessage, append(p, data...))
}

func sensorFrame(cmd gwapi.Command, id uint32, body ...byte) []byte {
	p := make([]byte, 4, 4+len(body))
	binary.LittleEndian.PutUint32(p, id)
	return mustBuild(cmd, append(p, body...))
}
