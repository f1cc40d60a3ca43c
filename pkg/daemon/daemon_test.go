package daemon

import (
	"context"
	"encoding/binary"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mbalug7/go-tarts/pkg/config"
	"github.com/mbalug7/go-tarts/pkg/gwapi"
	"github.com/mbalug7/go-tarts/pkg/sensor"
	"github.com/mbalug7/go-tarts/pkg/store"
	"github.com/mbalug7/go-tarts/pkg/tarts"
	"github.com/mbalug7/go-tarts/pkg/uplink"
)

type fakeTransport struct {
	mu      sync.Mutex
	inbound [][]byte
	closed  bool
}

func (obj *fakeTransport) Initialize() error { return nil }

func (obj *fakeTransport) InboundReady() bool {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	return len(obj.inbound) > 0
}

func (obj *fakeTransport) RetrieveInbound() []byte {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if len(obj.inbound) == 0 {
		return nil
	}
	raw := obj.inbound[0]
	obj.inbound = obj.inbound[1:]
	return raw
}

func (obj *fakeTransport) Send([]byte) error { return nil }

func (obj *fakeTransport) Close() error {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	obj.closed = true
	return nil
}

func (obj *fakeTransport) isClosed() bool {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	return obj.closed
}

func (obj *fakeTransport) push(cmd gwapi.Command, payload []byte) {
	f, err := gwapi.Build(cmd, gwapi.NoOpts, payload)
	if err != nil {
		panic(err)
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	obj.inbound = append(obj.inbound, append([]byte(nil), f.Bytes()...))
}

type fakeSink struct {
	mu     sync.Mutex
	events []uplink.Event
}

func (obj *fakeSink) Publish(_ context.Context, ev uplink.Event) error {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	obj.events = append(obj.events, ev)
	return nil
}

func (obj *fakeSink) Close() error { return nil }

func (obj *fakeSink) find(name string) (uplink.Event, bool) {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	for _, ev := range obj.events {
		if ev.Event == name {
			return ev, true
		}
	}
	return uplink.Event{}, false
}

func testConfig(sensors ...config.SensorConfig) *config.Config {
	return &config.Config{
		Gateway:      config.GatewayConfig{ID: "T00001", ChannelMask: tarts.AllChannels},
		PollInterval: time.Millisecond,
		Sensors:      sensors,
	}
}

type fixture struct {
	tr    *fakeTransport
	sink  *fakeSink
	store *store.FileStore
	d     *Daemon
}

func newFixture(t *testing.T, cfg *config.Config, seed ...store.Record) *fixture {
	t.Helper()
	st, err := store.OpenFile(filepath.Join(t.TempDir(), "sensors.yaml"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	for _, rec := range seed {
		if err := st.SaveSensor(context.Background(), rec); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	f := &fixture{tr: &fakeTransport{}, sink: &fakeSink{}, store: st}
	f.d, err = New(context.Background(), cfg, f.tr, f.sink, st)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return f
}

func (obj *fixture) process(n int) {
	for i := 0; i < n; i++ {
		obj.d.lib.Process()
	}
}

// activate answers every handshake step with a network status report until the
// gateway has loaded its sensors and opened the network
func (obj *fixture) activate(t *testing.T) {
	t.Helper()
	gw := obj.d.lib.FindGateway("T00001")
	obj.process(2)
	for acked := 0; gw.State() != tarts.StateActivating; acked++ {
		if acked > len(gw.Sensors()) {
			t.Fatalf("state = %s after %d status reports", gw.State(), acked)
		}
		p := make([]byte, 9)
		binary.LittleEndian.PutUint32(p, 1)
		binary.LittleEndian.PutUint16(p[4:], uint16(acked))
		p[6], p[7], p[8] = 12, 1, 1
		obj.tr.push(gwapi.CmdNetworkStatusMessage, p)
		obj.process(1)
	}
	obj.process(2)
	if st := gw.State(); st != tarts.StateActive {
		t.Fatalf("state = %s, want ACTIVE", st)
	}
}

func statusIndicator(id uint32, t sensor.Type, code byte) []byte {
	p := make([]byte, 7)
	binary.LittleEndian.PutUint32(p, id)
	binary.LittleEndian.PutUint16(p[4:], uint16(t))
	p[6] = code
	return p
}

func TestNewRegistersConfiguredAndStoredSensors(t *testing.T) {
	stored := store.Record{ID: "T0000C", GatewayID: "T00001", Type: sensor.TypeHumidity, Settings: sensor.Settings{ReportInterval: 300, LinkInterval: 2, RetryCount: 2, Recovery: 2}}
	shadowed := store.Record{ID: "T0000A", GatewayID: "T00001", Type: sensor.TypeTemperature, Settings: sensor.DefaultSettings()}
	f := newFixture(t, testConfig(config.SensorConfig{ID: "T0000A", Type: "temperature", ReportInterval: 600}), stored, shadowed)

	configured := f.d.lib.FindSensor("T0000A")
	if configured == nil || configured.ReportInterval() != 600 {
		t.Fatalf("configured sensor missing or overridden by the store: %v", configured)
	}
	restored := f.d.lib.FindSensor("T0000C")
	if restored == nil || restored.ReportInterval() != 300 || restored.PendingActions() {
		t.Fatalf("stored sensor not restored as is: %v", restored)
	}
	if _, ok := f.sink.find(uplink.EventGatewayUp); !ok {
		t.Fatalf("gateway up not published")
	}
}

func TestSnifferAdoptsUnknownSensor(t *testing.T) {
	cfg := testConfig()
	cfg.Sniffer.Enabled = true
	f := newFixture(t, cfg)

	f.tr.push(gwapi.CmdSensorStatusIndicator, statusIndicator(12, sensor.TypeOpenClose, 1))
	f.process(1)

	s := f.d.lib.FindSensor("T0000C")
	if s == nil || s.Type() != sensor.TypeOpenClose {
		t.Fatalf("sensor not adopted: %v", s)
	}
	if !s.PendingActions() {
		t.Fatalf("configuration read back not requested")
	}
	ev, ok := f.sink.find(uplink.EventSensorUp)
	if !ok || ev.DeviceID != "T0000C" || ev.SensorName != s.Name() {
		t.Fatalf("sensor up event %+v", ev)
	}
	records, err := f.store.LoadSensors(context.Background())
	if err != nil || len(records) != 1 || records[0].ID != "T0000C" {
		t.Fatalf("adopted sensor not stored: %+v err %v", records, err)
	}
}

func TestSnifferIgnoresUnknownTraffic(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		t       sensor.Type
	}{
		{"sniffer disabled", false, sensor.TypeOpenClose},
		{"unsupported type", true, sensor.Type(999)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Sniffer.Enabled = tt.enabled
			f := newFixture(t, cfg)
			f.tr.push(gwapi.CmdSensorStatusIndicator, statusIndicator(12, tt.t, 1))
			f.process(1)
			if f.d.lib.FindSensor("T0000C") != nil {
				t.Fatalf("sensor must not be adopted")
			}
		})
	}
}

func TestSensorDataPublished(t *testing.T) {
	f := newFixture(t, testConfig(config.SensorConfig{ID: "T0000A", Type: "temperature"}))
	f.activate(t)

	active, ok := f.sink.find(uplink.EventGatewayActive)
	if !ok || active.Channel != "12" {
		t.Fatalf("gateway active event %+v", active)
	}
	f.process(1)
	gw, err := f.store.Gateway("T00001")
	if err != nil || gw.Channel != 12 {
		t.Fatalf("gateway not persisted: %+v err %v", gw, err)
	}

	rssi := int8(-60)
	p := make([]byte, 9)
	binary.LittleEndian.PutUint32(p, 10)
	p[5] = byte(rssi)
	p[6] = 150
	binary.LittleEndian.PutUint16(p[7:], uint16(sensor.TypeTemperature))
	f.tr.push(gwapi.CmdDataMessage, append(p, 0, 213, 0))
	f.process(1)

	ev, ok := f.sink.find(uplink.EventSensorData)
	if !ok {
		t.Fatalf("sensor data not published")
	}
	if ev.DeviceID != "T0000A" || ev.BatteryVoltage != "3.00 VDC" || ev.RSSI != "-60 dBm" || len(ev.Data) != 1 || ev.Data[0].Formatted != "21.3 C" {
		t.Fatalf("unexpected sensor data %+v", ev)
	}
}

func TestRemoveSensorDropsRecord(t *testing.T) {
	f := newFixture(t, testConfig(config.SensorConfig{ID: "T0000A", Type: "temperature"}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errs := make(chan error, 1)
	go func() { errs <- f.d.Run(ctx) }()

	if err := f.d.RemoveSensor(ctx, "T0000A"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	records, _ := f.store.LoadSensors(ctx)
	if len(records) != 0 {
		t.Fatalf("record not deleted: %+v", records)
	}
	if err := f.d.RemoveSensor(ctx, "T0000A"); !errors.Is(err, tarts.ErrSensorNotFound) {
		t.Fatalf("second remove: err %v", err)
	}
	cancel()
	if err := <-errs; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunShutdown(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- f.d.Run(ctx) }()

	var count int
	err := f.d.Do(context.Background(), func(lib *tarts.Lib) error {
		count = len(lib.Gateways())
		return nil
	})
	if err != nil || count != 1 {
		t.Fatalf("do: count %d err %v", count, err)
	}

	cancel()
	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return")
	}
	if !f.tr.isClosed() {
		t.Fatalf("transport not closed")
	}
	if _, ok := f.sink.find(uplink.EventGatewayDown); !ok {
		t.Fatalf("gateway down not published")
	}
	if err := f.d.Do(context.Background(), func(*tarts.Lib) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Fatalf("do after stop: err %v", err)
	}
}

type brokenStore struct {
	store.Store
}

func (brokenStore) LoadSensors(context.Context) ([]store.Record, error) {
	return nil, errors.New("disk gone")
}

func TestNewReleasesGatewayOnLoadFailure(t *testing.T) {
	tr := &fakeTransport{}
	_, err := New(context.Background(), testConfig(), tr, &fakeSink{}, brokenStore{})
	if err == nil {
		t.Fatalf("daemon started without its stored sensors")
	}
	if !tr.isClosed() {
		t.Fatalf("transport not released after a failed start")
	}
}
