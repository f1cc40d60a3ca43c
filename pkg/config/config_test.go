package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mbalug7/go-tarts/pkg/gwapi"
	"github.com/mbalug7/go-tarts/pkg/sensor"
)

const yamlConfig = `
log:
  level: debug
gateway:
  id: T00C1D
  serial:
    port: /dev/ttyS4
  gpio:
    activity: 60
    pcts: 48
    prts: 49
    nrst: 117
poll_interval: 50ms
sniffer:
  enabled: true
sensors:
  - id: T0000A
    type: temperature
    report_interval: 600
  - id: T0000B
    type: "11"
store:
  driver: file
`

const tomlConfig = `
poll_interval = "200ms"

[gateway]
id = "T00001"
channel_mask = 61440

[gateway.serial]
port = "/dev/ttyUSB0"
baud = 57600

[[sensors]]
id = "T0000C"
type = "humidity"

[uplink.nats]
url = "nats://127.0.0.1:4222"
subject_prefix = "site1"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "tartsd.yaml", yamlConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.ID != "T00C1D" || cfg.Gateway.ChannelMask != 0xFFFFFFFF {
		t.Fatalf("gateway %+v", cfg.Gateway)
	}
	if cfg.PollInterval != 50*time.Millisecond || cfg.Log.Level != "debug" || !cfg.Sniffer.Enabled {
		t.Fatalf("unexpected config %+v", cfg)
	}
	module := cfg.Gateway.Module()
	if module.TTY != "/dev/ttyS4" || module.Baud != 115200 || module.GPIOChip != "gpiochip0" || module.NRSTPin != 117 {
		t.Fatalf("module %+v", module)
	}
	if cfg.Store.Path != DefaultStorePath {
		t.Fatalf("store path %q", cfg.Store.Path)
	}
	if len(cfg.Sensors) != 2 {
		t.Fatalf("sensors %+v", cfg.Sensors)
	}

	s, err := cfg.Sensors[0].Sensor()
	if err != nil {
		t.Fatalf("sensor: %v", err)
	}
	if s.ID() != 10 || s.Type() != sensor.TypeTemperature || s.ReportInterval() != 600 {
		t.Fatalf("sensor %s settings %+v", s, s.Settings())
	}
	if !s.Dirty(gwapi.SectorGeneral1) || s.Dirty(gwapi.SectorGeneral2) {
		t.Fatalf("only the changed page must be written")
	}

	b, err := cfg.Sensors[1].Sensor()
	if err != nil {
		t.Fatalf("sensor: %v", err)
	}
	if b.Type() != sensor.TypeButton || b.PendingActions() {
		t.Fatalf("default sensor %s must be idle", b)
	}
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeFile(t, "tartsd.toml", tomlConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.ChannelMask != 0xF000 || cfg.Gateway.Serial.Baud != 57600 {
		t.Fatalf("gateway %+v", cfg.Gateway)
	}
	if cfg.PollInterval != 200*time.Millisecond || cfg.Log.Level != "info" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Uplink.NATS.SubjectPrefix != "site1" || cfg.Uplink.HTTP.Timeout != DefaultHTTPTimeout {
		t.Fatalf("uplink %+v", cfg.Uplink)
	}
	if len(cfg.Sensors) != 1 || cfg.Sensors[0].Type != "humidity" {
		t.Fatalf("sensors %+v", cfg.Sensors)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_ID", "T00099")
	t.Setenv("JOTTAI_API_HOST", "http://agent.local/api")
	t.Setenv("JOTTAI_API_KEY", "secret")
	t.Setenv("JOTTAI_ID", "bot-7")
	t.Setenv("TARTS_DATABASE_DSN", "postgres://tarts@localhost/tarts")
	t.Setenv("TARTS_SERIAL_PORT", "/dev/ttyS1")

	cfg, err := Load(writeFile(t, "tartsd.toml", tomlConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.ID != "T00099" || cfg.Gateway.Serial.Port != "/dev/ttyS1" {
		t.Fatalf("gateway %+v", cfg.Gateway)
	}
	http := cfg.Uplink.HTTP
	if http.URL != "http://agent.local/api" || http.APIKey != "secret" || http.BotID != "bot-7" {
		t.Fatalf("http uplink %+v", http)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.DSN == "" {
		t.Fatalf("store %+v", cfg.Store)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Config{Gateway: GatewayConfig{ID: "T00001"}}
		cfg.setDefaults()
		return cfg
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"gateway id", func(c *Config) { c.Gateway.ID = "00001" }},
		{"sensor id", func(c *Config) { c.Sensors = []SensorConfig{{ID: "X1", Type: "button"}} }},
		{"sensor type", func(c *Config) { c.Sensors = []SensorConfig{{ID: "T0000A", Type: "thermometer"}} }},
		{"store driver", func(c *Config) { c.Store.Driver = "redis" }},
		{"postgres dsn", func(c *Config) { c.Store.Driver = "postgres" }},
		{"poll interval", func(c *Config) { c.PollInterval = -time.Second }},
	}
	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for _, tt := range tests {
		cfg := base()
		tt.mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: err = %v", tt.name, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file accepted")
	}
}

func TestAPISection(t *testing.T) {
	path := writeFile(t, "tartsd.yaml", `
gateway:
  id: T00001
api:
  listen: 127.0.0.1:8088
  cors_origins: [http://dashboard.local]
`)
	t.Setenv("TARTS_JWT_SECRET", "s3cret")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Listen != "127.0.0.1:8088" || len(cfg.API.CORSOrigins) != 1 || cfg.API.JWTSecret != "s3cret" {
		t.Fatalf("unexpected api section %+v", cfg.API)
	}
}
