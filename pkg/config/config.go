package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mbalug7/go-tarts/pkg/hal"
	"github.com/mbalug7/go-tarts/pkg/ident"
	"github.com/mbalug7/go-tarts/pkg/sensor"
)

const (
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultHTTPTimeout   = 10 * time.Second
	DefaultSubjectPrefix = "tarts"
	DefaultStorePath     = "sensors.yaml"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the host configuration of tartsd
type Config struct {
	Log          LogConfig      `yaml:"log" toml:"log"`
	Gateway      GatewayConfig  `yaml:"gateway" toml:"gateway"`
	PollInterval time.Duration  `yaml:"poll_interval" toml:"poll_interval"`
	Sniffer      SnifferConfig  `yaml:"sniffer" toml:"sniffer"`
	Sensors      []SensorConfig `yaml:"sensors" toml:"sensors"`
	Uplink       UplinkConfig   `yaml:"uplink" toml:"uplink"`
	Store        StoreConfig    `yaml:"store" toml:"store"`
	API          APIConfig      `yaml:"api" toml:"api"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

type GatewayConfig struct {
	// printed id on the plate label, e.g. T00C1D
	ID          string       `yaml:"id" toml:"id"`
	ChannelMask uint32       `yaml:"channel_mask" toml:"channel_mask"`
	Serial      SerialConfig `yaml:"serial" toml:"serial"`
	GPIO        GPIOConfig   `yaml:"gpio" toml:"gpio"`
}

type SerialConfig struct {
	Port string `yaml:"port" toml:"port"`
	Baud int    `yaml:"baud" toml:"baud"`
}

// GPIOConfig holds line offsets of the handshake pins on the GPIO chip
type GPIOConfig struct {
	Chip     string `yaml:"chip" toml:"chip"`
	Activity int    `yaml:"activity" toml:"activity"`
	PCTS     int    `yaml:"pcts" toml:"pcts"`
	PRTS     int    `yaml:"prts" toml:"prts"`
	NRST     int    `yaml:"nrst" toml:"nrst"`
}

type SnifferConfig struct {
	// register every unknown sensor heard on the air
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// SensorConfig is a statically configured sensor. Zero settings keep the
// factory defaults.
type SensorConfig struct {
	ID             string `yaml:"id" toml:"id"`
	Type           string `yaml:"type" toml:"type"`
	ReportInterval uint16 `yaml:"report_interval" toml:"report_interval"`
	LinkInterval   uint8  `yaml:"link_interval" toml:"link_interval"`
	RetryCount     uint8  `yaml:"retry_count" toml:"retry_count"`
	Recovery       uint8  `yaml:"recovery" toml:"recovery"`
}

type UplinkConfig struct {
	HTTP HTTPConfig `yaml:"http" toml:"http"`
	NATS NATSConfig `yaml:"nats" toml:"nats"`
}

type HTTPConfig struct {
	URL        string        `yaml:"url" toml:"url"`
	APIKey     string        `yaml:"api_key" toml:"api_key"`
	BotID      string        `yaml:"bot_id" toml:"bot_id"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout"`
	WaitForAPI bool          `yaml:"wait_for_api" toml:"wait_for_api"`
}

type NATSConfig struct {
	URL           string        `yaml:"url" toml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix" toml:"subject_prefix"`
	MaxReconnects int           `yaml:"max_reconnects" toml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait" toml:"reconnect_wait"`
}

type StoreConfig struct {
	// file or postgres, empty disables persistence
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

type APIConfig struct {
	// empty disables the local API
	Listen      string   `yaml:"listen" toml:"listen"`
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins"`
	// HS256 secret, when set the mutating routes require a bearer token
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// Load reads a YAML or TOML file, chosen by extension, applies environment
// overrides and defaults and validates the result
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal toml config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal yaml config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if id := os.Getenv("GATEWAY_ID"); id != "" {
		c.Gateway.ID = id
	}
	if host := os.Getenv("JOTTAI_API_HOST"); host != "" {
		c.Uplink.HTTP.URL = host
	}
	if key := os.Getenv("JOTTAI_API_KEY"); key != "" {
		c.Uplink.HTTP.APIKey = key
	}
	if bot := os.Getenv("JOTTAI_ID"); bot != "" {
		c.Uplink.HTTP.BotID = bot
	}
	if level := os.Getenv("TARTS_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if natsURL := os.Getenv("TARTS_NATS_URL"); natsURL != "" {
		c.Uplink.NATS.URL = natsURL
	}
	if dsn := os.Getenv("TARTS_DATABASE_DSN"); dsn != "" {
		c.Store.DSN = dsn
		if c.Store.Driver == "" {
			c.Store.Driver = "postgres"
		}
	}
	if port := os.Getenv("TARTS_SERIAL_PORT"); port != "" {
		c.Gateway.Serial.Port = port
	}
	if secret := os.Getenv("TARTS_JWT_SECRET"); secret != "" {
		c.API.JWTSecret = secret
	}
}

func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Gateway.ChannelMask == 0 {
		c.Gateway.ChannelMask = 0xFFFFFFFF
	}
	if c.Gateway.Serial.Baud == 0 {
		c.Gateway.Serial.Baud = hal.DefaultBaud
	}
	if c.Gateway.GPIO.Chip == "" {
		c.Gateway.GPIO.Chip = "gpiochip0"
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Uplink.HTTP.Timeout == 0 {
		c.Uplink.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.Uplink.NATS.SubjectPrefix == "" {
		c.Uplink.NATS.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.Uplink.NATS.ReconnectWait == 0 {
		c.Uplink.NATS.ReconnectWait = 2 * time.Second
	}
	if c.Store.Driver == "file" && c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
}

// Validate checks identifiers, sensor types and the store driver
func (c *Config) Validate() error {
	if ident.Decode(c.Gateway.ID) == 0 {
		return fmt.Errorf("%w: gateway id %q", ErrInvalid, c.Gateway.ID)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval %s", ErrInvalid, c.PollInterval)
	}
	for i, s := range c.Sensors {
		if ident.Decode(s.ID) == 0 {
			return fmt.Errorf("%w: sensor %d id %q", ErrInvalid, i, s.ID)
		}
		if _, err := sensor.ParseType(s.Type); err != nil {
			return fmt.Errorf("%w: sensor %s: %s", ErrInvalid, s.ID, err)
		}
	}
	switch c.Store.Driver {
	case "", "file":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: postgres store without dsn", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: store driver %q", ErrInvalid, c.Store.Driver)
	}
	return nil
}

// Module returns the wiring of the gateway plate
func (c GatewayConfig) Module() hal.ModuleConfig {
	return hal.ModuleConfig{
		TTY:         c.Serial.Port,
		Baud:        c.Serial.Baud,
		GPIOChip:    c.GPIO.Chip,
		ActivityPin: c.GPIO.Activity,
		PCTSPin:     c.GPIO.PCTS,
		PRTSPin:     c.GPIO.PRTS,
		NRSTPin:     c.GPIO.NRST,
	}
}

// Sensor builds the sensor record. Configured settings that differ from the
// factory values are scheduled for writing to the device.
func (c SensorConfig) Sensor() (*sensor.Sensor, error) {
	t, err := sensor.ParseType(c.Type)
	if err != nil {
		return nil, err
	}
	s, err := sensor.Parse(c.ID, t)
	if err != nil {
		return nil, err
	}
	builder := sensor.NewConfigBuilder(s)
	if c.ReportInterval != 0 {
		builder.ReportInterval(c.ReportInterval)
	}
	if c.LinkInterval != 0 {
		builder.LinkInterval(c.LinkInterval)
	}
	if c.RetryCount != 0 {
		builder.RetryCount(c.RetryCount)
	}
	if c.Recovery != 0 {
		builder.Recovery(c.Recovery)
	}
	if err := builder.Apply(); err != nil && !errors.Is(err, sensor.ErrNothingChanged) {
		return nil, fmt.Errorf("failed to configure sensor %s: %w", c.ID, err)
	}
	return s, nil
}
