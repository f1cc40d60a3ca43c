package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbalug7/go-tarts/pkg/ident"
	"github.com/mbalug7/go-tarts/pkg/sensor"
)

var ErrNotFound = errors.New("store: not found")

// Store keeps registered sensors and gateway state across restarts
type Store interface {
	SaveSensor(ctx context.Context, rec Record) error
	DeleteSensor(ctx context.Context, id string) error
	LoadSensors(ctx context.Context) ([]Record, error)
	SaveGateway(ctx context.Context, rec GatewayRecord) error
	Close() error
}

// Record is a persisted sensor with the settings last confirmed by the device
type Record struct {
	ID        string          `yaml:"id"`
	GatewayID string          `yaml:"gateway_id"`
	Type      sensor.Type     `yaml:"type"`
	Settings  sensor.Settings `yaml:"settings"`
	UpdatedAt time.Time       `yaml:"updated_at"`
}

type GatewayRecord struct {
	ID          string    `yaml:"id"`
	ChannelMask uint32    `yaml:"channel_mask"`
	Channel     uint8     `yaml:"channel"`
	UpdatedAt   time.Time `yaml:"updated_at"`
}

// SensorRecord captures the current state of a sensor
func SensorRecord(gatewayID string, s *sensor.Sensor) Record {
	return Record{
		ID:        s.Label(),
		GatewayID: gatewayID,
		Type:      s.Type(),
		Settings:  s.Settings(),
		UpdatedAt: time.Now().UTC(),
	}
}

// Sensor restores the sensor record. The settings are those held by the
// device, nothing is scheduled for writing.
func (obj Record) Sensor() (*sensor.Sensor, error) {
	id := ident.Decode(obj.ID)
	if id == 0 {
		return nil, fmt.Errorf("failed to restore sensor: invalid id %q", obj.ID)
	}
	return sensor.NewWithSettings(id, obj.Type, obj.Settings), nil
}
