package uplink

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mbalug7/go-tarts/pkg/sensor"
)

// event names understood by the sensor data agent
const (
	EventGatewayUp     = "gateway up"
	EventGatewayDown   = "gateway down"
	EventGatewayActive = "gateway active"
	EventSensorUp      = "sensor up"
	EventSensorData    = "sensor data"
)

// Sink delivers gateway and sensor events to an upstream service
type Sink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Event is one uplink notification
type Event struct {
	ID             uuid.UUID        `json:"id"`
	Event          string           `json:"event"`
	GatewayID      string           `json:"gatewayId"`
	DeviceID       string           `json:"deviceId,omitempty"`
	SensorName     string           `json:"sensorName,omitempty"`
	Channel        string           `json:"channel,omitempty"`
	Data           []sensor.Reading `json:"data,omitempty"`
	BatteryVoltage string           `json:"batteryVoltage,omitempty"`
	RSSI           string           `json:"rssi,omitempty"`
	Time           time.Time        `json:"time"`
}

func newEvent(name, gatewayID string) Event {
	return Event{
		ID:        uuid.New(),
		Event:     name,
		GatewayID: gatewayID,
		Time:      time.Now().UTC(),
	}
}

func GatewayUp(gatewayID string) Event {
	return newEvent(EventGatewayUp, gatewayID)
}

func GatewayDown(gatewayID string) Event {
	return newEvent(EventGatewayDown, gatewayID)
}

// GatewayActive reports the radio channel the network was formed on
func GatewayActive(gatewayID string, channel uint8) Event {
	ev := newEvent(EventGatewayActive, gatewayID)
	ev.Channel = strconv.Itoa(int(channel))
	return ev
}

// SensorUp announces a newly registered sensor, name is the type label
func SensorUp(gatewayID, deviceID, name string) Event {
	ev := newEvent(EventSensorUp, gatewayID)
	ev.DeviceID = deviceID
	ev.SensorName = name
	return ev
}

func SensorData(msg sensor.Message) Event {
	ev := newEvent(EventSensorData, msg.GatewayID)
	ev.DeviceID = msg.Label()
	ev.Data = msg.Readings
	ev.BatteryVoltage = msg.Battery()
	ev.RSSI = msg.SignalStrength()
	return ev
}
