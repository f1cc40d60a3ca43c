package sensor

import (
	"fmt"

	"github.com/mbalug7/go-tarts/pkg/ident"
)

// Type is the sensor type code reported by the device in its data messages
type Type uint16

const (
	TypeMeasure1VDC      Type = 1
	TypeTemperature      Type = 2
	TypeDryContact       Type = 3
	TypeWaterDetect      Type = 4
	TypeActivity         Type = 5
	TypeOpenClose        Type = 9
	TypeButton           Type = 11
	TypeMeasure20mA      Type = 22
	TypePassiveIR        Type = 23
	TypeCompass          Type = 28
	TypeMeasure500VAC    Type = 32
	TypeHumidity         Type = 43
	TypeMeasure50VDC     Type = 59
	TypeVACDetect        Type = 64
	TypeWaterTemperature Type = 65
	TypeAsset            Type = 66
	TypeResistance       Type = 70
	TypeVDCDetect        Type = 71
	TypeMeasure5VDC      Type = 72
	TypeMeasure10VDC     Type = 74
	TypeTilt             Type = 75
	TypeBasicControl     Type = 76
	TypeWaterRope        Type = 78

	// TypeUnknown is sent by devices that do not report their type
	TypeUnknown Type = 0xFFFF
)

func (obj Type) String() string {
	if spec, ok := specs[obj]; ok {
		return spec.name
	}
	return fmt.Sprintf("type(%d)", uint16(obj))
}

// Profile is the default sensing archetype written to the first profile page
type Profile uint8

const (
	ProfileInterval Profile = 1
	ProfileTrigger  Profile = 2
)

// Reading is one named value of a sensor data message
type Reading struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Formatted string `json:"formattedValue"`
}

// Message is a decoded sensor data message
type Message struct {
	SensorID uint32
	// printed id of the gateway that relayed the message
	GatewayID string
	Type      Type
	RSSI      int8
	// hundredths of a volt
	BatteryVoltage uint16
	Readings       []Reading
}

// Label returns the printed sensor id
func (obj Message) Label() string {
	return ident.Encode(obj.SensorID)
}

// Battery formats the battery voltage, e.g. "3.05 VDC"
func (obj Message) Battery() string {
	return fmt.Sprintf("%d.%02d VDC", obj.BatteryVoltage/100, obj.BatteryVoltage%100)
}

func (obj Message) SignalStrength() string {
	return fmt.Sprintf("%d dBm", obj.RSSI)
}
