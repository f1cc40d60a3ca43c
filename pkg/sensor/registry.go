package sensor

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var ErrUnknownType = errors.New("sensor: unknown sensor type")

type decoder func(data []byte) []Reading

type typeSpec struct {
	name    string
	label   string
	profile Profile
	decode  decoder
	control bool
}

var specs = map[Type]typeSpec{
	TypeTemperature:      {"temperature", "Temperature Sensor", ProfileInterval, decodeTemperature, false},
	TypeWaterTemperature: {"water_temperature", "Water Temperature Sensor", ProfileInterval, decodeTemperature, false},
	TypeHumidity:         {"humidity", "Humidity Sensor", ProfileInterval, decodeHumidity, false},
	TypeDryContact:       {"dry_contact", "Dry Contact Sensor", ProfileTrigger, decodeContact, false},
	TypeOpenClose:        {"open_close", "Open Close Sensor", ProfileTrigger, decodeContact, false},
	TypeWaterDetect:      {"water_detect", "Water Detection Sensor", ProfileTrigger, decodeDetect, false},
	TypeWaterRope:        {"water_rope", "Water Rope Sensor", ProfileTrigger, decodeDetect, false},
	TypeVACDetect:        {"vac_detect", "VAC Detect Sensor", ProfileTrigger, decodeDetect, false},
	TypeVDCDetect:        {"vdc_detect", "VDC Detect Sensor", ProfileTrigger, decodeDetect, false},
	TypeButton:           {"button", "Button Sensor", ProfileTrigger, decodeButton, false},
	TypePassiveIR:        {"passive_ir", "Passive IR Sensor", ProfileTrigger, decodePassiveIR, false},
	TypeActivity:         {"activity", "Activity Sensor", ProfileTrigger, decodeActivity, false},
	TypeAsset:            {"asset", "Assets Sensor", ProfileInterval, decodeAsset, false},
	TypeMeasure20mA:      {"measure_20ma", "20 mA Current Sensor", ProfileInterval, decodeCurrent, false},
	TypeMeasure1VDC:      {"measure_1vdc", "1 VDC Sensor", ProfileInterval, decodeVoltageDC, false},
	TypeMeasure5VDC:      {"measure_5vdc", "5 VDC Sensor", ProfileInterval, decodeVoltageDC, false},
	TypeMeasure10VDC:     {"measure_10vdc", "10 VDC Sensor", ProfileInterval, decodeVoltageDC, false},
	TypeMeasure50VDC:     {"measure_50vdc", "50 VDC Sensor", ProfileInterval, decodeVoltageDC, false},
	TypeMeasure500VAC:    {"measure_500vac", "500 VAC Sensor", ProfileInterval, decodeVoltageAC, false},
	TypeResistance:       {"resistance", "Resistance Sensor", ProfileInterval, decodeResistance, false},
	TypeTilt:             {"tilt", "Tilt Sensor", ProfileInterval, decodeTilt, false},
	TypeCompass:          {"compass", "Compass Sensor", ProfileInterval, decodeCompass, false},
	TypeBasicControl:     {"basic_control", "Basic Control Sensor", ProfileInterval, decodeSwitch, true},
}

// Info describes a supported sensor type
type Info struct {
	Type    Type
	Name    string
	Label   string
	Profile Profile
}

// Lookup returns the description of a supported type
func Lookup(t Type) (Info, error) {
	spec, ok := specs[t]
	if !ok {
		return Info{}, fmt.Errorf("%w: %d", ErrUnknownType, uint16(t))
	}
	return Info{Type: t, Name: spec.name, Label: spec.label, Profile: spec.profile}, nil
}

// Types lists every supported type code in ascending order
func Types() []Type {
	types := make([]Type, 0, len(specs))
	for t := range specs {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ParseType accepts either a type name ("temperature") or its numeric code ("2")
func ParseType(value string) (Type, error) {
	value = strings.TrimSpace(value)
	if code, err := strconv.ParseUint(value, 10, 16); err == nil {
		if _, ok := specs[Type(code)]; ok {
			return Type(code), nil
		}
		return 0, fmt.Errorf("%w: %d", ErrUnknownType, code)
	}
	for t, spec := range specs {
		if strings.EqualFold(spec.name, value) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, value)
}

// Decode turns the data section of a data message, starting at the state
// byte, into readings. Unsupported types yield no readings.
func Decode(t Type, data []byte) []Reading {
	spec, ok := specs[t]
	if !ok {
		return nil
	}
	return spec.decode(data)
}
