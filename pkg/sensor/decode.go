package sensor

import (
	"fmt"
	"strconv"
)

const errorText = "ERROR"

// state nibble reported by the device when its probe failed
const stateProbeError = 0x20

func at(data []byte, i int) byte {
	if i < len(data) {
		return data[i]
	}
	return 0
}

func int16At(data []byte, i int) int16 {
	return int16(uint16(at(data, i)) | uint16(at(data, i+1))<<8)
}

func uint16At(data []byte, i int) uint16 {
	return uint16(at(data, i)) | uint16(at(data, i+1))<<8
}

func probeFailed(data []byte) bool {
	return at(data, 0)&0xF0 == stateProbeError
}

// fixedPoint formats a signed value scaled by 10^digits, keeping the sign on
// values between -1 and 0.
func fixedPoint(v int, digits int) string {
	scale := 1
	for i := 0; i < digits; i++ {
		scale *= 10
	}
	sign := ""
	if v < 0 && v > -scale {
		sign = "-"
	}
	frac := v % scale
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%s%d.%0*d", sign, v/scale, digits, frac)
}

func twoState(name string, data []byte, off, on string) []Reading {
	if at(data, 1) == 0 {
		return []Reading{{Name: name, Value: "0", Formatted: off}}
	}
	return []Reading{{Name: name, Value: "1", Formatted: on}}
}

func decodeTemperature(data []byte) []Reading {
	t := int(int16At(data, 1))
	formatted := errorText
	if !probeFailed(data) {
		formatted = fixedPoint(t, 1) + " C"
	}
	return []Reading{{Name: "TEMPERATURE", Value: strconv.Itoa(t), Formatted: formatted}}
}

func decodeHumidity(data []byte) []Reading {
	t := int(int16At(data, 1))
	rh := int(int16At(data, 3))
	rhText, tText := errorText, errorText
	if !probeFailed(data) {
		rhText = fixedPoint(rh, 2) + " %"
		tText = fixedPoint(t, 2) + " C"
	}
	return []Reading{
		{Name: "RH", Value: strconv.Itoa(rh), Formatted: rhText},
		{Name: "TEMPERATURE", Value: strconv.Itoa(t), Formatted: tText},
	}
}

func decodeContact(data []byte) []Reading {
	return twoState("CONTACT", data, "OPEN", "CLOSED")
}

func decodeDetect(data []byte) []Reading {
	return twoState("DETECT", data, "NOT PRESENT", "PRESENT")
}

func decodeButton(data []byte) []Reading {
	return twoState("BUTTON", data, "NOT PRESSED", "PRESSED")
}

func decodePassiveIR(data []byte) []Reading {
	return twoState("PIR", data, "NO MOTION", "MOTION")
}

func decodeActivity(data []byte) []Reading {
	return twoState("ACTIVITY", data, "NO MOTION", "MOTION")
}

func decodeSwitch(data []byte) []Reading {
	return twoState("SWITCH", data, "OPEN", "CLOSED")
}

func decodeAsset([]byte) []Reading {
	return []Reading{{Name: "ASSET", Value: "", Formatted: "PRESENT"}}
}

func decodeCurrent(data []byte) []Reading {
	i := int(uint16At(data, 1))
	return []Reading{{Name: "CURRENT", Value: strconv.Itoa(i), Formatted: fixedPoint(i, 2) + " mA"}}
}

func decodeVoltageDC(data []byte) []Reading {
	v := int(uint16At(data, 1))
	return []Reading{{Name: "VOLTAGE", Value: strconv.Itoa(v), Formatted: fixedPoint(v, 3) + " VDC"}}
}

func decodeVoltageAC(data []byte) []Reading {
	v := int(uint16At(data, 1))
	return []Reading{{Name: "VOLTAGE", Value: strconv.Itoa(v), Formatted: fixedPoint(v, 1) + " VAC"}}
}

func decodeResistance(data []byte) []Reading {
	r := uint32(uint16At(data, 1)) | uint32(uint16At(data, 3))<<16
	formatted := errorText
	if !probeFailed(data) {
		formatted = fmt.Sprintf("%d.%d Ohms", r/10, r%10)
	}
	return []Reading{{Name: "RESISTANCE", Value: strconv.FormatUint(uint64(r), 10), Formatted: formatted}}
}

func decodeTilt(data []byte) []Reading {
	pitch := int(int16At(data, 1))
	roll := int(int16At(data, 3))
	pitchText, rollText := errorText, errorText
	if at(data, 0)&0xF0 == 0 {
		pitchText = fixedPoint(pitch, 2) + " DEG"
		rollText = fixedPoint(roll, 2) + " DEG"
	}
	return []Reading{
		{Name: "PITCH", Value: strconv.Itoa(pitch), Formatted: pitchText},
		{Name: "ROLL", Value: strconv.Itoa(roll), Formatted: rollText},
	}
}

func decodeCompass(data []byte) []Reading {
	heading := int(int16At(data, 1))
	formatted := errorText
	if at(data, 0)&0xF0 == 0 {
		formatted = fmt.Sprintf("%d DEG", heading)
	}
	return []Reading{{Name: "HEADING", Value: strconv.Itoa(heading), Formatted: formatted}}
}
