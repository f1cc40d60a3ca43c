package gwapi

import "fmt"

type Command uint8

type Option uint8

const (
	NoOpts        Option = 0x00
	Urgent        Option = 0x02
	SensorWaiting Option = 0x04
)

// local commands, addressed to the gateway radio itself
const (
	CmdFormNetworkRequest      Command = 0x20
	CmdUpdateNetworkState      Command = 0x21
	CmdRegisterSensorRequest   Command = 0x22
	CmdNetworkStatusMessage    Command = 0x23
	CmdMessageQueuedNotify     Command = 0x24
	CmdSensorStatusIndicator   Command = 0x25
	CmdUnregisterSensorRequest Command = 0x28
)

// wireless commands, addressed to or received from a sensor
const (
	CmdDataMessage             Command = 0x55
	CmdDataMessageDL           Command = 0x56
	CmdReadDataSectorRequest   Command = 0x70
	CmdReadDataSectorResponse  Command = 0x71
	CmdWriteDataSectorRequest  Command = 0x72
	CmdWriteDataSectorResponse Command = 0x73
	CmdAppCommandRequest       Command = 0x74
	CmdAppCommandResponse      Command = 0x75
	CmdError                   Command = 0xFF
)

var commandNames = map[Command]string{
	CmdFormNetworkRequest:      "FORM_NETWORK_REQUEST",
	CmdUpdateNetworkState:      "UPDATE_NETWORK_STATE",
	CmdRegisterSensorRequest:   "REGISTER_SENSOR_REQUEST",
	CmdNetworkStatusMessage:    "NETWORK_STATUS_MESSAGE",
	CmdMessageQueuedNotify:     "MESSAGE_QUEUED_NOTIFY",
	CmdSensorStatusIndicator:   "SENSOR_STATUS_INDICATOR",
	CmdUnregisterSensorRequest: "UNREGISTER_SENSOR_REQUEST",
	CmdDataMessage:             "DATA_MESSAGE",
	CmdDataMessageDL:           "DATA_MESSAGE_DL",
	CmdReadDataSectorRequest:   "READ_DATASECTOR_REQUEST",
	CmdReadDataSectorResponse:  "READ_DATASECTOR_RESPONSE",
	CmdWriteDataSectorRequest:  "WRITE_DATASECTOR_REQUEST",
	CmdWriteDataSectorResponse: "WRITE_DATASECTOR_RESPONSE",
	CmdAppCommandRequest:       "APPCMD_REQUEST",
	CmdAppCommandResponse:      "APPCMD_RESPONSE",
	CmdError:                   "ERROR",
}

func (obj Command) String() string {
	if name, ok := commandNames[obj]; ok {
		return name
	}
	return fmt.Sprintf("COMMAND(0x%02X)", uint8(obj))
}

// IsLocal reports whether the command belongs to the gateway control plane.
// Local frames carry no sensor id.
func (obj Command) IsLocal() bool {
	switch obj {
	case CmdFormNetworkRequest,
		CmdUpdateNetworkState,
		CmdRegisterSensorRequest,
		CmdNetworkStatusMessage,
		CmdMessageQueuedNotify,
		CmdSensorStatusIndicator,
		CmdUnregisterSensorRequest:
		return true
	}
	return false
}

// Sector addresses one 16 byte configuration page on a sensor
type Sector uint8

const (
	SectorGeneral1 Sector = 24
	SectorGeneral2 Sector = 25
	SectorProfile1 Sector = 28
	SectorProfile2 Sector = 29
)
