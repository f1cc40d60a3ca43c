package gwapi

import (
	"encoding/binary"
	"fmt"
)

const PageSize = 16

func putID(buf []byte, id uint32) {
	binary.LittleEndian.PutUint32(buf, id)
}

// IdleRequest puts the radio network into the idle state and triggers a status report
func IdleRequest() Frame {
	f, _ := Build(CmdUpdateNetworkState, NoOpts, make([]byte, 5))
	return f
}

// ActiveRequest asks the radio to open the network for sensor traffic
func ActiveRequest() Frame {
	f, _ := Build(CmdUpdateNetworkState, NoOpts, []byte{1, 0, 0, 0, 0})
	return f
}

// ReformRequest re-forms the network on one of the channels allowed by mask
func ReformRequest(channelMask uint32) Frame {
	buf := make([]byte, 5)
	putID(buf, channelMask)
	f, _ := Build(CmdFormNetworkRequest, NoOpts, buf)
	return f
}

func AssignSensorRequest(sensorID uint32) Frame {
	buf := make([]byte, 4)
	putID(buf, sensorID)
	f, _ := Build(CmdRegisterSensorRequest, NoOpts, buf)
	return f
}

func RemoveSensorRequest(sensorID uint32) Frame {
	buf := make([]byte, 4)
	putID(buf, sensorID)
	f, _ := Build(CmdUnregisterSensorRequest, NoOpts, buf)
	return f
}

// QueuedNotifyRequest sets or clears the radio side message-waiting flag for a sensor
func QueuedNotifyRequest(sensorID uint32, set bool) Frame {
	buf := make([]byte, 5)
	putID(buf, sensorID)
	if set {
		buf[4] = 1
	}
	f, _ := Build(CmdMessageQueuedNotify, NoOpts, buf)
	return f
}

func ConfigWriteRequest(sensorID uint32, sector Sector, page [PageSize]byte) Frame {
	buf := make([]byte, 5+PageSize)
	putID(buf, sensorID)
	buf[4] = byte(sector)
	copy(buf[5:], page[:])
	f, _ := Build(CmdWriteDataSectorRequest, NoOpts, buf)
	return f
}

func ConfigReadRequest(sensorID uint32, sector Sector) Frame {
	buf := make([]byte, 5)
	putID(buf, sensorID)
	buf[4] = byte(sector)
	f, _ := Build(CmdReadDataSectorRequest, NoOpts, buf)
	return f
}

// AppCommandRequest wraps a sensor application command. Urgent commands are
// delivered without waiting for the sensor's next check-in.
func AppCommandRequest(sensorID uint32, data []byte, urgent bool) (Frame, error) {
	buf := make([]byte, 4+len(data))
	putID(buf, sensorID)
	copy(buf[4:], data)
	opt := NoOpts
	if urgent {
		opt = Urgent
	}
	f, err := Build(CmdAppCommandRequest, opt, buf)
	if err != nil {
		return f, fmt.Errorf("failed to build application command: %w", err)
	}
	return f, nil
}
