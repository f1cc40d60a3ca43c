package tarts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// GatewayMessage is an informational gateway event passed to the gateway message callback
type GatewayMessage int

const (
	MsgGatewayRegistered GatewayMessage = iota
	MsgGatewayUnregistered
	MsgUnexpectedGatewayID
	MsgUnregisteredSensor
	MsgStateOff
	MsgStateStarting
	MsgStateReforming
	MsgStateRemoving
	MsgStateLoading
	MsgStateActivating
	MsgStateActive
)

var gatewayMessageText = [...]string{
	MsgGatewayRegistered:   "Gateway Registered",
	MsgGatewayUnregistered: "Gateway Unregistered",
	MsgUnexpectedGatewayID: "Unexpected gateway ID detected!, Check GATEWAY_ID in program.",
	MsgUnregisteredSensor:  "Unregistered sensor traffic detected!",
	MsgStateOff:            "STATE::OFF",
	MsgStateStarting:       "STATE::STARTING",
	MsgStateReforming:      "STATE::REFORMING",
	MsgStateRemoving:       "STATE::REMOVING",
	MsgStateLoading:        "STATE::LOADING",
	MsgStateActivating:     "STATE::ACTIVATING",
	MsgStateActive:         "STATE::ACTIVE",
}

func (obj GatewayMessage) String() string {
	if obj >= 0 && int(obj) < len(gatewayMessageText) {
		return gatewayMessageText[obj]
	}
	return fmt.Sprintf("gateway message %d", int(obj))
}

// Exception is a diagnostic code passed to the log exception callback
type Exception int

const (
	ExGatewayNil Exception = iota
	ExGatewayDuplicateObject
	ExGatewayDuplicateID
	ExGatewayHardwareInit
	ExGatewayCapacity
	ExGatewayListEmpty
	ExGatewayRemoveAlloc
	ExGatewayNotFound
	ExSensorInvalid
	ExSensorDuplicateID
	ExSensorAlreadyRegistered
	ExSensorUnknownGateway
	ExSensorCapacity
	ExSensorRemoveAlloc
	ExSensorRemovalCapacity
	ExUnknownSensorQueued
	ExSensorTypeMismatch
	ExUnknownState
)

var exceptionText = [...]string{
	ExGatewayNil:              "ERROR :: RegisterGateway :: Gateway object is NULL",
	ExGatewayDuplicateObject:  "WARN  :: RegisterGateway :: Duplicate gateway object",
	ExGatewayDuplicateID:      "ERROR :: RegisterGatway :: Identical gateway being registered",
	ExGatewayHardwareInit:     "ERROR :: RegisterGateway :: Hardware failed to initialize",
	ExGatewayCapacity:         "ERROR :: RegisterGateway :: Memory Exception!",
	ExGatewayListEmpty:        "WARN  :: RemoveGateway :: Internal gateway list is empty",
	ExGatewayRemoveAlloc:      "ERROR :: RemoveGateway :: Memory Exception!",
	ExGatewayNotFound:         "WARN  :: RemoveGateway :: Gateway ID not found",
	ExSensorInvalid:           "ERROR :: RegisterSensor :: Sensor object is NULL/INVALID",
	ExSensorDuplicateID:       "ERROR :: RegisterSensor :: Duplicate ID detected",
	ExSensorAlreadyRegistered: "WARN  :: RegisterSensor :: Sensor already registered",
	ExSensorUnknownGateway:    "ERROR :: RegisterSensor :: Invalid gateway ID",
	ExSensorCapacity:          "ERROR :: RegisterSensor :: Memory Exception!",
	ExSensorRemoveAlloc:       "ERROR :: RemoveSensor :: Memory Exception!",
	ExSensorRemovalCapacity:   "ERROR :: RemoveSensor :: Memory Exception2!",
	ExUnknownSensorQueued:     "WARN  :: Process :: Requested sensor ID not recognized",
	ExSensorTypeMismatch:      "WARN  :: Sensor type mismatch!",
	ExUnknownState:            "ERROR :: Process :: Gateway in unknown state",
}

func (obj Exception) String() string {
	if obj >= 0 && int(obj) < len(exceptionText) {
		return exceptionText[obj]
	}
	return fmt.Sprintf("exception %d", int(obj))
}

// Severity maps the exception to a log level
func (obj Exception) Severity() zerolog.Level {
	if strings.HasPrefix(obj.String(), "WARN") {
		return zerolog.WarnLevel
	}
	return zerolog.ErrorLevel
}

var (
	ErrNilGateway      = errors.New("tarts: gateway is nil")
	ErrGatewayIDInUse  = errors.New("tarts: gateway id already registered")
	ErrHardwareInit    = errors.New("tarts: gateway hardware failed to initialize")
	ErrCapacity        = errors.New("tarts: capacity exceeded")
	ErrNoGateways      = errors.New("tarts: no gateways registered")
	ErrGatewayNotFound = errors.New("tarts: gateway not found")
	ErrInvalidSensor   = errors.New("tarts: sensor is nil or has id 0")
	ErrDuplicateID     = errors.New("tarts: another sensor with this id is registered")
	ErrUnknownGateway  = errors.New("tarts: unknown gateway id")
	ErrSensorNotFound  = errors.New("tarts: sensor not found")
)
