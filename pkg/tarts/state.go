package tarts

import (
	"fmt"
	"time"
)

// State of the gateway lifecycle
type State int

const (
	StateUninitialized State = iota
	StateOff
	StateInitialized
	StateStarting
	StateReforming
	StateRemoving
	StateLoading
	StateActivating
	StateActive
)

var stateNames = map[State]string{
	StateUninitialized: "UNINITIALIZED",
	StateOff:           "OFF",
	StateInitialized:   "INITIALIZED",
	StateStarting:      "STARTING",
	StateReforming:     "REFORMING",
	StateRemoving:      "REMOVING",
	StateLoading:       "LOADING",
	StateActivating:    "ACTIVATING",
	StateActive:        "ACTIVE",
}

func (obj State) String() string {
	if name, ok := stateNames[obj]; ok {
		return name
	}
	return fmt.Sprintf("STATE(%d)", int(obj))
}

// lifecycle timings
const (
	offCooldown      = 2000 * time.Millisecond
	firstRetry       = 1000 * time.Millisecond
	secondRetry      = 2000 * time.Millisecond
	giveUp           = 3000 * time.Millisecond
	reformGiveUp     = 20000 * time.Millisecond
	activeKeepalive  = 300000 * time.Millisecond
	queueAckTimeout  = 1000 * time.Millisecond
	startingAnnounce = 500 * time.Millisecond
)

const (
	activeErrorLimit  = 4
	wirelessStateIdle = 0
	wirelessStateUp   = 1
	channelUnassigned = 0xFF
)
