package system

import (
	"fmt"
	"slices"
)

// SystemState is the lifecycle phase reported by /system/status.
type SystemState int

const (
	StateInitializing SystemState = iota
	StateRunning
	StateStopping
	StateStopped
	StateError
)

var stateNames = [...]string{
	StateInitializing: "INITIALIZING",
	StateRunning:      "RUNNING",
	StateStopping:     "STOPPING",
	StateStopped:      "STOPPED",
	StateError:        "ERROR",
}

func (s SystemState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// A start that fails midway goes to ERROR; shutdown is allowed from any
// active state.
var validTransitions = map[SystemState][]SystemState{
	StateInitializing: {StateRunning, StateStopping, StateError},
	StateRunning:      {StateStopping, StateError},
	StateStopping:     {StateStopped, StateError},
	StateStopped:      {StateInitializing},
	StateError:        {StateInitializing, StateStopping, StateStopped},
}

func ValidateTransition(from, to SystemState) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("invalid current state: %s", from)
	}
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid state transition: %s -> %s", from, to)
	}
	return nil
}
