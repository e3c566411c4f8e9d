// Package models - vault data models
package models

import (
	"fmt"
	"time"
)

// SystemStateENUMType vault operating state ENUM
type SystemStateENUMType string

const (
	// SystemStatePreInit vault tables exist but the vault never started
	SystemStatePreInit SystemStateENUMType = "PRE_INITIALIZATION"
	// SystemStateInit vault is starting for the first time
	SystemStateInit SystemStateENUMType = "INITIALIZING"
	// SystemStateRunning vault accepts user, secret, and policy operations
	SystemStateRunning SystemStateENUMType = "RUNNING"
)

// vaultStateTransitions allowed next states per vault state. Staying put is always allowed.
var vaultStateTransitions = map[SystemStateENUMType]SystemStateENUMType{
	SystemStatePreInit: SystemStateInit,
	SystemStateInit:    SystemStateRunning,
}

// SystemParams vault wide bookkeeping, stored as a singleton row
type SystemParams struct {
	// ID param entry ID. It must always be system-parameters
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required,oneof=system-parameters"`

	// State vault operating state
	State SystemStateENUMType `json:"state" gorm:"column:state;not null" validate:"required,system_state"`

	// LastSweepAt reference time of the last completed condition sweep
	LastSweepAt *time.Time `json:"last_sweep_at,omitempty" gorm:"column:last_sweep_at;default:null"`
	// SweepsCompleted number of condition sweeps completed so far
	SweepsCompleted uint64 `json:"sweeps_completed" gorm:"column:sweeps_completed;not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsRunning whether the vault completed its first start
func (p SystemParams) IsRunning() bool {
	return p.State == SystemStateRunning
}

// ValidateNextState verify the vault can move to a new state
func (p SystemParams) ValidateNextState(newState SystemStateENUMType) error {
	if newState == p.State {
		return nil
	}
	if next, ok := vaultStateTransitions[p.State]; ok && next == newState {
		return nil
	}
	return fmt.Errorf("vault can't move from state '%s' to '%s'", p.State, newState)
}
