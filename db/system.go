package db

import (
	"context"
	"fmt"
	"time"

	"github.com/alwitt/legacyvault/models"
)

// GlobalSystemParamEntryID ID of the singleton system parameter entry
const GlobalSystemParamEntryID = "system-parameters"

// stateChangeEvents audit event recorded when the vault enters a state
var stateChangeEvents = map[models.SystemStateENUMType]models.SystemEventTypeENUMType{
	models.SystemStateInit:    models.SystemEventTypeInitializing,
	models.SystemStateRunning: models.SystemEventTypeInitialized,
}

// loadSystemParams read the singleton vault parameter row, creating it on first use
func (d *databaseImpl) loadSystemParams() (SystemParamsDBEntry, error) {
	var entries []SystemParamsDBEntry
	if err := d.db.Where("id = ?", GlobalSystemParamEntryID).Find(&entries).Error; err != nil {
		return SystemParamsDBEntry{}, fmt.Errorf("failed to read system params table [%w]", err)
	}
	if len(entries) > 0 {
		return entries[0], nil
	}

	entry := SystemParamsDBEntry{
		SystemParams: models.SystemParams{
			ID: GlobalSystemParamEntryID, State: models.SystemStatePreInit,
		},
	}
	if err := d.db.Create(&entry).Error; err != nil {
		return SystemParamsDBEntry{}, fmt.Errorf("failed to create system params entry [%w]", err)
	}
	return entry, nil
}

/*
GetSystemParamEntry fetch the vault's system parameters

	@param ctx context.Context - execution context
	@returns the entry
*/
func (d *databaseImpl) GetSystemParamEntry(_ context.Context) (models.SystemParams, error) {
	entry, err := d.loadSystemParams()
	return entry.SystemParams, err
}

// moveToState change the vault state, auditing the first entry into each state
func (d *databaseImpl) moveToState(newState models.SystemStateENUMType) error {
	entry, err := d.loadSystemParams()
	if err != nil {
		return err
	}
	if entry.State == newState {
		return nil
	}
	if err := entry.ValidateNextState(newState); err != nil {
		return err
	}

	if err := d.db.Model(&entry).Update("state", newState).Error; err != nil {
		return fmt.Errorf("failed to store vault state '%s' [%w]", newState, err)
	}

	if eventType, ok := stateChangeEvents[newState]; ok {
		if _, err := d.auditEvent(eventType, nil); err != nil {
			return fmt.Errorf("failed to audit vault state '%s' [%w]", newState, err)
		}
	}
	return nil
}

// MarkSystemInitializing mark the vault as starting for the first time
func (d *databaseImpl) MarkSystemInitializing(_ context.Context) error {
	return d.moveToState(models.SystemStateInit)
}

// MarkSystemInitialized mark the vault as running
func (d *databaseImpl) MarkSystemInitialized(_ context.Context) error {
	return d.moveToState(models.SystemStateRunning)
}

/*
RecordSweepCompleted record a completed condition sweep

	@param ctx context.Context - execution context
	@param sweepTime time.Time - the sweep reference time
*/
func (d *databaseImpl) RecordSweepCompleted(_ context.Context, sweepTime time.Time) error {
	entry, err := d.loadSystemParams()
	if err != nil {
		return err
	}

	if err := d.db.Model(&entry).Updates(map[string]interface{}{
		"last_sweep_at":    sweepTime,
		"sweeps_completed": entry.SweepsCompleted + 1,
	}).Error; err != nil {
		return fmt.Errorf("failed to record sweep completion [%w]", err)
	}
	return nil
}
