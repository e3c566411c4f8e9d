// Package db - persistence layer
package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alwitt/legacyvault/models"
	"github.com/oklog/ulid/v2"
	"gorm.io/datatypes"
)

// encodeAuditMetadata validate and serialize audit event metadata
func (d *databaseImpl) encodeAuditMetadata(metadata interface{}) (datatypes.JSON, error) {
	if metadata == nil {
		return nil, nil
	}
	if err := d.validator.Struct(metadata); err != nil {
		return nil, fmt.Errorf("audit metadata is not valid [%w]", err)
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("audit metadata serialization failed [%w]", err)
	}
	return datatypes.JSON(encoded), nil
}

// auditEvent append an event to the vault audit trail within the active session
func (d *databaseImpl) auditEvent(
	eventType models.SystemEventTypeENUMType, metadata interface{},
) (models.SystemEventAudit, error) {
	encoded, err := d.encodeAuditMetadata(metadata)
	if err != nil {
		return models.SystemEventAudit{}, fmt.Errorf("audit event '%s' [%w]", eventType, err)
	}

	entry := SystemEventAuditDBEntry{
		SystemEventAudit: models.SystemEventAudit{
			ID: ulid.Make().String(), EventType: eventType, Metadata: encoded,
		},
	}
	if err := d.validator.Struct(&entry); err != nil {
		return models.SystemEventAudit{}, fmt.Errorf(
			"audit event '%s' is not valid [%w]", eventType, err,
		)
	}
	if err := d.db.Create(&entry).Error; err != nil {
		return models.SystemEventAudit{}, fmt.Errorf(
			"audit event '%s' insert failed [%w]", eventType, err,
		)
	}
	return entry.SystemEventAudit, nil
}

/*
RecordSystemEvent append an event to the vault audit trail

	@param ctx context.Context - execution context
	@param eventType models.SystemEventTypeENUMType - event type
	@param metadata interface{} - event metadata, validated before it is stored
	@return the event entry
*/
func (d *databaseImpl) RecordSystemEvent(
	_ context.Context, eventType models.SystemEventTypeENUMType, metadata interface{},
) (models.SystemEventAudit, error) {
	return d.auditEvent(eventType, metadata)
}

/*
ListSystemEvents list the vault audit trail in recording order

	@param ctx context.Context - execution context
	@param filters SystemEventQueryFilter - entry listing filter
	@return list of system events
*/
func (d *databaseImpl) ListSystemEvents(
	_ context.Context, filters SystemEventQueryFilter,
) ([]models.SystemEventAudit, error) {
	query := d.db.Model(&SystemEventAuditDBEntry{})
	if len(filters.EventTypes) > 0 {
		query = query.Where("type in ?", filters.EventTypes)
	}
	if filters.EventsAfter != nil {
		query = query.Where("created_at >= ?", *filters.EventsAfter)
	}
	if filters.EventsBefore != nil {
		query = query.Where("created_at <= ?", *filters.EventsBefore)
	}
	// ulid IDs break ties between events sharing a timestamp
	query = applyListFilter(query, filters.CommonListEntryQueryFilter).
		Order("created_at").Order("id")

	var entries []SystemEventAuditDBEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit events [%w]", err)
	}

	events := make([]models.SystemEventAudit, 0, len(entries))
	for _, entry := range entries {
		events = append(events, entry.SystemEventAudit)
	}
	return events, nil
}
