package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
)

// SystemEventTypeENUMType system event type ENUM value type
type SystemEventTypeENUMType string

const (
	// SystemEventTypeInitializing system is being initialized
	SystemEventTypeInitializing SystemEventTypeENUMType = "SYSTEM_INITIALIZING"

	// SystemEventTypeInitialized system is initialized
	SystemEventTypeInitialized SystemEventTypeENUMType = "SYSTEM_INITIALIZED"

	// SystemEventTypeUserRegistered new user registered
	SystemEventTypeUserRegistered SystemEventTypeENUMType = "USER_REGISTERED"

	// SystemEventTypeUserDeleted user record deleted
	SystemEventTypeUserDeleted SystemEventTypeENUMType = "USER_DELETED"

	// SystemEventTypeSecretAdded new secret stored
	SystemEventTypeSecretAdded SystemEventTypeENUMType = "SECRET_ADDED"

	// SystemEventTypeSecretDeleted secret deleted
	SystemEventTypeSecretDeleted SystemEventTypeENUMType = "SECRET_DELETED"

	// SystemEventTypePolicyCreated new policy created
	SystemEventTypePolicyCreated SystemEventTypeENUMType = "POLICY_CREATED"

	// SystemEventTypePolicyUpdated policy updated by its owner
	SystemEventTypePolicyUpdated SystemEventTypeENUMType = "POLICY_UPDATED"

	// SystemEventTypePolicyDeleted policy deleted
	SystemEventTypePolicyDeleted SystemEventTypeENUMType = "POLICY_DELETED"

	// SystemEventTypeValidatorVoted validator cast a vote on a policy
	SystemEventTypeValidatorVoted SystemEventTypeENUMType = "VALIDATOR_VOTED"

	// SystemEventTypePolicyUnlocked policy conditions are met
	SystemEventTypePolicyUnlocked SystemEventTypeENUMType = "POLICY_UNLOCKED"

	// SystemEventTypeSweepCompleted periodic condition sweep completed
	SystemEventTypeSweepCompleted SystemEventTypeENUMType = "SWEEP_COMPLETED"
)

// SystemEventAudit recording of events occurring at the system level
type SystemEventAudit struct {
	// ID audit entry ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required"`
	// EventType system event type
	EventType SystemEventTypeENUMType `json:"type" gorm:"column:type;not null" validate:"required,system_event_type"`
	// Metadata a metadata relating to the event
	Metadata datatypes.JSON `json:"metadata,omitempty" gorm:"column:metadata;default:null"`
	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// ParseMetadata parse the metadata based on the event type
func (a SystemEventAudit) ParseMetadata(validator *validator.Validate) (interface{}, error) {
	var parsed interface{}
	switch a.EventType {
	case SystemEventTypeUserRegistered:
		fallthrough
	case SystemEventTypeUserDeleted:
		parsed = &SystemEventUserRelated{}

	case SystemEventTypeSecretAdded:
		fallthrough
	case SystemEventTypeSecretDeleted:
		parsed = &SystemEventSecretRelated{}

	case SystemEventTypePolicyCreated:
		fallthrough
	case SystemEventTypePolicyUpdated:
		fallthrough
	case SystemEventTypePolicyDeleted:
		fallthrough
	case SystemEventTypePolicyUnlocked:
		parsed = &SystemEventPolicyRelated{}

	case SystemEventTypeValidatorVoted:
		parsed = &SystemEventVoteRelated{}

	case SystemEventTypeSweepCompleted:
		parsed = &SystemEventSweepRelated{}

	default:
		return nil, nil
	}

	if err := json.Unmarshal(a.Metadata, parsed); err != nil {
		return nil, fmt.Errorf("system event '%s' metadata parse failed [%w]", a.EventType, err)
	}
	return parsed, validator.Struct(parsed)
}

// SystemEventUserRelated system event metadata related to a user
type SystemEventUserRelated struct {
	// UserID the user principal
	UserID string `json:"user_id" validate:"required"`
}

// SystemEventSecretRelated system event metadata related to a secret
type SystemEventSecretRelated struct {
	// SecretID the secret ID
	SecretID string `json:"secret_id" validate:"required,uuid_rfc4122"`
	// Owner the secret owner
	Owner string `json:"owner" validate:"required"`
}

// SystemEventPolicyRelated system event metadata related to a policy
type SystemEventPolicyRelated struct {
	// PolicyID the policy ID
	PolicyID string `json:"policy_id" validate:"required,uuid_rfc4122"`
	// Owner the policy owner
	Owner string `json:"owner" validate:"required"`
}

// SystemEventVoteRelated system event metadata related to a validator vote
type SystemEventVoteRelated struct {
	// PolicyID the policy ID
	PolicyID string `json:"policy_id" validate:"required,uuid_rfc4122"`
	// Validator the voting validator
	Validator string `json:"validator" validate:"required"`
	// Vote the vote cast
	Vote bool `json:"vote"`
}

// SystemEventSweepRelated system event metadata related to a condition sweep
type SystemEventSweepRelated struct {
	// PoliciesExamined number of policies evaluated
	PoliciesExamined int `json:"policies_examined"`
	// ConditionsTriggered number of conditions which became true
	ConditionsTriggered int `json:"conditions_triggered"`
	// PoliciesUnlocked number of policies which became unlocked
	PoliciesUnlocked int `json:"policies_unlocked"`
}
