package models

import (
	"reflect"

	"github.com/go-playground/validator/v10"
)

/*
RegisterWithValidator register with the validator this custom validation support

	@param v *validator.Validate - the validator to register against
	@return whether successful
*/
func RegisterWithValidator(v *validator.Validate) error {
	customValidations := map[string]validator.Func{
		"system_state":      validateSystemStateType,
		"system_event_type": validateSystemEventType,
		"condition_type":    validateConditionType,
		"logical_operator":  validateLogicalOperator,
		"secret_category":   validateSecretCategory,
		"registry_role":     validateRegistryRole,
	}
	for tag, fn := range customValidations {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

func validateSystemStateType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch SystemStateENUMType(fl.Field().String()) {
	case SystemStatePreInit:
		fallthrough
	case SystemStateInit:
		fallthrough
	case SystemStateRunning:
		return true
	}
	return false
}

func validateSystemEventType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch SystemEventTypeENUMType(fl.Field().String()) {
	case SystemEventTypeInitializing:
		fallthrough
	case SystemEventTypeInitialized:
		fallthrough
	case SystemEventTypeUserRegistered:
		fallthrough
	case SystemEventTypeUserDeleted:
		fallthrough
	case SystemEventTypeSecretAdded:
		fallthrough
	case SystemEventTypeSecretDeleted:
		fallthrough
	case SystemEventTypePolicyCreated:
		fallthrough
	case SystemEventTypePolicyUpdated:
		fallthrough
	case SystemEventTypePolicyDeleted:
		fallthrough
	case SystemEventTypeValidatorVoted:
		fallthrough
	case SystemEventTypePolicyUnlocked:
		fallthrough
	case SystemEventTypeSweepCompleted:
		return true
	}
	return false
}

func validateConditionType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch ConditionTypeENUMType(fl.Field().String()) {
	case ConditionTypeLastLogin:
		fallthrough
	case ConditionTypeFixedDateTime:
		fallthrough
	case ConditionTypeXOutOfY:
		return true
	}
	return false
}

func validateLogicalOperator(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch LogicalOperatorENUMType(fl.Field().String()) {
	case LogicalOperatorAnd:
		fallthrough
	case LogicalOperatorOr:
		return true
	}
	return false
}

func validateSecretCategory(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch SecretCategoryENUMType(fl.Field().String()) {
	case SecretCategoryPassword:
		fallthrough
	case SecretCategoryNote:
		fallthrough
	case SecretCategoryDocument:
		return true
	}
	return false
}

func validateRegistryRole(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch RegistryRoleENUMType(fl.Field().String()) {
	case RegistryRoleBeneficiary:
		fallthrough
	case RegistryRoleValidator:
		return true
	}
	return false
}
