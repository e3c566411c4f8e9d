package models

import "time"

// RegistryRoleENUMType the role a principal plays in a policy
type RegistryRoleENUMType string

const (
	// RegistryRoleBeneficiary principal is a policy beneficiary
	RegistryRoleBeneficiary RegistryRoleENUMType = "BENEFICIARY"
	// RegistryRoleValidator principal is a validator in one of the policy conditions
	RegistryRoleValidator RegistryRoleENUMType = "VALIDATOR"
)

// RegistryEntry one reverse index entry linking a principal to a policy it takes part in
type RegistryEntry struct {
	// Role the principal's role in the policy
	Role RegistryRoleENUMType `json:"role" gorm:"column:role;primaryKey" validate:"required,registry_role"`
	// Principal the beneficiary or validator principal
	Principal string `json:"principal" gorm:"column:principal;primaryKey" validate:"required"`
	// PolicyID the policy
	PolicyID string `json:"policy_id" gorm:"column:policy_id;primaryKey;index" validate:"required,uuid_rfc4122"`
	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
}
