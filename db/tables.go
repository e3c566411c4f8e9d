package db

import (
	"context"

	"github.com/alwitt/legacyvault/models"
	"gorm.io/gorm"
)

// AllTables one instance of every DB entry type, in migration order
func AllTables() []interface{} {
	return []interface{}{
		&SystemEventAuditDBEntry{},
		&SystemParamsDBEntry{},
		&UserDBEntry{},
		&SecretDBEntry{},
		&PolicyDBEntry{},
		&RegistryDBEntry{},
	}
}

// DefineTables create or update the vault tables with GORM auto-migration
//
// Production deployments should apply the schema generated by utils/atlas-migrate instead.
func DefineTables(_ context.Context, db *gorm.DB) error {
	return db.AutoMigrate(AllTables()...)
}

// --------------------------------------------------------------------------------------
// System audit events

// SystemEventAuditDBEntry system audit event DB entry
type SystemEventAuditDBEntry struct {
	models.SystemEventAudit
}

// TableName hard code table name
func (SystemEventAuditDBEntry) TableName() string {
	return "system_audit_events"
}

// --------------------------------------------------------------------------------------
// System parameters

// SystemParamsDBEntry system parameters DB entry
type SystemParamsDBEntry struct {
	models.SystemParams
}

// TableName hard code table name
func (SystemParamsDBEntry) TableName() string {
	return "system_params"
}

// --------------------------------------------------------------------------------------
// Users

// UserDBEntry user DB entry
type UserDBEntry struct {
	models.User
}

// TableName hard code table name
func (UserDBEntry) TableName() string {
	return "users"
}

// --------------------------------------------------------------------------------------
// Secrets

// SecretDBEntry secret DB entry
type SecretDBEntry struct {
	models.Secret
}

// TableName hard code table name
func (SecretDBEntry) TableName() string {
	return "secrets"
}

// --------------------------------------------------------------------------------------
// Policies

// PolicyDBEntry policy DB entry
type PolicyDBEntry struct {
	models.Policy
}

// TableName hard code table name
func (PolicyDBEntry) TableName() string {
	return "policies"
}

// RegistryDBEntry policy registry DB entry
//
// No foreign key to the policy table. The vault service keeps the registry in step with
// the policies.
type RegistryDBEntry struct {
	models.RegistryEntry
}

// TableName hard code table name
func (RegistryDBEntry) TableName() string {
	return "policy_registry"
}
