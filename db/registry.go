package db

import (
	"context"
	"fmt"

	"github.com/alwitt/legacyvault/models"
	"gorm.io/gorm/clause"
)

// ======================================================================================
// Policy registries

/*
RegisterPrincipalPolicy link a principal to a policy under a role. Registering an
existing link is a no-op.

	@param ctx context.Context - execution context
	@param role models.RegistryRoleENUMType - the principal's role
	@param principal string - the principal
	@param policyID string - the policy ID
*/
func (d *databaseImpl) RegisterPrincipalPolicy(
	_ context.Context, role models.RegistryRoleENUMType, principal string, policyID string,
) error {
	newEntry := RegistryDBEntry{
		RegistryEntry: models.RegistryEntry{Role: role, Principal: principal, PolicyID: policyID},
	}

	if err := d.validator.Struct(&newEntry); err != nil {
		return fmt.Errorf(
			"registry entry %s -> %s (%s) is not valid [%w]", principal, policyID, role, err,
		)
	}

	if tmp := d.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&newEntry); tmp.Error != nil {
		return fmt.Errorf(
			"registry entry %s -> %s (%s) insert failed [%w]", principal, policyID, role, tmp.Error,
		)
	}

	return nil
}

/*
DeregisterPrincipalPolicy unlink a principal from a policy. Removing a missing link
is a no-op.

	@param ctx context.Context - execution context
	@param role models.RegistryRoleENUMType - the principal's role
	@param principal string - the principal
	@param policyID string - the policy ID
*/
func (d *databaseImpl) DeregisterPrincipalPolicy(
	_ context.Context, role models.RegistryRoleENUMType, principal string, policyID string,
) error {
	if tmp := d.db.
		Where("role = ? AND principal = ? AND policy_id = ?", role, principal, policyID).
		Delete(&RegistryDBEntry{}); tmp.Error != nil {
		return fmt.Errorf(
			"registry entry %s -> %s (%s) delete failed [%w]", principal, policyID, role, tmp.Error,
		)
	}
	return nil
}

/*
ListPrincipalPolicies list IDs of the policies a principal takes part in under a role

	@param ctx context.Context - execution context
	@param role models.RegistryRoleENUMType - the principal's role
	@param principal string - the principal
	@returns policy IDs
*/
func (d *databaseImpl) ListPrincipalPolicies(
	ctx context.Context, role models.RegistryRoleENUMType, principal string,
) ([]string, error) {
	entries, err := d.ListRegistryEntries(ctx, RegistryQueryFilter{
		TargetRole: &role, TargetPrincipal: &principal,
	})
	if err != nil {
		return nil, err
	}

	result := []string{}
	for _, entry := range entries {
		result = append(result, entry.PolicyID)
	}
	return result, nil
}

/*
ListRegistryEntries list registry entries

	@param ctx context.Context - execution context
	@param filters RegistryQueryFilter - entry listing filter
	@returns registry entries
*/
func (d *databaseImpl) ListRegistryEntries(
	_ context.Context, filters RegistryQueryFilter,
) ([]models.RegistryEntry, error) {
	query := d.db.Model(&RegistryDBEntry{})

	if filters.TargetRole != nil {
		query = query.Where("role = ?", *filters.TargetRole)
	}
	if filters.TargetPrincipal != nil {
		query = query.Where("principal = ?", *filters.TargetPrincipal)
	}
	if filters.TargetPolicyID != nil {
		query = query.Where("policy_id = ?", *filters.TargetPolicyID)
	}

	query = applyListFilter(query, filters.CommonListEntryQueryFilter)

	query = query.Order("created_at").Order("policy_id")

	var entries []RegistryDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list registry entries [%w]", tmp.Error)
	}

	result := []models.RegistryEntry{}
	for _, entry := range entries {
		result = append(result, entry.RegistryEntry)
	}

	return result, nil
}

/*
ClearRegistry remove every registry entry of a role

	@param ctx context.Context - execution context
	@param role models.RegistryRoleENUMType - the role to clear
*/
func (d *databaseImpl) ClearRegistry(_ context.Context, role models.RegistryRoleENUMType) error {
	if tmp := d.db.Where("role = ?", role).Delete(&RegistryDBEntry{}); tmp.Error != nil {
		return fmt.Errorf("failed to clear %s registry [%w]", role, tmp.Error)
	}
	return nil
}
