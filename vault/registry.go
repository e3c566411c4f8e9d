package vault

import (
	"context"
	"fmt"

	"github.com/alwitt/legacyvault/db"
	"github.com/alwitt/legacyvault/models"
)

// setDelta compute the entries only present in old, and only present in new
func setDelta(oldSet []string, newSet []string) (removed []string, added []string) {
	oldLookup := map[string]bool{}
	for _, entry := range oldSet {
		oldLookup[entry] = true
	}
	newLookup := map[string]bool{}
	for _, entry := range newSet {
		newLookup[entry] = true
	}
	for _, entry := range oldSet {
		if !newLookup[entry] {
			removed = append(removed, entry)
			// Guard against duplicates in the input
			newLookup[entry] = true
		}
	}
	for _, entry := range newSet {
		if !oldLookup[entry] {
			added = append(added, entry)
			oldLookup[entry] = true
		}
	}
	return removed, added
}

// applyRegistryDelta bring the registry of one role in line with a policy's new principals
func applyRegistryDelta(
	ctx context.Context,
	dbClient db.Database,
	role models.RegistryRoleENUMType,
	policyID string,
	oldPrincipals []string,
	newPrincipals []string,
) error {
	removed, added := setDelta(oldPrincipals, newPrincipals)
	for _, principal := range removed {
		if err := dbClient.DeregisterPrincipalPolicy(ctx, role, principal, policyID); err != nil {
			return fmt.Errorf("failed to deregister %s from policy %s [%w]", principal, policyID, err)
		}
	}
	for _, principal := range added {
		if err := dbClient.RegisterPrincipalPolicy(ctx, role, principal, policyID); err != nil {
			return fmt.Errorf("failed to register %s with policy %s [%w]", principal, policyID, err)
		}
	}
	return nil
}

/*
reconcileRegistries update both registries so they mirror the new state of a policy

	@param ctx context.Context - execution context
	@param dbClient db.Database - active transaction
	@param oldPolicy models.Policy - the policy before the change
	@param newPolicy models.Policy - the policy after the change
*/
func reconcileRegistries(
	ctx context.Context, dbClient db.Database, oldPolicy models.Policy, newPolicy models.Policy,
) error {
	if err := applyRegistryDelta(
		ctx,
		dbClient,
		models.RegistryRoleBeneficiary,
		newPolicy.ID,
		oldPolicy.Beneficiaries,
		newPolicy.Beneficiaries,
	); err != nil {
		return err
	}
	return applyRegistryDelta(
		ctx,
		dbClient,
		models.RegistryRoleValidator,
		newPolicy.ID,
		oldPolicy.ValidatorPrincipals(),
		newPolicy.ValidatorPrincipals(),
	)
}

/*
RebuildRegistries re-derive the beneficiary and validator registries from the stored
policies

	@param ctx context.Context - execution context
*/
func (v *vaultImpl) RebuildRegistries(ctx context.Context) error {
	if dbErr := v.serialized(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		for _, role := range []models.RegistryRoleENUMType{
			models.RegistryRoleBeneficiary, models.RegistryRoleValidator,
		} {
			if err := dbClient.ClearRegistry(dbCtx, role); err != nil {
				return err
			}
		}

		policies, err := dbClient.ListPolicies(dbCtx, db.PolicyQueryFilter{})
		if err != nil {
			return err
		}
		for _, policy := range policies {
			if err := reconcileRegistries(dbCtx, dbClient, models.Policy{}, policy); err != nil {
				return err
			}
		}
		return nil
	}); dbErr != nil {
		return fmt.Errorf("failed to rebuild policy registries [%w]", dbErr)
	}
	return nil
}
