package db

import (
	"context"
	"fmt"

	"github.com/alwitt/legacyvault/models"
)

// ======================================================================================
// Policies

// normalizePolicy replace nil collections so they are stored as empty JSON values
func normalizePolicy(policy models.Policy) models.Policy {
	if policy.Beneficiaries == nil {
		policy.Beneficiaries = []string{}
	}
	if policy.Secrets == nil {
		policy.Secrets = []string{}
	}
	if policy.KeyBox == nil {
		policy.KeyBox = map[string][]byte{}
	}
	if policy.Conditions == nil {
		policy.Conditions = []models.Condition{}
	}
	return policy
}

// validatePolicyEntry validate a policy including the shape of each condition
func (d *databaseImpl) validatePolicyEntry(entry *PolicyDBEntry) error {
	if err := d.validator.Struct(entry); err != nil {
		return err
	}
	for idx, cond := range entry.Conditions {
		if err := cond.CheckShape(); err != nil {
			return fmt.Errorf("condition %d is malformed [%w]", idx, err)
		}
	}
	return nil
}

/*
DefineNewPolicy insert a new policy

	@param ctx context.Context - execution context
	@param policy models.Policy - the new policy
	@returns the stored policy
*/
func (d *databaseImpl) DefineNewPolicy(
	_ context.Context, policy models.Policy,
) (models.Policy, error) {
	newEntry := PolicyDBEntry{Policy: normalizePolicy(policy)}

	if err := d.validatePolicyEntry(&newEntry); err != nil {
		return models.Policy{}, fmt.Errorf("new policy %s is not valid [%w]", policy.ID, err)
	}

	exists, err := d.entryExists(&PolicyDBEntry{}, policy.ID)
	if err != nil {
		return models.Policy{}, fmt.Errorf("failed to check for policy %s [%w]", policy.ID, err)
	}
	if exists {
		return models.Policy{}, fmt.Errorf("policy %s %w", policy.ID, ErrAlreadyExists)
	}

	if tmp := d.db.Create(&newEntry); tmp.Error != nil {
		return models.Policy{}, fmt.Errorf(
			"new policy %s failed insert [%w]", policy.ID, tmp.Error,
		)
	}

	// Record this event
	if _, err := d.auditEvent(
		models.SystemEventTypePolicyCreated,
		models.SystemEventPolicyRelated{PolicyID: policy.ID, Owner: policy.Owner},
	); err != nil {
		return models.Policy{}, fmt.Errorf(
			"failed to log create policy %s audit event [%w]", policy.ID, err,
		)
	}

	return newEntry.Policy, nil
}

// getPolicyEntry find a policy by ID
func (d *databaseImpl) getPolicyEntry(policyID string) (PolicyDBEntry, error) {
	var entry PolicyDBEntry
	err := d.db.Where("id = ?", policyID).First(&entry).Error
	return entry, wrapLookupErr(err)
}

/*
GetPolicy fetch a policy

	@param ctx context.Context - execution context
	@param policyID string - the policy ID
	@returns the policy
*/
func (d *databaseImpl) GetPolicy(_ context.Context, policyID string) (models.Policy, error) {
	entry, err := d.getPolicyEntry(policyID)
	if err != nil {
		return models.Policy{}, fmt.Errorf("failed to fetch policy %s [%w]", policyID, err)
	}
	return entry.Policy, nil
}

/*
ListPolicies list policies

	@param ctx context.Context - execution context
	@param filters PolicyQueryFilter - entry listing filter
	@returns list of policies
*/
func (d *databaseImpl) ListPolicies(
	_ context.Context, filters PolicyQueryFilter,
) ([]models.Policy, error) {
	query := d.db.Model(&PolicyDBEntry{})

	if filters.TargetOwner != nil {
		query = query.Where("owner = ?", *filters.TargetOwner)
	}
	if filters.TargetIDs != nil {
		query = query.Where("id in ?", filters.TargetIDs)
	}

	query = applyListFilter(query, filters.CommonListEntryQueryFilter)

	query = query.Order("created_at").Order("id")

	var entries []PolicyDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list policies [%w]", tmp.Error)
	}

	result := []models.Policy{}
	for _, entry := range entries {
		result = append(result, entry.Policy)
	}

	return result, nil
}

/*
UpdatePolicy replace an existing policy

	@param ctx context.Context - execution context
	@param policy models.Policy - the new policy state
	@returns the stored policy
*/
func (d *databaseImpl) UpdatePolicy(
	_ context.Context, policy models.Policy,
) (models.Policy, error) {
	entry, err := d.getPolicyEntry(policy.ID)
	if err != nil {
		return models.Policy{}, fmt.Errorf("failed to fetch policy %s [%w]", policy.ID, err)
	}

	updated := PolicyDBEntry{Policy: normalizePolicy(policy)}
	updated.CreatedAt = entry.CreatedAt
	if err := d.validatePolicyEntry(&updated); err != nil {
		return models.Policy{}, fmt.Errorf("updated policy %s is not valid [%w]", policy.ID, err)
	}

	if tmp := d.db.Save(&updated); tmp.Error != nil {
		return models.Policy{}, fmt.Errorf(
			"failed to update policy %s [%w]", policy.ID, tmp.Error,
		)
	}

	return updated.Policy, nil
}

/*
DeletePolicy delete a policy. Registry entries are not touched.

	@param ctx context.Context - execution context
	@param policyID string - the policy ID
	@returns the deleted policy
*/
func (d *databaseImpl) DeletePolicy(_ context.Context, policyID string) (models.Policy, error) {
	entry, err := d.getPolicyEntry(policyID)
	if err != nil {
		return models.Policy{}, fmt.Errorf("failed to fetch policy %s [%w]", policyID, err)
	}

	if tmp := d.db.Delete(&entry); tmp.Error != nil {
		return models.Policy{}, fmt.Errorf("failed to delete policy %s [%w]", policyID, tmp.Error)
	}

	// Record this event
	if _, err := d.auditEvent(
		models.SystemEventTypePolicyDeleted,
		models.SystemEventPolicyRelated{PolicyID: policyID, Owner: entry.Owner},
	); err != nil {
		return models.Policy{}, fmt.Errorf(
			"failed to log delete policy %s audit event [%w]", policyID, err,
		)
	}

	return entry.Policy, nil
}
