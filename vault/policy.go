package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alwitt/legacyvault/db"
	"github.com/alwitt/legacyvault/models"
	"github.com/apex/log"
	"github.com/google/uuid"
)

/*
CreatePolicy define a new empty policy owned by the caller

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param params PolicyCreateParams - policy parameters
	@returns the new policy
*/
func (v *vaultImpl) CreatePolicy(
	ctx context.Context, caller string, params PolicyCreateParams,
) (models.Policy, error) {
	var policy models.Policy
	if dbErr := v.serialized(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		owner, err := dbClient.GetUser(dbCtx, caller)
		if err != nil {
			return translateLookupErr(err, ErrUserDoesNotExist)
		}

		policy, err = dbClient.DefineNewPolicy(dbCtx, models.Policy{
			ID:                        uuid.NewString(),
			Name:                      params.Name,
			Owner:                     caller,
			ConditionsLogicalOperator: models.LogicalOperatorAnd,
		})
		if err != nil {
			return err
		}

		owner.PolicyIDs = append(owner.PolicyIDs, policy.ID)
		_, err = dbClient.UpdateUser(dbCtx, owner)
		return err
	}); dbErr != nil {
		return models.Policy{}, fmt.Errorf("failed to create policy for '%s' [%w]", caller, dbErr)
	}
	return policy, nil
}

// getOwnedPolicy fetch a policy and verify the caller owns it
func getOwnedPolicy(
	ctx context.Context, dbClient db.Database, caller string, policyID string,
) (models.Policy, error) {
	policy, err := dbClient.GetPolicy(ctx, policyID)
	if err != nil {
		return models.Policy{}, translateLookupErr(err, ErrPolicyDoesNotExist)
	}
	if policy.Owner != caller {
		return models.Policy{}, fmt.Errorf(
			"%w: '%s' does not own policy %s", ErrUnauthorized, caller, policyID,
		)
	}
	return policy, nil
}

// uniqueStrings drop duplicates while keeping the first occurrence order
func uniqueStrings(values []string) []string {
	seen := map[string]bool{}
	result := []string{}
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}

/*
mergeConditions build the conditions to store from the requested conditions.

Requested conditions are matched with the stored ones by ID. A matching condition of the
same type keeps the stored votes of validators still listed, and keeps its stored status
only if its gate parameters are unchanged. Every other condition starts unmet with no
votes. An X_OUT_OF_Y status always follows its vote tally.
*/
func mergeConditions(
	stored []models.Condition, requested []models.Condition,
) ([]models.Condition, error) {
	storedByID := map[string]models.Condition{}
	for _, cond := range stored {
		storedByID[cond.GetID()] = cond
	}

	result := make([]models.Condition, 0, len(requested))
	seenIDs := map[string]bool{}
	for idx, req := range requested {
		cond := models.CloneCondition(req)
		if cond.GetID() == "" {
			cond.SetID(uuid.NewString())
		}
		if err := cond.CheckShape(); err != nil {
			return nil, fmt.Errorf("%w: condition %d [%w]", ErrInvalidRequest, idx, err)
		}
		if seenIDs[cond.GetID()] {
			return nil, fmt.Errorf(
				"%w: condition ID %s used more than once", ErrInvalidRequest, cond.GetID(),
			)
		}
		seenIDs[cond.GetID()] = true

		// Unmet with no votes unless carried over below
		cond.SetStatus(false)
		if cond.XOutOfY != nil {
			for vIdx := range cond.XOutOfY.Validators {
				cond.XOutOfY.Validators[vIdx].Vote = false
			}
		}

		prior, known := storedByID[cond.GetID()]
		if known && prior.Type == cond.Type {
			if cond.SameGate(prior) {
				cond.SetStatus(prior.GetStatus())
			}
			if cond.XOutOfY != nil {
				priorVotes := map[string]bool{}
				for _, validator := range prior.XOutOfY.Validators {
					priorVotes[validator.Principal] = validator.Vote
				}
				for vIdx, validator := range cond.XOutOfY.Validators {
					cond.XOutOfY.Validators[vIdx].Vote = priorVotes[validator.Principal]
				}
			}
		}

		// Votes are tallied here; time based conditions wait for the next sweep
		if cond.XOutOfY != nil {
			satisfied, _ := cond.Evaluate(models.User{}, time.Time{})
			cond.SetStatus(satisfied)
		}
		result = append(result, cond)
	}
	return result, nil
}

/*
UpdatePolicy replace the owner editable state of a policy

Condition statuses and validator votes are never taken from the request.

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param policy models.Policy - the new policy state
	@returns the updated policy
*/
func (v *vaultImpl) UpdatePolicy(
	ctx context.Context, caller string, policy models.Policy,
) (models.Policy, error) {
	logTags := v.LogTags

	var updated models.Policy
	if dbErr := v.serialized(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		stored, err := getOwnedPolicy(dbCtx, dbClient, caller, policy.ID)
		if err != nil {
			return err
		}

		secretIDs := uniqueStrings(policy.Secrets)
		for _, secretID := range secretIDs {
			if _, err := getOwnedSecret(dbCtx, dbClient, caller, secretID); err != nil {
				return err
			}
		}
		covered := map[string]bool{}
		for _, secretID := range secretIDs {
			covered[secretID] = true
		}
		keyBox := map[string][]byte{}
		for secretID, material := range policy.KeyBox {
			if !covered[secretID] {
				return fmt.Errorf(
					"%w: key material given for uncovered secret %s", ErrInvalidRequest, secretID,
				)
			}
			keyBox[secretID] = append([]byte{}, material...)
		}

		conditions, err := mergeConditions(stored.Conditions, policy.Conditions)
		if err != nil {
			return err
		}

		updated = stored.Clone()
		updated.Name = policy.Name
		updated.Beneficiaries = uniqueStrings(policy.Beneficiaries)
		updated.Secrets = secretIDs
		updated.KeyBox = keyBox
		updated.Conditions = conditions
		if policy.ConditionsLogicalOperator != "" {
			updated.ConditionsLogicalOperator = policy.ConditionsLogicalOperator
		}
		unlocked := updated.RefreshConditionsStatus()

		if err := v.validator.Struct(&updated); err != nil {
			return fmt.Errorf("%w: policy [%w]", ErrInvalidRequest, err)
		}

		// Entity first, derived indices second
		if updated, err = dbClient.UpdatePolicy(dbCtx, updated); err != nil {
			return err
		}
		if err := reconcileRegistries(dbCtx, dbClient, stored, updated); err != nil {
			return err
		}

		if _, err := dbClient.RecordSystemEvent(
			dbCtx,
			models.SystemEventTypePolicyUpdated,
			models.SystemEventPolicyRelated{PolicyID: updated.ID, Owner: updated.Owner},
		); err != nil {
			return err
		}
		if unlocked {
			return recordPolicyUnlocked(dbCtx, dbClient, logTags, updated)
		}
		return nil
	}); dbErr != nil {
		return models.Policy{}, fmt.Errorf("failed to update policy %s [%w]", policy.ID, dbErr)
	}
	return updated, nil
}

// recordPolicyUnlocked audit a policy becoming unlocked
func recordPolicyUnlocked(
	ctx context.Context, dbClient db.Database, logTags log.Fields, policy models.Policy,
) error {
	log.WithFields(logTags).
		WithField("policy", policy.ID).
		WithField("owner", policy.Owner).
		Info("Policy conditions met")
	_, err := dbClient.RecordSystemEvent(
		ctx,
		models.SystemEventTypePolicyUnlocked,
		models.SystemEventPolicyRelated{PolicyID: policy.ID, Owner: policy.Owner},
	)
	return err
}

/*
removePolicy delete a policy along with every derived entry referencing it

	@param ctx context.Context - execution context
	@param dbClient db.Database - active transaction
	@param policyID string - the policy ID
*/
func (v *vaultImpl) removePolicy(
	ctx context.Context, dbClient db.Database, policyID string,
) error {
	removed, err := dbClient.DeletePolicy(ctx, policyID)
	if err != nil {
		return translateLookupErr(err, ErrPolicyDoesNotExist)
	}

	if err := reconcileRegistries(ctx, dbClient, removed, models.Policy{ID: policyID}); err != nil {
		return err
	}

	owner, err := dbClient.GetUser(ctx, removed.Owner)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			log.WithFields(v.LogTags).
				WithField("policy", policyID).
				WithField("owner", removed.Owner).
				Warn("Deleted policy has no owner entry")
			return nil
		}
		return err
	}
	if !owner.OwnsPolicy(policyID) {
		log.WithFields(v.LogTags).
			WithField("policy", policyID).
			WithField("owner", removed.Owner).
			Warn("Deleted policy was missing from its owner's policy list")
		return nil
	}
	owner.PolicyIDs = models.RemoveString(owner.PolicyIDs, policyID)
	_, err = dbClient.UpdateUser(ctx, owner)
	return err
}

/*
DeletePolicy delete a policy owned by the caller

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param policyID string - the policy ID
*/
func (v *vaultImpl) DeletePolicy(ctx context.Context, caller string, policyID string) error {
	if dbErr := v.serialized(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		if _, err := getOwnedPolicy(dbCtx, dbClient, caller, policyID); err != nil {
			return err
		}
		return v.removePolicy(dbCtx, dbClient, policyID)
	}); dbErr != nil {
		return fmt.Errorf("failed to delete policy %s [%w]", policyID, dbErr)
	}
	return nil
}

// resolveSecretMetadata fetch the metadata of every secret covered by a policy
func resolveSecretMetadata(
	ctx context.Context, dbClient db.Database, policy models.Policy,
) ([]models.SecretMetadata, error) {
	result := []models.SecretMetadata{}
	for _, secretID := range policy.Secrets {
		secret, err := dbClient.GetSecret(ctx, secretID)
		if err != nil {
			return nil, translateLookupErr(err, ErrSecretDoesNotExist)
		}
		result = append(result, secret.Metadata())
	}
	return result, nil
}

// withoutKeyBox copy of the policy without key material
func withoutKeyBox(policy models.Policy) models.Policy {
	policy.KeyBox = nil
	return policy
}

/*
GetPolicyAsOwner fetch a policy owned by the caller

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param policyID string - the policy ID
	@returns the policy and its secrets' metadata
*/
func (v *vaultImpl) GetPolicyAsOwner(
	ctx context.Context, caller string, policyID string,
) (PolicyView, error) {
	var view PolicyView
	if dbErr := v.readOnly(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		policy, err := getOwnedPolicy(dbCtx, dbClient, caller, policyID)
		if err != nil {
			return err
		}
		secrets, err := resolveSecretMetadata(dbCtx, dbClient, policy)
		if err != nil {
			return err
		}
		view = PolicyView{Policy: policy, Secrets: secrets}
		return nil
	}); dbErr != nil {
		return PolicyView{}, fmt.Errorf("failed to read policy %s [%w]", policyID, dbErr)
	}
	return view, nil
}

// getUnlockedPolicyForBeneficiary fetch a policy the caller may read as beneficiary
func getUnlockedPolicyForBeneficiary(
	ctx context.Context, dbClient db.Database, caller string, policyID string,
) (models.Policy, error) {
	policy, err := dbClient.GetPolicy(ctx, policyID)
	if err != nil {
		return models.Policy{}, translateLookupErr(err, ErrPolicyDoesNotExist)
	}
	if !policy.IsBeneficiary(caller) {
		return models.Policy{}, fmt.Errorf(
			"%w: '%s' on policy %s", ErrNoPolicyForBeneficiary, caller, policyID,
		)
	}
	if !policy.ConditionsStatus {
		return models.Policy{}, fmt.Errorf("%w: policy %s", ErrInvalidPolicyCondition, policyID)
	}
	return policy, nil
}

/*
GetPolicyAsBeneficiary fetch an unlocked policy where the caller is a beneficiary

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param policyID string - the policy ID
	@returns the policy and its secrets' metadata
*/
func (v *vaultImpl) GetPolicyAsBeneficiary(
	ctx context.Context, caller string, policyID string,
) (PolicyView, error) {
	var view PolicyView
	if dbErr := v.readOnly(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		policy, err := getUnlockedPolicyForBeneficiary(dbCtx, dbClient, caller, policyID)
		if err != nil {
			return err
		}
		secrets, err := resolveSecretMetadata(dbCtx, dbClient, policy)
		if err != nil {
			return err
		}
		view = PolicyView{Policy: withoutKeyBox(policy), Secrets: secrets}
		return nil
	}); dbErr != nil {
		return PolicyView{}, fmt.Errorf("failed to read policy %s [%w]", policyID, dbErr)
	}
	return view, nil
}

/*
GetSecretAsBeneficiary fetch a secret through an unlocked policy where the caller is a
beneficiary

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param policyID string - the policy ID
	@param secretID string - the secret ID
	@returns the secret
*/
func (v *vaultImpl) GetSecretAsBeneficiary(
	ctx context.Context, caller string, policyID string, secretID string,
) (models.Secret, error) {
	var secret models.Secret
	if dbErr := v.readOnly(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		policy, err := getUnlockedPolicyForBeneficiary(dbCtx, dbClient, caller, policyID)
		if err != nil {
			return err
		}
		if !policy.CoversSecret(secretID) {
			return fmt.Errorf(
				"%w: policy %s does not cover secret %s", ErrUnauthorized, policyID, secretID,
			)
		}
		secret, err = dbClient.GetSecret(dbCtx, secretID)
		return translateLookupErr(err, ErrSecretDoesNotExist)
	}); dbErr != nil {
		return models.Secret{}, fmt.Errorf("failed to read secret %s [%w]", secretID, dbErr)
	}
	return secret, nil
}

/*
ListPoliciesAsOwner list the policies owned by the caller

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@returns the policies
*/
func (v *vaultImpl) ListPoliciesAsOwner(
	ctx context.Context, caller string,
) ([]models.Policy, error) {
	var policies []models.Policy
	if dbErr := v.readOnly(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		var err error
		policies, err = dbClient.ListPolicies(dbCtx, db.PolicyQueryFilter{TargetOwner: &caller})
		return err
	}); dbErr != nil {
		return nil, fmt.Errorf("failed to list policies of '%s' [%w]", caller, dbErr)
	}
	return policies, nil
}

// listPoliciesByRegistry resolve the registry entries of a principal into policies
func (v *vaultImpl) listPoliciesByRegistry(
	ctx context.Context, caller string, role models.RegistryRoleENUMType,
) ([]models.Policy, error) {
	result := []models.Policy{}
	if dbErr := v.readOnly(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		policyIDs, err := dbClient.ListPrincipalPolicies(dbCtx, role, caller)
		if err != nil {
			return err
		}
		for _, policyID := range policyIDs {
			policy, err := dbClient.GetPolicy(dbCtx, policyID)
			if err != nil {
				return translateLookupErr(err, ErrPolicyDoesNotExist)
			}
			result = append(result, withoutKeyBox(policy))
		}
		return nil
	}); dbErr != nil {
		return nil, fmt.Errorf("failed to list %s policies of '%s' [%w]", role, caller, dbErr)
	}
	return result, nil
}

/*
ListPoliciesAsBeneficiary list the policies naming the caller as beneficiary

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@returns the policies, without key material
*/
func (v *vaultImpl) ListPoliciesAsBeneficiary(
	ctx context.Context, caller string,
) ([]models.Policy, error) {
	return v.listPoliciesByRegistry(ctx, caller, models.RegistryRoleBeneficiary)
}

/*
ListPoliciesAsValidator list the policies naming the caller as validator

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@returns the policies, without key material
*/
func (v *vaultImpl) ListPoliciesAsValidator(
	ctx context.Context, caller string,
) ([]models.Policy, error) {
	return v.listPoliciesByRegistry(ctx, caller, models.RegistryRoleValidator)
}
