package vault

import (
	"context"
	"fmt"

	"github.com/alwitt/legacyvault/db"
	"github.com/alwitt/legacyvault/models"
)

/*
releasingPolicies list the unlocked policies of the secret's owner which cover the secret
and name the caller as beneficiary.

Policies are read from the policy store rather than the beneficiary registry.

	@param ctx context.Context - execution context
	@param dbClient db.Database - active database session
	@param caller string - the caller principal
	@param secret models.Secret - the secret
	@returns the matching policies
*/
func releasingPolicies(
	ctx context.Context, dbClient db.Database, caller string, secret models.Secret,
) ([]models.Policy, error) {
	owner := secret.Owner
	policies, err := dbClient.ListPolicies(ctx, db.PolicyQueryFilter{TargetOwner: &owner})
	if err != nil {
		return nil, err
	}
	result := []models.Policy{}
	for _, policy := range policies {
		if policy.ConditionsStatus && policy.IsBeneficiary(caller) &&
			policy.CoversSecret(secret.ID) {
			result = append(result, policy)
		}
	}
	return result, nil
}

/*
resolveKeyMaterial find the key material the caller may obtain for a secret.

The owner receives the copy in its own key box. A beneficiary receives the copy in the key
box of the first unlocked policy which covers the secret and names the caller.

	@param ctx context.Context - execution context
	@param dbClient db.Database - active database session
	@param caller string - the caller principal
	@param secretID string - the secret ID
	@returns the key material
*/
func resolveKeyMaterial(
	ctx context.Context, dbClient db.Database, caller string, secretID string,
) ([]byte, error) {
	secret, err := dbClient.GetSecret(ctx, secretID)
	if err != nil {
		return nil, translateLookupErr(err, ErrSecretDoesNotExist)
	}

	if secret.Owner == caller {
		owner, err := dbClient.GetUser(ctx, caller)
		if err != nil {
			return nil, translateLookupErr(err, ErrUserDoesNotExist)
		}
		material, ok := owner.KeyBox[secretID]
		if !ok {
			return nil, fmt.Errorf(
				"%w: owner key box has no entry for secret %s", ErrInvariantViolation, secretID,
			)
		}
		return material, nil
	}

	policies, err := releasingPolicies(ctx, dbClient, caller, secret)
	if err != nil {
		return nil, err
	}
	for _, policy := range policies {
		if material, ok := policy.KeyBox[secretID]; ok {
			return material, nil
		}
	}

	return nil, fmt.Errorf(
		"%w: '%s' may not obtain key material of secret %s", ErrUnauthorized, caller, secretID,
	)
}

/*
IsReleaseAuthorized whether the caller may obtain key material for a secret

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param secretID string - the secret ID
	@returns whether release is authorized
*/
func (v *vaultImpl) IsReleaseAuthorized(
	ctx context.Context, caller string, secretID string,
) (bool, error) {
	var authorized bool
	if dbErr := v.readOnly(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		secret, err := dbClient.GetSecret(dbCtx, secretID)
		if err != nil {
			return translateLookupErr(err, ErrSecretDoesNotExist)
		}
		if secret.Owner == caller {
			authorized = true
			return nil
		}

		policies, err := releasingPolicies(dbCtx, dbClient, caller, secret)
		authorized = len(policies) > 0
		return err
	}); dbErr != nil {
		return false, fmt.Errorf("failed to check release of secret %s [%w]", secretID, dbErr)
	}
	return authorized, nil
}

/*
AuthorizeKeyRelease fetch the key material of a secret the caller may obtain

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param secretID string - the secret ID
	@returns the key material
*/
func (v *vaultImpl) AuthorizeKeyRelease(
	ctx context.Context, caller string, secretID string,
) ([]byte, error) {
	var material []byte
	if dbErr := v.readOnly(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		var err error
		material, err = resolveKeyMaterial(dbCtx, dbClient, caller, secretID)
		return err
	}); dbErr != nil {
		return nil, fmt.Errorf("key release of secret %s refused [%w]", secretID, dbErr)
	}
	return material, nil
}
