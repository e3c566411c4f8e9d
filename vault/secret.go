package vault

import (
	"context"
	"fmt"

	"github.com/alwitt/legacyvault/db"
	"github.com/alwitt/legacyvault/models"
	"github.com/google/uuid"
)

/*
AddSecret store a new secret for the caller

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param params SecretParams - the secret
	@param keyMaterial []byte - the owner's encrypted key material for the secret
	@returns the new secret
*/
func (v *vaultImpl) AddSecret(
	ctx context.Context, caller string, params SecretParams, keyMaterial []byte,
) (models.Secret, error) {
	if err := v.validator.Struct(&params); err != nil {
		return models.Secret{}, fmt.Errorf("%w: secret parameters [%w]", ErrInvalidRequest, err)
	}
	if len(keyMaterial) == 0 {
		return models.Secret{}, fmt.Errorf("%w: secret key material missing", ErrInvalidRequest)
	}

	var secret models.Secret
	if dbErr := v.serialized(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		owner, err := dbClient.GetUser(dbCtx, caller)
		if err != nil {
			return translateLookupErr(err, ErrUserDoesNotExist)
		}

		secret, err = dbClient.DefineNewSecret(dbCtx, models.Secret{
			ID:       uuid.NewString(),
			Owner:    caller,
			Category: params.Category,
			Name:     params.Name,
			Username: params.Username,
			Password: params.Password,
			Notes:    params.Notes,
			URL:      params.URL,
		})
		if err != nil {
			return err
		}

		// Secret list and key box move together
		owner.SecretIDs = append(owner.SecretIDs, secret.ID)
		if owner.KeyBox == nil {
			owner.KeyBox = map[string][]byte{}
		}
		owner.KeyBox[secret.ID] = keyMaterial
		_, err = dbClient.UpdateUser(dbCtx, owner)
		return err
	}); dbErr != nil {
		return models.Secret{}, fmt.Errorf("failed to add secret for '%s' [%w]", caller, dbErr)
	}
	return secret, nil
}

// getOwnedSecret fetch a secret and verify the caller owns it
func getOwnedSecret(
	ctx context.Context, dbClient db.Database, caller string, secretID string,
) (models.Secret, error) {
	secret, err := dbClient.GetSecret(ctx, secretID)
	if err != nil {
		return models.Secret{}, translateLookupErr(err, ErrSecretDoesNotExist)
	}
	if secret.Owner != caller {
		return models.Secret{}, fmt.Errorf(
			"%w: '%s' does not own secret %s", ErrUnauthorized, caller, secretID,
		)
	}
	return secret, nil
}

/*
GetSecret fetch a secret owned by the caller

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param secretID string - the secret ID
	@returns the secret
*/
func (v *vaultImpl) GetSecret(
	ctx context.Context, caller string, secretID string,
) (models.Secret, error) {
	var secret models.Secret
	if dbErr := v.readOnly(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		var err error
		secret, err = getOwnedSecret(dbCtx, dbClient, caller, secretID)
		return err
	}); dbErr != nil {
		return models.Secret{}, fmt.Errorf("failed to read secret %s [%w]", secretID, dbErr)
	}
	return secret, nil
}

/*
ListSecrets list the secrets owned by the caller

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@returns the secrets
*/
func (v *vaultImpl) ListSecrets(ctx context.Context, caller string) ([]models.Secret, error) {
	var secrets []models.Secret
	if dbErr := v.readOnly(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		if _, err := dbClient.GetUser(dbCtx, caller); err != nil {
			return translateLookupErr(err, ErrUserDoesNotExist)
		}
		var err error
		secrets, err = dbClient.ListSecrets(dbCtx, db.SecretQueryFilter{TargetOwner: &caller})
		return err
	}); dbErr != nil {
		return nil, fmt.Errorf("failed to list secrets of '%s' [%w]", caller, dbErr)
	}
	return secrets, nil
}

/*
UpdateSecret replace the content of a secret owned by the caller

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param secret models.Secret - the new secret state
	@returns the updated secret
*/
func (v *vaultImpl) UpdateSecret(
	ctx context.Context, caller string, secret models.Secret,
) (models.Secret, error) {
	var updated models.Secret
	if dbErr := v.serialized(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		stored, err := getOwnedSecret(dbCtx, dbClient, caller, secret.ID)
		if err != nil {
			return err
		}
		if secret.Owner != "" && secret.Owner != stored.Owner {
			return fmt.Errorf(
				"%w: secret %s owner can not change", ErrInvariantViolation, secret.ID,
			)
		}

		secret.Owner = stored.Owner
		secret.CreatedAt = stored.CreatedAt
		if err := v.validator.Struct(&secret); err != nil {
			return fmt.Errorf("%w: secret [%w]", ErrInvalidRequest, err)
		}

		updated, err = dbClient.UpdateSecret(dbCtx, secret)
		return err
	}); dbErr != nil {
		return models.Secret{}, fmt.Errorf("failed to update secret %s [%w]", secret.ID, dbErr)
	}
	return updated, nil
}

/*
RemoveSecret delete a secret owned by the caller, and remove it from every policy

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param secretID string - the secret ID
*/
func (v *vaultImpl) RemoveSecret(ctx context.Context, caller string, secretID string) error {
	if dbErr := v.serialized(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		if _, err := getOwnedSecret(dbCtx, dbClient, caller, secretID); err != nil {
			return err
		}

		// Policies may only reference secrets of their owner
		policies, err := dbClient.ListPolicies(dbCtx, db.PolicyQueryFilter{TargetOwner: &caller})
		if err != nil {
			return err
		}
		for _, policy := range policies {
			if !policy.CoversSecret(secretID) {
				continue
			}
			policy.Secrets = models.RemoveString(policy.Secrets, secretID)
			delete(policy.KeyBox, secretID)
			if _, err := dbClient.UpdatePolicy(dbCtx, policy); err != nil {
				return err
			}
		}

		if _, err := dbClient.DeleteSecret(dbCtx, secretID); err != nil {
			return err
		}

		owner, err := dbClient.GetUser(dbCtx, caller)
		if err != nil {
			return translateLookupErr(err, ErrUserDoesNotExist)
		}
		owner.SecretIDs = models.RemoveString(owner.SecretIDs, secretID)
		delete(owner.KeyBox, secretID)
		_, err = dbClient.UpdateUser(dbCtx, owner)
		return err
	}); dbErr != nil {
		return fmt.Errorf("failed to remove secret %s [%w]", secretID, dbErr)
	}
	return nil
}
