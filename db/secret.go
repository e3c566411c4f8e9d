package db

import (
	"context"
	"fmt"

	"github.com/alwitt/legacyvault/models"
)

// ======================================================================================
// Secrets

/*
DefineNewSecret insert a new secret

	@param ctx context.Context - execution context
	@param secret models.Secret - the new secret
	@returns the stored secret
*/
func (d *databaseImpl) DefineNewSecret(
	_ context.Context, secret models.Secret,
) (models.Secret, error) {
	newEntry := SecretDBEntry{Secret: secret}

	if err := d.validator.Struct(&newEntry); err != nil {
		return models.Secret{}, fmt.Errorf("new secret %s is not valid [%w]", secret.ID, err)
	}

	exists, err := d.entryExists(&SecretDBEntry{}, secret.ID)
	if err != nil {
		return models.Secret{}, fmt.Errorf("failed to check for secret %s [%w]", secret.ID, err)
	}
	if exists {
		return models.Secret{}, fmt.Errorf("secret %s %w", secret.ID, ErrAlreadyExists)
	}

	if tmp := d.db.Create(&newEntry); tmp.Error != nil {
		return models.Secret{}, fmt.Errorf(
			"new secret %s failed insert [%w]", secret.ID, tmp.Error,
		)
	}

	// Record this event
	if _, err := d.auditEvent(
		models.SystemEventTypeSecretAdded,
		models.SystemEventSecretRelated{SecretID: secret.ID, Owner: secret.Owner},
	); err != nil {
		return models.Secret{}, fmt.Errorf(
			"failed to log add secret %s audit event [%w]", secret.ID, err,
		)
	}

	return newEntry.Secret, nil
}

// getSecretEntry find a secret by ID
func (d *databaseImpl) getSecretEntry(secretID string) (SecretDBEntry, error) {
	var entry SecretDBEntry
	err := d.db.Where("id = ?", secretID).First(&entry).Error
	return entry, wrapLookupErr(err)
}

/*
GetSecret fetch a secret

	@param ctx context.Context - execution context
	@param secretID string - the secret ID
	@returns the secret
*/
func (d *databaseImpl) GetSecret(_ context.Context, secretID string) (models.Secret, error) {
	entry, err := d.getSecretEntry(secretID)
	if err != nil {
		return models.Secret{}, fmt.Errorf("failed to fetch secret %s [%w]", secretID, err)
	}
	return entry.Secret, nil
}

/*
ListSecrets list secrets

	@param ctx context.Context - execution context
	@param filters SecretQueryFilter - entry listing filter
	@returns list of secrets
*/
func (d *databaseImpl) ListSecrets(
	_ context.Context, filters SecretQueryFilter,
) ([]models.Secret, error) {
	query := d.db.Model(&SecretDBEntry{})

	if filters.TargetOwner != nil {
		query = query.Where("owner = ?", *filters.TargetOwner)
	}
	if filters.TargetIDs != nil {
		query = query.Where("id in ?", filters.TargetIDs)
	}

	query = applyListFilter(query, filters.CommonListEntryQueryFilter)

	query = query.Order("created_at").Order("id")

	var entries []SecretDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list secrets [%w]", tmp.Error)
	}

	result := []models.Secret{}
	for _, entry := range entries {
		result = append(result, entry.Secret)
	}

	return result, nil
}

/*
UpdateSecret replace an existing secret

	@param ctx context.Context - execution context
	@param secret models.Secret - the new secret state
	@returns the stored secret
*/
func (d *databaseImpl) UpdateSecret(
	_ context.Context, secret models.Secret,
) (models.Secret, error) {
	entry, err := d.getSecretEntry(secret.ID)
	if err != nil {
		return models.Secret{}, fmt.Errorf("failed to fetch secret %s [%w]", secret.ID, err)
	}

	updated := SecretDBEntry{Secret: secret}
	updated.CreatedAt = entry.CreatedAt
	if err := d.validator.Struct(&updated); err != nil {
		return models.Secret{}, fmt.Errorf("updated secret %s is not valid [%w]", secret.ID, err)
	}

	if tmp := d.db.Save(&updated); tmp.Error != nil {
		return models.Secret{}, fmt.Errorf(
			"failed to update secret %s [%w]", secret.ID, tmp.Error,
		)
	}

	return updated.Secret, nil
}

/*
DeleteSecret delete a secret

	@param ctx context.Context - execution context
	@param secretID string - the secret ID
	@returns the deleted secret
*/
func (d *databaseImpl) DeleteSecret(_ context.Context, secretID string) (models.Secret, error) {
	entry, err := d.getSecretEntry(secretID)
	if err != nil {
		return models.Secret{}, fmt.Errorf("failed to fetch secret %s [%w]", secretID, err)
	}

	if tmp := d.db.Delete(&entry); tmp.Error != nil {
		return models.Secret{}, fmt.Errorf("failed to delete secret %s [%w]", secretID, tmp.Error)
	}

	// Record this event
	if _, err := d.auditEvent(
		models.SystemEventTypeSecretDeleted,
		models.SystemEventSecretRelated{SecretID: secretID, Owner: entry.Owner},
	); err != nil {
		return models.Secret{}, fmt.Errorf(
			"failed to log delete secret %s audit event [%w]", secretID, err,
		)
	}

	return entry.Secret, nil
}
