package db

import (
	"context"
	"fmt"

	"github.com/alwitt/legacyvault/models"
)

// ======================================================================================
// Users

/*
DefineNewUser insert a new user

	@param ctx context.Context - execution context
	@param user models.User - the new user
	@returns the stored user
*/
func (d *databaseImpl) DefineNewUser(_ context.Context, user models.User) (models.User, error) {
	newEntry := UserDBEntry{User: user}
	if newEntry.SecretIDs == nil {
		newEntry.SecretIDs = []string{}
	}
	if newEntry.PolicyIDs == nil {
		newEntry.PolicyIDs = []string{}
	}
	if newEntry.Contacts == nil {
		newEntry.Contacts = []models.Contact{}
	}
	if newEntry.KeyBox == nil {
		newEntry.KeyBox = map[string][]byte{}
	}

	if err := d.validator.Struct(&newEntry); err != nil {
		return models.User{}, fmt.Errorf("new user '%s' is not valid [%w]", user.ID, err)
	}

	exists, err := d.entryExists(&UserDBEntry{}, user.ID)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to check for user '%s' [%w]", user.ID, err)
	}
	if exists {
		return models.User{}, fmt.Errorf("user '%s' %w", user.ID, ErrAlreadyExists)
	}

	if tmp := d.db.Create(&newEntry); tmp.Error != nil {
		return models.User{}, fmt.Errorf("new user '%s' failed insert [%w]", user.ID, tmp.Error)
	}

	// Record this event
	if _, err := d.auditEvent(
		models.SystemEventTypeUserRegistered, models.SystemEventUserRelated{UserID: user.ID},
	); err != nil {
		return models.User{}, fmt.Errorf(
			"failed to log register user '%s' audit event [%w]", user.ID, err,
		)
	}

	return newEntry.User, nil
}

// getUserEntry find a user by ID
func (d *databaseImpl) getUserEntry(userID string) (UserDBEntry, error) {
	var entry UserDBEntry
	err := d.db.Where("id = ?", userID).First(&entry).Error
	return entry, wrapLookupErr(err)
}

/*
GetUser fetch a user

	@param ctx context.Context - execution context
	@param userID string - the user principal
	@returns the user
*/
func (d *databaseImpl) GetUser(_ context.Context, userID string) (models.User, error) {
	entry, err := d.getUserEntry(userID)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to fetch user '%s' [%w]", userID, err)
	}
	return entry.User, nil
}

/*
ListUsers list users

	@param ctx context.Context - execution context
	@param filters UserQueryFilter - entry listing filter
	@returns list of users
*/
func (d *databaseImpl) ListUsers(
	_ context.Context, filters UserQueryFilter,
) ([]models.User, error) {
	query := d.db.Model(&UserDBEntry{})

	if filters.WithLoginOnly {
		query = query.Where("date_last_login IS NOT NULL")
	}

	query = applyListFilter(query, filters.CommonListEntryQueryFilter)

	query = query.Order("created_at").Order("id")

	var entries []UserDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list users [%w]", tmp.Error)
	}

	result := []models.User{}
	for _, entry := range entries {
		result = append(result, entry.User)
	}

	return result, nil
}

/*
UpdateUser replace an existing user

	@param ctx context.Context - execution context
	@param user models.User - the new user state
	@returns the stored user
*/
func (d *databaseImpl) UpdateUser(_ context.Context, user models.User) (models.User, error) {
	entry, err := d.getUserEntry(user.ID)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to fetch user '%s' [%w]", user.ID, err)
	}

	updated := UserDBEntry{User: user}
	updated.CreatedAt = entry.CreatedAt
	if err := d.validator.Struct(&updated); err != nil {
		return models.User{}, fmt.Errorf("updated user '%s' is not valid [%w]", user.ID, err)
	}

	if tmp := d.db.Save(&updated); tmp.Error != nil {
		return models.User{}, fmt.Errorf("failed to update user '%s' [%w]", user.ID, tmp.Error)
	}

	return updated.User, nil
}

/*
DeleteUser delete a user. Secrets and policies owned by the user are not touched.

	@param ctx context.Context - execution context
	@param userID string - the user principal
	@returns the deleted user
*/
func (d *databaseImpl) DeleteUser(_ context.Context, userID string) (models.User, error) {
	entry, err := d.getUserEntry(userID)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to fetch user '%s' [%w]", userID, err)
	}

	if tmp := d.db.Delete(&entry); tmp.Error != nil {
		return models.User{}, fmt.Errorf("failed to delete user '%s' [%w]", userID, tmp.Error)
	}

	// Record this event
	if _, err := d.auditEvent(
		models.SystemEventTypeUserDeleted, models.SystemEventUserRelated{UserID: userID},
	); err != nil {
		return models.User{}, fmt.Errorf(
			"failed to log delete user '%s' audit event [%w]", userID, err,
		)
	}

	return entry.User, nil
}
