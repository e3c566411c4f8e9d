package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/alwitt/legacyvault/db"
	"github.com/alwitt/legacyvault/models"
	"github.com/apex/log"
)

/*
RegisterUser register the caller as a vault user

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param profile UserProfile - user profile
	@returns the new user
*/
func (v *vaultImpl) RegisterUser(
	ctx context.Context, caller string, profile UserProfile,
) (models.User, error) {
	if err := v.validator.Struct(&profile); err != nil {
		return models.User{}, fmt.Errorf("%w: user profile [%w]", ErrInvalidRequest, err)
	}

	var user models.User
	if dbErr := v.serialized(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		var err error
		user, err = dbClient.DefineNewUser(dbCtx, models.User{
			ID: caller, DisplayName: profile.DisplayName, Email: profile.Email,
		})
		return err
	}); dbErr != nil {
		if isAlreadyExists(dbErr) {
			return models.User{}, fmt.Errorf("%w [%w]", ErrUserAlreadyExists, dbErr)
		}
		return models.User{}, fmt.Errorf("failed to register user '%s' [%w]", caller, dbErr)
	}
	return user, nil
}

/*
GetUser fetch the caller's user entry

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@returns the user
*/
func (v *vaultImpl) GetUser(ctx context.Context, caller string) (models.User, error) {
	var user models.User
	if dbErr := v.readOnly(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		var err error
		user, err = dbClient.GetUser(dbCtx, caller)
		return translateLookupErr(err, ErrUserDoesNotExist)
	}); dbErr != nil {
		return models.User{}, fmt.Errorf("failed to read user '%s' [%w]", caller, dbErr)
	}
	return user, nil
}

// mutateUser apply a change to the caller's user entry and persist it
func (v *vaultImpl) mutateUser(
	ctx context.Context, caller string, mutate func(user *models.User) error,
) (models.User, error) {
	var user models.User
	if dbErr := v.serialized(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		var err error
		user, err = dbClient.GetUser(dbCtx, caller)
		if err != nil {
			return translateLookupErr(err, ErrUserDoesNotExist)
		}
		if err := mutate(&user); err != nil {
			return err
		}
		user, err = dbClient.UpdateUser(dbCtx, user)
		return err
	}); dbErr != nil {
		return models.User{}, fmt.Errorf("failed to update user '%s' [%w]", caller, dbErr)
	}
	return user, nil
}

/*
UpdateUserProfile update the caller's profile

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param profile UserProfile - new user profile
	@returns the updated user
*/
func (v *vaultImpl) UpdateUserProfile(
	ctx context.Context, caller string, profile UserProfile,
) (models.User, error) {
	if err := v.validator.Struct(&profile); err != nil {
		return models.User{}, fmt.Errorf("%w: user profile [%w]", ErrInvalidRequest, err)
	}
	return v.mutateUser(ctx, caller, func(user *models.User) error {
		user.DisplayName = profile.DisplayName
		user.Email = profile.Email
		return nil
	})
}

/*
RecordLogin record the caller logged in

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param loginTime time.Time - login time
	@returns the updated user
*/
func (v *vaultImpl) RecordLogin(
	ctx context.Context, caller string, loginTime time.Time,
) (models.User, error) {
	return v.mutateUser(ctx, caller, func(user *models.User) error {
		user.DateLastLogin = &loginTime
		return nil
	})
}

/*
AddContact add a contact to the caller's address book

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param contact models.Contact - the contact
	@returns the updated user
*/
func (v *vaultImpl) AddContact(
	ctx context.Context, caller string, contact models.Contact,
) (models.User, error) {
	if err := v.validator.Struct(&contact); err != nil {
		return models.User{}, fmt.Errorf("%w: contact [%w]", ErrInvalidRequest, err)
	}
	return v.mutateUser(ctx, caller, func(user *models.User) error {
		if user.HasContact(contact.Principal) {
			return fmt.Errorf("%w: contact %s already known", ErrInvalidRequest, contact.Principal)
		}
		user.Contacts = append(user.Contacts, contact)
		return nil
	})
}

/*
RemoveContact remove a contact from the caller's address book

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param principal string - the contact's principal
	@returns the updated user
*/
func (v *vaultImpl) RemoveContact(
	ctx context.Context, caller string, principal string,
) (models.User, error) {
	return v.mutateUser(ctx, caller, func(user *models.User) error {
		remaining := []models.Contact{}
		for _, c := range user.Contacts {
			if c.Principal != principal {
				remaining = append(remaining, c)
			}
		}
		user.Contacts = remaining
		return nil
	})
}

/*
DeleteUser delete the caller along with every policy and secret it owns

Policies of other owners which name the caller as beneficiary or validator are left as is.

	@param ctx context.Context - execution context
	@param caller string - the caller principal
*/
func (v *vaultImpl) DeleteUser(ctx context.Context, caller string) error {
	logTags := v.LogTags

	if dbErr := v.serialized(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		user, err := dbClient.GetUser(dbCtx, caller)
		if err != nil {
			return translateLookupErr(err, ErrUserDoesNotExist)
		}

		// Ownership is read from the stores, not the user's denormalized lists
		policies, err := dbClient.ListPolicies(dbCtx, db.PolicyQueryFilter{TargetOwner: &caller})
		if err != nil {
			return err
		}
		for _, policy := range policies {
			if err := v.removePolicy(dbCtx, dbClient, policy.ID); err != nil {
				return err
			}
		}

		secrets, err := dbClient.ListSecrets(dbCtx, db.SecretQueryFilter{TargetOwner: &caller})
		if err != nil {
			return err
		}
		for _, secret := range secrets {
			if _, err := dbClient.DeleteSecret(dbCtx, secret.ID); err != nil {
				return err
			}
		}

		if _, err := dbClient.DeleteUser(dbCtx, user.ID); err != nil {
			return err
		}

		log.WithFields(logTags).
			WithField("user", caller).
			WithField("policies", len(policies)).
			WithField("secrets", len(secrets)).
			Info("Deleted user and owned entries")
		return nil
	}); dbErr != nil {
		return fmt.Errorf("failed to delete user '%s' [%w]", caller, dbErr)
	}
	return nil
}
