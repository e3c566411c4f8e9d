package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alwitt/legacyvault/db"
	"github.com/alwitt/legacyvault/models"
	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
)

func TestDBUserCRUD(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut := prepareTestDB(t)

	// Case 0: define users
	for _, userID := range []string{"alice", "bob"} {
		assert.Nil(uut.UseDatabaseInTransaction(
			utCtx, func(ctx context.Context, dbClient db.Database) error {
				user, err := dbClient.DefineNewUser(ctx, models.User{
					ID: userID, DisplayName: userID, Email: userID + "@example.com",
				})
				assert.Nil(err)
				assert.Equal(userID, user.ID)
				assert.NotNil(user.SecretIDs)
				assert.NotNil(user.KeyBox)
				return err
			},
		))
	}

	// Case 1: duplicate
	{
		err := uut.UseDatabaseInTransaction(
			utCtx, func(ctx context.Context, dbClient db.Database) error {
				_, err := dbClient.DefineNewUser(ctx, models.User{ID: "alice"})
				return err
			},
		)
		assert.Error(err)
		assert.True(errors.Is(err, db.ErrAlreadyExists))
	}

	// Case 2: invalid email
	{
		err := uut.UseDatabaseInTransaction(
			utCtx, func(ctx context.Context, dbClient db.Database) error {
				_, err := dbClient.DefineNewUser(ctx, models.User{ID: "carol", Email: "nope"})
				return err
			},
		)
		assert.Error(err)
	}

	// Case 3: unknown user
	assert.Nil(uut.UseDatabase(utCtx, func(ctx context.Context, dbClient db.Database) error {
		_, err := dbClient.GetUser(ctx, "carol")
		assert.True(errors.Is(err, db.ErrNotFound))
		_, err = dbClient.UpdateUser(ctx, models.User{ID: "carol"})
		assert.True(errors.Is(err, db.ErrNotFound))
		_, err = dbClient.DeleteUser(ctx, "carol")
		assert.True(errors.Is(err, db.ErrNotFound))
		return nil
	}))

	// Case 4: update
	loginTime := time.Now().UTC().Truncate(time.Second)
	assert.Nil(uut.UseDatabaseInTransaction(
		utCtx, func(ctx context.Context, dbClient db.Database) error {
			user, err := dbClient.GetUser(ctx, "alice")
			assert.Nil(err)
			user.DateLastLogin = &loginTime
			user.SecretIDs = []string{"secret-1"}
			user.KeyBox = map[string][]byte{"secret-1": []byte("key-1")}
			user.Contacts = []models.Contact{{Principal: "bob", Name: "Bob"}}
			_, err = dbClient.UpdateUser(ctx, user)
			return err
		},
	))
	assert.Nil(uut.UseDatabase(utCtx, func(ctx context.Context, dbClient db.Database) error {
		user, err := dbClient.GetUser(ctx, "alice")
		assert.Nil(err)
		assert.NotNil(user.DateLastLogin)
		assert.Equal([]string{"secret-1"}, user.SecretIDs)
		assert.Equal([]byte("key-1"), user.KeyBox["secret-1"])
		assert.True(user.HasContact("bob"))
		assert.True(user.OwnsSecret("secret-1"))
		return err
	}))

	// Case 5: list
	assert.Nil(uut.UseDatabase(utCtx, func(ctx context.Context, dbClient db.Database) error {
		users, err := dbClient.ListUsers(ctx, db.UserQueryFilter{})
		assert.Nil(err)
		assert.Len(users, 2)

		users, err = dbClient.ListUsers(ctx, db.UserQueryFilter{WithLoginOnly: true})
		assert.Nil(err)
		assert.Len(users, 1)
		assert.Equal("alice", users[0].ID)

		limit := 1
		offset := 1
		users, err = dbClient.ListUsers(ctx, db.UserQueryFilter{
			CommonListEntryQueryFilter: db.CommonListEntryQueryFilter{Limit: &limit, Offset: &offset},
		})
		assert.Nil(err)
		assert.Len(users, 1)
		return err
	}))

	// Case 6: delete
	assert.Nil(uut.UseDatabaseInTransaction(
		utCtx, func(ctx context.Context, dbClient db.Database) error {
			deleted, err := dbClient.DeleteUser(ctx, "bob")
			assert.Nil(err)
			assert.Equal("bob", deleted.ID)
			return err
		},
	))

	// Audit trail
	assert.Nil(uut.UseDatabase(utCtx, func(ctx context.Context, dbClient db.Database) error {
		events, err := dbClient.ListSystemEvents(ctx, db.SystemEventQueryFilter{
			EventTypes: []models.SystemEventTypeENUMType{
				models.SystemEventTypeUserRegistered, models.SystemEventTypeUserDeleted,
			},
		})
		assert.Nil(err)
		assert.Len(events, 3)
		return err
	}))
}
