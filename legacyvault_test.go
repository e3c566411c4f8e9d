package legacyvault_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"testing"

	"github.com/alwitt/legacyvault"
	"github.com/alwitt/legacyvault/config"
	"github.com/alwitt/legacyvault/models"
	"github.com/alwitt/legacyvault/vault"
	"github.com/apex/log"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
)

// TestLegacyVaultEndToEnd walks one inheritance from policy set up to key release
func TestLegacyVaultEndToEnd(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	ctx := context.Background()

	testDB := fmt.Sprintf("/tmp/legacyvault_ut_%s.db", ulid.Make().String())
	cfg, err := config.Parse([]byte(fmt.Sprintf(
		"database:\n  dsn: %s\nkey_release:\n  min_rsa_key_bits: 2048\n", testDB,
	)))
	assert.Nil(err)

	instance, err := legacyvault.NewInstanceFromConfig(ctx, cfg)
	assert.Nil(err)

	// Owner and beneficiary set up
	for _, userID := range []string{"owner", "heir", "witness"} {
		_, err := instance.Vault.RegisterUser(ctx, userID, vault.UserProfile{DisplayName: userID})
		assert.Nil(err)
	}
	secret, err := instance.Vault.AddSecret(ctx, "owner", vault.SecretParams{
		Category: models.SecretCategoryNote, Notes: []byte("enc-notes"),
	}, []byte("owner-key"))
	assert.Nil(err)

	policy, err := instance.Vault.CreatePolicy(ctx, "owner", vault.PolicyCreateParams{})
	assert.Nil(err)
	policy.Beneficiaries = []string{"heir"}
	policy.Secrets = []string{secret.ID}
	policy.KeyBox = map[string][]byte{secret.ID: []byte("heir-key")}
	policy.Conditions = []models.Condition{
		models.NewXOutOfYCondition("", "Has the owner passed?", 1, "witness"),
	}
	_, err = instance.Vault.UpdatePolicy(ctx, "owner", policy)
	assert.Nil(err)

	heirKey, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.Nil(err)

	// Locked
	_, err = instance.KeyRelease.ReleaseKey(ctx, "heir", secret.ID, &heirKey.PublicKey)
	assert.True(errors.Is(err, vault.ErrUnauthorized))

	// Witness confirms
	assert.Nil(instance.Vault.ConfirmXOutOfY(ctx, "witness", policy.ID, true))

	wrapped, err := instance.KeyRelease.ReleaseKey(ctx, "heir", secret.ID, &heirKey.PublicKey)
	assert.Nil(err)
	opened, err := instance.KeyRelease.OpenReleasedKey(ctx, wrapped, heirKey)
	assert.Nil(err)
	assert.Equal([]byte("heir-key"), opened)

	released, err := instance.Vault.GetSecretAsBeneficiary(ctx, "heir", policy.ID, secret.ID)
	assert.Nil(err)
	assert.Equal([]byte("enc-notes"), released.Notes)

	// Reopening the database restores the same state
	assert.Nil(instance.Close())
	reopened, err := legacyvault.NewInstanceFromConfig(ctx, cfg)
	assert.Nil(err)
	benefits, err := reopened.Vault.ListPoliciesAsBeneficiary(ctx, "heir")
	assert.Nil(err)
	assert.Len(benefits, 1)
	assert.True(benefits[0].ConditionsStatus)
	assert.Nil(reopened.Close())
}
