package vault_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alwitt/legacyvault/db"
	"github.com/alwitt/legacyvault/models"
	"github.com/alwitt/legacyvault/vault"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestVaultKeyReleaseGate(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, dbClient := prepareTestVault(t)
	registerUsers(t, uut, "owner", "heir", "witness")
	secret := addTestSecret(t, uut, "owner")

	policy, err := uut.CreatePolicy(utCtx, "owner", vault.PolicyCreateParams{})
	assert.Nil(err)
	policy.Beneficiaries = []string{"heir"}
	policy.Secrets = []string{secret.ID}
	policy.KeyBox = map[string][]byte{secret.ID: []byte("heir-key")}
	policy.Conditions = []models.Condition{models.NewXOutOfYCondition("", "?", 1, "witness")}
	_, err = uut.UpdatePolicy(utCtx, "owner", policy)
	assert.Nil(err)

	type testCase struct {
		caller     string
		secretID   string
		authorized bool
		material   []byte
		expectErr  error
	}

	checkCases := func(testCases []testCase) {
		for idx, oneTest := range testCases {
			authorized, err := uut.IsReleaseAuthorized(utCtx, oneTest.caller, oneTest.secretID)
			material, releaseErr := uut.AuthorizeKeyRelease(utCtx, oneTest.caller, oneTest.secretID)
			if errors.Is(oneTest.expectErr, vault.ErrSecretDoesNotExist) {
				assert.Truef(errors.Is(err, vault.ErrSecretDoesNotExist), "case %d", idx)
			} else {
				assert.Nilf(err, "case %d", idx)
				assert.Equalf(oneTest.authorized, authorized, "case %d", idx)
			}
			if oneTest.expectErr != nil {
				assert.Truef(errors.Is(releaseErr, oneTest.expectErr), "case %d", idx)
			} else {
				assert.Nilf(releaseErr, "case %d", idx)
				assert.Equalf(oneTest.material, material, "case %d", idx)
			}
		}
	}

	// Locked policy
	checkCases([]testCase{
		{caller: "owner", secretID: secret.ID, authorized: true, material: []byte("owner-key-owner")},
		{caller: "heir", secretID: secret.ID, authorized: false, expectErr: vault.ErrUnauthorized},
		{caller: "witness", secretID: secret.ID, authorized: false, expectErr: vault.ErrUnauthorized},
		{caller: "owner", secretID: uuid.NewString(), expectErr: vault.ErrSecretDoesNotExist},
	})

	assert.Nil(uut.ConfirmXOutOfY(utCtx, "witness", policy.ID, true))

	// Unlocked policy
	checkCases([]testCase{
		{caller: "owner", secretID: secret.ID, authorized: true, material: []byte("owner-key-owner")},
		{caller: "heir", secretID: secret.ID, authorized: true, material: []byte("heir-key")},
		{caller: "witness", secretID: secret.ID, authorized: false, expectErr: vault.ErrUnauthorized},
	})

	// Release reads the policies themselves, so a drifted beneficiary registry changes nothing
	assert.Nil(dbClient.UseDatabaseInTransaction(
		utCtx, func(ctx context.Context, dbClient db.Database) error {
			return dbClient.ClearRegistry(ctx, models.RegistryRoleBeneficiary)
		},
	))
	checkCases([]testCase{
		{caller: "heir", secretID: secret.ID, authorized: true, material: []byte("heir-key")},
		{caller: "witness", secretID: secret.ID, authorized: false, expectErr: vault.ErrUnauthorized},
	})
}
