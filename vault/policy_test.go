package vault_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alwitt/legacyvault/models"
	"github.com/alwitt/legacyvault/vault"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// addTestSecret store a password secret for the owner
func addTestSecret(t *testing.T, uut vault.Vault, owner string) models.Secret {
	secret, err := uut.AddSecret(
		context.Background(),
		owner,
		vault.SecretParams{Category: models.SecretCategoryPassword, Password: []byte("enc")},
		[]byte("owner-key-"+owner),
	)
	assert.Nil(t, err)
	return secret
}

// lastLoginOrVote policy with a 30 day inactivity condition and a single validator quorum
func lastLoginOrVote(
	policy models.Policy,
	operator models.LogicalOperatorENUMType,
	beneficiary string,
	validator string,
	secretID string,
) models.Policy {
	policy.Beneficiaries = []string{beneficiary}
	policy.Secrets = []string{secretID}
	policy.KeyBox = map[string][]byte{secretID: []byte("policy-key")}
	policy.Conditions = []models.Condition{
		models.NewLastLoginCondition("", 30),
		models.NewXOutOfYCondition("", "Has the owner passed?", 1, validator),
	}
	policy.ConditionsLogicalOperator = operator
	return policy
}

func TestVaultPolicyOrUnlocksOnVote(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, dbClient := prepareTestVault(t)
	registerUsers(t, uut, "owner", "heir", "witness")
	secret := addTestSecret(t, uut, "owner")

	policy, err := uut.CreatePolicy(utCtx, "owner", vault.PolicyCreateParams{})
	assert.Nil(err)
	assert.Empty(policy.Conditions)
	assert.Equal(models.LogicalOperatorAnd, policy.ConditionsLogicalOperator)

	policy, err = uut.UpdatePolicy(
		utCtx,
		"owner",
		lastLoginOrVote(policy, models.LogicalOperatorOr, "heir", "witness", secret.ID),
	)
	assert.Nil(err)
	assert.False(policy.ConditionsStatus)
	for _, cond := range policy.Conditions {
		assert.NotEmpty(cond.GetID())
	}
	assertRegistryMirror(t, dbClient)

	// Locked for the beneficiary
	_, err = uut.GetPolicyAsBeneficiary(utCtx, "heir", policy.ID)
	assert.True(errors.Is(err, vault.ErrInvalidPolicyCondition))
	_, err = uut.GetSecretAsBeneficiary(utCtx, "heir", policy.ID, secret.ID)
	assert.True(errors.Is(err, vault.ErrInvalidPolicyCondition))

	// Only validators may vote
	err = uut.ConfirmXOutOfY(utCtx, "heir", policy.ID, true)
	assert.True(errors.Is(err, vault.ErrUnauthorized))
	err = uut.ConfirmXOutOfY(utCtx, "witness", uuid.NewString(), true)
	assert.True(errors.Is(err, vault.ErrPolicyDoesNotExist))

	assert.Nil(uut.ConfirmXOutOfY(utCtx, "witness", policy.ID, true))

	view, err := uut.GetPolicyAsBeneficiary(utCtx, "heir", policy.ID)
	assert.Nil(err)
	assert.True(view.Policy.ConditionsStatus)
	assert.Nil(view.Policy.KeyBox)
	assert.Len(view.Secrets, 1)
	assert.Equal(secret.ID, view.Secrets[0].ID)

	released, err := uut.GetSecretAsBeneficiary(utCtx, "heir", policy.ID, secret.ID)
	assert.Nil(err)
	assert.Equal(secret.Password, released.Password)

	// Not a beneficiary
	_, err = uut.GetPolicyAsBeneficiary(utCtx, "witness", policy.ID)
	assert.True(errors.Is(err, vault.ErrNoPolicyForBeneficiary))

	// Secret outside the policy
	other := addTestSecret(t, uut, "owner")
	_, err = uut.GetSecretAsBeneficiary(utCtx, "heir", policy.ID, other.ID)
	assert.True(errors.Is(err, vault.ErrUnauthorized))

	// The vote flips back, the policy stays unlocked
	assert.Nil(uut.ConfirmXOutOfY(utCtx, "witness", policy.ID, false))
	view, err = uut.GetPolicyAsOwner(utCtx, "owner", policy.ID)
	assert.Nil(err)
	assert.True(view.Policy.ConditionsStatus)
	assert.False(view.Policy.Conditions[1].GetStatus())

	events, err := uut.ListAuditEvents(utCtx, dbFilterOf(
		models.SystemEventTypeValidatorVoted, models.SystemEventTypePolicyUnlocked,
	))
	assert.Nil(err)
	assert.Len(events, 3)
}

func TestVaultPolicyAndNeedsEveryCondition(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, _ := prepareTestVault(t)
	registerUsers(t, uut, "owner", "heir", "witness")
	secret := addTestSecret(t, uut, "owner")

	policy, err := uut.CreatePolicy(utCtx, "owner", vault.PolicyCreateParams{})
	assert.Nil(err)
	policy, err = uut.UpdatePolicy(
		utCtx,
		"owner",
		lastLoginOrVote(policy, models.LogicalOperatorAnd, "heir", "witness", secret.ID),
	)
	assert.Nil(err)

	assert.Nil(uut.ConfirmXOutOfY(utCtx, "witness", policy.ID, true))
	view, err := uut.GetPolicyAsOwner(utCtx, "owner", policy.ID)
	assert.Nil(err)
	assert.True(view.Policy.Conditions[1].GetStatus())
	assert.False(view.Policy.ConditionsStatus)

	// Owner logged in recently, sweep changes nothing
	now := time.Now().UTC()
	_, err = uut.RecordLogin(utCtx, "owner", now.Add(-5*24*time.Hour))
	assert.Nil(err)
	report, err := uut.SweepConditions(utCtx, now)
	assert.Nil(err)
	assert.Equal(0, report.ConditionsTriggered)
	_, err = uut.GetPolicyAsBeneficiary(utCtx, "heir", policy.ID)
	assert.True(errors.Is(err, vault.ErrInvalidPolicyCondition))

	// Owner inactive long enough
	report, err = uut.SweepConditions(utCtx, now.Add(26*24*time.Hour))
	assert.Nil(err)
	assert.Equal(1, report.ConditionsTriggered)
	assert.Equal(1, report.PoliciesUnlocked)

	_, err = uut.GetPolicyAsBeneficiary(utCtx, "heir", policy.ID)
	assert.Nil(err)
}

func TestVaultPolicyDeleteClearsRegistries(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, dbClient := prepareTestVault(t)
	registerUsers(t, uut, "owner")

	policy, err := uut.CreatePolicy(utCtx, "owner", vault.PolicyCreateParams{})
	assert.Nil(err)
	policy.Beneficiaries = []string{"heir-1", "heir-2"}
	policy.Conditions = []models.Condition{
		models.NewXOutOfYCondition("", "?", 1, "witness"),
	}
	_, err = uut.UpdatePolicy(utCtx, "owner", policy)
	assert.Nil(err)

	for _, heir := range []string{"heir-1", "heir-2"} {
		listed, err := uut.ListPoliciesAsBeneficiary(utCtx, heir)
		assert.Nil(err)
		assert.Len(listed, 1)
		assert.Nil(listed[0].KeyBox)
	}
	listed, err := uut.ListPoliciesAsValidator(utCtx, "witness")
	assert.Nil(err)
	assert.Len(listed, 1)

	owner, err := uut.GetUser(utCtx, "owner")
	assert.Nil(err)
	assert.True(owner.OwnsPolicy(policy.ID))

	// Only the owner can delete
	assert.True(errors.Is(uut.DeletePolicy(utCtx, "heir-1", policy.ID), vault.ErrUnauthorized))
	assert.Nil(uut.DeletePolicy(utCtx, "owner", policy.ID))
	assert.True(
		errors.Is(uut.DeletePolicy(utCtx, "owner", policy.ID), vault.ErrPolicyDoesNotExist),
	)

	for _, heir := range []string{"heir-1", "heir-2"} {
		listed, err := uut.ListPoliciesAsBeneficiary(utCtx, heir)
		assert.Nil(err)
		assert.Empty(listed)
		assert.NotNil(listed)
	}
	listed, err = uut.ListPoliciesAsValidator(utCtx, "witness")
	assert.Nil(err)
	assert.Empty(listed)
	assertRegistryMirror(t, dbClient)

	owner, err = uut.GetUser(utCtx, "owner")
	assert.Nil(err)
	assert.Empty(owner.PolicyIDs)
	assert.False(owner.OwnsPolicy(policy.ID))
}

func TestVaultPolicyUpdateRejectsUnknownSecret(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, dbClient := prepareTestVault(t)
	registerUsers(t, uut, "owner", "stranger")
	secret := addTestSecret(t, uut, "owner")
	foreign := addTestSecret(t, uut, "stranger")

	policy, err := uut.CreatePolicy(utCtx, "owner", vault.PolicyCreateParams{})
	assert.Nil(err)
	policy.Secrets = []string{secret.ID}
	policy.Beneficiaries = []string{"heir"}
	before, err := uut.UpdatePolicy(utCtx, "owner", policy)
	assert.Nil(err)

	// Unknown secret
	{
		changed := before.Clone()
		changed.Secrets = append(changed.Secrets, uuid.NewString())
		changed.Beneficiaries = []string{"someone-else"}
		_, err := uut.UpdatePolicy(utCtx, "owner", changed)
		assert.True(errors.Is(err, vault.ErrSecretDoesNotExist))
	}

	// Secret of another user
	{
		changed := before.Clone()
		changed.Secrets = append(changed.Secrets, foreign.ID)
		_, err := uut.UpdatePolicy(utCtx, "owner", changed)
		assert.True(errors.Is(err, vault.ErrUnauthorized))
	}

	// Key material for a secret outside the policy
	{
		changed := before.Clone()
		changed.KeyBox = map[string][]byte{uuid.NewString(): []byte("k")}
		_, err := uut.UpdatePolicy(utCtx, "owner", changed)
		assert.True(errors.Is(err, vault.ErrInvalidRequest))
	}

	// Malformed condition
	{
		changed := before.Clone()
		changed.Conditions = []models.Condition{
			models.NewXOutOfYCondition("", "?", 2, "witness"),
		}
		_, err := uut.UpdatePolicy(utCtx, "owner", changed)
		assert.True(errors.Is(err, vault.ErrInvalidRequest))
	}

	// Update by someone else
	{
		changed := before.Clone()
		changed.Beneficiaries = []string{"stranger"}
		_, err := uut.UpdatePolicy(utCtx, "stranger", changed)
		assert.True(errors.Is(err, vault.ErrUnauthorized))
	}

	// Unknown policy
	{
		changed := before.Clone()
		changed.ID = uuid.NewString()
		_, err := uut.UpdatePolicy(utCtx, "owner", changed)
		assert.True(errors.Is(err, vault.ErrPolicyDoesNotExist))
	}

	view, err := uut.GetPolicyAsOwner(utCtx, "owner", policy.ID)
	assert.Nil(err)
	assert.Equal(before.Secrets, view.Policy.Secrets)
	assert.Equal(before.Beneficiaries, view.Policy.Beneficiaries)
	assert.Empty(view.Policy.Conditions)
	assertRegistryMirror(t, dbClient)
}

func TestVaultPolicyUpdateKeepsConditionState(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, dbClient := prepareTestVault(t)
	registerUsers(t, uut, "owner")

	policy, err := uut.CreatePolicy(utCtx, "owner", vault.PolicyCreateParams{})
	assert.Nil(err)
	policy.Conditions = []models.Condition{
		models.NewXOutOfYCondition("vote", "?", 2, "v-1", "v-2", "v-3"),
		models.NewFixedDateTimeCondition("date", time.Now().Add(24*time.Hour)),
	}
	policy, err = uut.UpdatePolicy(utCtx, "owner", policy)
	assert.Nil(err)

	assert.Nil(uut.ConfirmXOutOfY(utCtx, "v-1", policy.ID, true))

	// The request tries to set statuses and votes, and swaps out a validator
	changed := policy.Clone()
	changed.Conditions[0] = models.NewXOutOfYCondition("vote", "?", 2, "v-1", "v-2", "v-4")
	changed.Conditions[0].XOutOfY.Validators[1].Vote = true
	changed.Conditions[0].SetStatus(true)
	changed.Conditions[1].SetStatus(true)
	changed.Conditions = append(
		changed.Conditions, models.NewLastLoginCondition("", 7),
	)
	changed.ConditionsStatus = true
	changed.ConditionsLogicalOperator = ""

	updated, err := uut.UpdatePolicy(utCtx, "owner", changed)
	assert.Nil(err)
	assert.False(updated.ConditionsStatus)
	assert.Equal(models.LogicalOperatorAnd, updated.ConditionsLogicalOperator)
	assert.Len(updated.Conditions, 3)

	votes := map[string]bool{}
	for _, validator := range updated.Conditions[0].XOutOfY.Validators {
		votes[validator.Principal] = validator.Vote
	}
	assert.Equal(map[string]bool{"v-1": true, "v-2": false, "v-4": false}, votes)
	assert.False(updated.Conditions[0].GetStatus())
	assert.False(updated.Conditions[1].GetStatus())
	assert.False(updated.Conditions[2].GetStatus())
	assert.NotEmpty(updated.Conditions[2].GetID())

	// Validator registry follows the swap
	listed, err := uut.ListPoliciesAsValidator(utCtx, "v-3")
	assert.Nil(err)
	assert.Empty(listed)
	listed, err = uut.ListPoliciesAsValidator(utCtx, "v-4")
	assert.Nil(err)
	assert.Len(listed, 1)
	assertRegistryMirror(t, dbClient)

	// Duplicate condition IDs
	dup := updated.Clone()
	dup.Conditions = append(dup.Conditions, models.NewLastLoginCondition("date", 3))
	_, err = uut.UpdatePolicy(utCtx, "owner", dup)
	assert.True(errors.Is(err, vault.ErrInvalidRequest))

	// Met conditions whose gate parameters change are met no more
	now := time.Now().UTC()
	gated, err := uut.CreatePolicy(utCtx, "owner", vault.PolicyCreateParams{})
	assert.Nil(err)
	gated.ConditionsLogicalOperator = models.LogicalOperatorAnd
	gated.Conditions = []models.Condition{
		models.NewFixedDateTimeCondition("date", now.Add(-time.Hour)),
		models.NewXOutOfYCondition("vote", "?", 1, "w"),
		models.NewLastLoginCondition("idle", 1),
	}
	_, err = uut.UpdatePolicy(utCtx, "owner", gated)
	assert.Nil(err)
	_, err = uut.RecordLogin(utCtx, "owner", now.Add(-48*time.Hour))
	assert.Nil(err)
	_, err = uut.SweepConditions(utCtx, now)
	assert.Nil(err)

	view, err := uut.GetPolicyAsOwner(utCtx, "owner", gated.ID)
	assert.Nil(err)
	assert.True(view.Policy.Conditions[0].GetStatus())
	assert.True(view.Policy.Conditions[2].GetStatus())
	assert.False(view.Policy.ConditionsStatus)

	// Resubmitting the same gates keeps them met
	same, err := uut.UpdatePolicy(utCtx, "owner", view.Policy.Clone())
	assert.Nil(err)
	assert.True(same.Conditions[0].GetStatus())
	assert.True(same.Conditions[2].GetStatus())

	// Release date pushed out ten years, inactivity period raised
	moved := same.Clone()
	moved.Conditions[0] = models.NewFixedDateTimeCondition("date", now.AddDate(10, 0, 0))
	moved.Conditions[2] = models.NewLastLoginCondition("idle", 30)
	moved, err = uut.UpdatePolicy(utCtx, "owner", moved)
	assert.Nil(err)
	assert.False(moved.Conditions[0].GetStatus())
	assert.False(moved.Conditions[2].GetStatus())

	assert.Nil(uut.ConfirmXOutOfY(utCtx, "w", gated.ID, true))
	view, err = uut.GetPolicyAsOwner(utCtx, "owner", gated.ID)
	assert.Nil(err)
	assert.True(view.Policy.Conditions[1].GetStatus())
	assert.False(view.Policy.ConditionsStatus)

	// Raising the quorum past the votes cast re-tallies the vote condition
	raised := view.Policy.Clone()
	raised.Conditions[1] = models.NewXOutOfYCondition("vote", "?", 2, "w", "x")
	raised, err = uut.UpdatePolicy(utCtx, "owner", raised)
	assert.Nil(err)
	assert.False(raised.Conditions[1].GetStatus())
	assert.True(raised.Conditions[1].XOutOfY.Validators[0].Vote)

	// Lowering it again lets the carried vote meet the quorum
	lowered := raised.Clone()
	lowered.Conditions[1] = models.NewXOutOfYCondition("vote", "?", 1, "w", "x")
	lowered, err = uut.UpdatePolicy(utCtx, "owner", lowered)
	assert.Nil(err)
	assert.True(lowered.Conditions[1].GetStatus())

	// Later sweeps still release once the pushed out gates are reached
	_, err = uut.SweepConditions(utCtx, now.AddDate(10, 0, 1))
	assert.Nil(err)
	view, err = uut.GetPolicyAsOwner(utCtx, "owner", gated.ID)
	assert.Nil(err)
	assert.True(view.Policy.ConditionsStatus)
	assertRegistryMirror(t, dbClient)
}

func TestVaultPolicyListings(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, dbClient := prepareTestVault(t)
	registerUsers(t, uut, "alice", "bob")

	_, err := uut.CreatePolicy(utCtx, "carol", vault.PolicyCreateParams{})
	assert.True(errors.Is(err, vault.ErrUserDoesNotExist))

	name := "for bob"
	alicePolicy, err := uut.CreatePolicy(utCtx, "alice", vault.PolicyCreateParams{Name: &name})
	assert.Nil(err)
	alicePolicy.Beneficiaries = []string{"bob", "bob"}
	alicePolicy, err = uut.UpdatePolicy(utCtx, "alice", alicePolicy)
	assert.Nil(err)
	assert.Equal([]string{"bob"}, alicePolicy.Beneficiaries)

	_, err = uut.CreatePolicy(utCtx, "bob", vault.PolicyCreateParams{})
	assert.Nil(err)

	owned, err := uut.ListPoliciesAsOwner(utCtx, "alice")
	assert.Nil(err)
	assert.Len(owned, 1)
	assert.Equal(name, *owned[0].Name)

	_, err = uut.GetPolicyAsOwner(utCtx, "bob", alicePolicy.ID)
	assert.True(errors.Is(err, vault.ErrUnauthorized))

	benefits, err := uut.ListPoliciesAsBeneficiary(utCtx, "bob")
	assert.Nil(err)
	assert.Len(benefits, 1)
	assert.Equal(alicePolicy.ID, benefits[0].ID)

	benefits, err = uut.ListPoliciesAsBeneficiary(utCtx, "alice")
	assert.Nil(err)
	assert.Empty(benefits)

	alice, err := uut.GetUser(utCtx, "alice")
	assert.Nil(err)
	assert.Equal([]string{alicePolicy.ID}, alice.PolicyIDs)

	// Registries rebuilt from the policies come out the same
	assert.Nil(uut.RebuildRegistries(utCtx))
	assertRegistryMirror(t, dbClient)
	benefits, err = uut.ListPoliciesAsBeneficiary(utCtx, "bob")
	assert.Nil(err)
	assert.Len(benefits, 1)
}
