package vault_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alwitt/legacyvault/db"
	"github.com/alwitt/legacyvault/models"
	"github.com/alwitt/legacyvault/vault"
	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
)

func TestVaultSweepConditions(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, dbClient := prepareTestVault(t)
	registerUsers(t, uut, "active", "dormant", "never")

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := uut.RecordLogin(utCtx, "active", now.Add(-time.Hour))
	assert.Nil(err)
	_, err = uut.RecordLogin(utCtx, "dormant", now.Add(-90*24*time.Hour))
	assert.Nil(err)

	policyIDs := map[string]string{}
	for _, owner := range []string{"active", "dormant", "never"} {
		policy, err := uut.CreatePolicy(utCtx, owner, vault.PolicyCreateParams{})
		assert.Nil(err)
		policy.Beneficiaries = []string{"heir"}
		policy.Conditions = []models.Condition{models.NewLastLoginCondition("", 60)}
		_, err = uut.UpdatePolicy(utCtx, owner, policy)
		assert.Nil(err)
		policyIDs[owner] = policy.ID
	}

	// A fixed date policy owned by an active user
	datePolicy, err := uut.CreatePolicy(utCtx, "active", vault.PolicyCreateParams{})
	assert.Nil(err)
	datePolicy.Conditions = []models.Condition{
		models.NewFixedDateTimeCondition("", now.Add(-time.Minute)),
		models.NewFixedDateTimeCondition("", now.Add(time.Hour)),
	}
	datePolicy.ConditionsLogicalOperator = models.LogicalOperatorAnd
	_, err = uut.UpdatePolicy(utCtx, "active", datePolicy)
	assert.Nil(err)

	// Case 0: first sweep
	report, err := uut.SweepConditions(utCtx, now)
	assert.Nil(err)
	assert.Equal(vault.SweepReport{
		PoliciesExamined: 4, ConditionsTriggered: 2, PoliciesUnlocked: 1,
	}, report)

	unlocked := func(owner string, policyID string) bool {
		view, err := uut.GetPolicyAsOwner(utCtx, owner, policyID)
		assert.Nil(err)
		return view.Policy.ConditionsStatus
	}
	assert.False(unlocked("active", policyIDs["active"]))
	assert.True(unlocked("dormant", policyIDs["dormant"]))
	assert.False(unlocked("never", policyIDs["never"]))
	assert.False(unlocked("active", datePolicy.ID))

	// Case 1: same time again changes nothing
	report, err = uut.SweepConditions(utCtx, now)
	assert.Nil(err)
	assert.Equal(0, report.ConditionsTriggered)
	assert.Equal(0, report.PoliciesUnlocked)

	// Case 2: later sweep completes the fixed date policy
	later := now.Add(2 * time.Hour)
	report, err = uut.SweepConditions(utCtx, later)
	assert.Nil(err)
	assert.Equal(1, report.ConditionsTriggered)
	assert.Equal(1, report.PoliciesUnlocked)
	assert.True(unlocked("active", datePolicy.ID))

	// Case 3: login afterwards does not lock the dormant policy again
	_, err = uut.RecordLogin(utCtx, "dormant", later)
	assert.Nil(err)
	_, err = uut.SweepConditions(utCtx, later.Add(time.Hour))
	assert.Nil(err)
	assert.True(unlocked("dormant", policyIDs["dormant"]))

	assert.Nil(dbClient.UseDatabase(utCtx, func(ctx context.Context, dbClient db.Database) error {
		params, err := dbClient.GetSystemParamEntry(ctx)
		assert.Nil(err)
		assert.NotNil(params.LastSweepAt)
		if params.LastSweepAt != nil {
			assert.True(later.Add(time.Hour).Equal(*params.LastSweepAt))
		}
		assert.Equal(uint64(4), params.SweepsCompleted)
		return err
	}))

	events, err := uut.ListAuditEvents(utCtx, dbFilterOf(models.SystemEventTypeSweepCompleted))
	assert.Nil(err)
	assert.Len(events, 4)
	parsed, err := events[0].ParseMetadata(newTestValidator(t))
	assert.Nil(err)
	assert.Equal(&models.SystemEventSweepRelated{
		PoliciesExamined: 4, ConditionsTriggered: 2, PoliciesUnlocked: 1,
	}, parsed)
}

func TestVaultSweepLongInactivity(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, _ := prepareTestVault(t)
	registerUsers(t, uut, "owner")

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := uut.RecordLogin(utCtx, "owner", now.Add(-time.Hour))
	assert.Nil(err)

	policy, err := uut.CreatePolicy(utCtx, "owner", vault.PolicyCreateParams{})
	assert.Nil(err)

	// Inactivity periods past the longest supported one are refused
	tooLong := policy.Clone()
	tooLong.Conditions = []models.Condition{models.NewLastLoginCondition("idle", 200000)}
	_, err = uut.UpdatePolicy(utCtx, "owner", tooLong)
	assert.True(errors.Is(err, vault.ErrInvalidRequest))

	longest := policy.Clone()
	longest.Conditions = []models.Condition{
		models.NewLastLoginCondition("idle", models.MaxLastLoginDays),
	}
	_, err = uut.UpdatePolicy(utCtx, "owner", longest)
	assert.Nil(err)

	report, err := uut.SweepConditions(utCtx, now)
	assert.Nil(err)
	assert.Equal(vault.SweepReport{PoliciesExamined: 1}, report)

	view, err := uut.GetPolicyAsOwner(utCtx, "owner", policy.ID)
	assert.Nil(err)
	assert.False(view.Policy.ConditionsStatus)
}
