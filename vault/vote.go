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
applyVote record a validator's vote on every X_OUT_OF_Y condition listing it, and recompute
the status of those conditions from their tallies

	@param policy *models.Policy - the policy to change
	@param validator string - the voting principal
	@param vote bool - the vote
	@returns number of conditions the vote was recorded on
*/
func applyVote(policy *models.Policy, validator string, vote bool) int {
	touched := 0
	for idx := range policy.Conditions {
		cond := &policy.Conditions[idx]
		if cond.Type != models.ConditionTypeXOutOfY || cond.XOutOfY == nil {
			continue
		}
		if !cond.XOutOfY.HasValidator(validator) {
			continue
		}
		for vIdx := range cond.XOutOfY.Validators {
			if cond.XOutOfY.Validators[vIdx].Principal == validator {
				cond.XOutOfY.Validators[vIdx].Vote = vote
			}
		}
		satisfied, _ := cond.Evaluate(models.User{}, time.Time{})
		cond.SetStatus(satisfied)
		touched++
	}
	return touched
}

/*
ConfirmXOutOfY record the caller's vote on every X_OUT_OF_Y condition of a policy which
lists the caller as validator

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param policyID string - the policy ID
	@param vote bool - the vote
*/
func (v *vaultImpl) ConfirmXOutOfY(
	ctx context.Context, caller string, policyID string, vote bool,
) error {
	logTags := v.LogTags

	if dbErr := v.serialized(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		policy, err := dbClient.GetPolicy(dbCtx, policyID)
		if err != nil {
			return translateLookupErr(err, ErrPolicyDoesNotExist)
		}

		if applyVote(&policy, caller, vote) == 0 {
			return fmt.Errorf(
				"%w: '%s' is not a validator of policy %s", ErrUnauthorized, caller, policyID,
			)
		}
		unlocked := policy.RefreshConditionsStatus()

		if _, err := dbClient.UpdatePolicy(dbCtx, policy); err != nil {
			return err
		}

		log.WithFields(logTags).
			WithField("policy", policyID).
			WithField("validator", caller).
			WithField("vote", vote).
			Debug("Recorded validator vote")
		if _, err := dbClient.RecordSystemEvent(
			dbCtx,
			models.SystemEventTypeValidatorVoted,
			models.SystemEventVoteRelated{PolicyID: policyID, Validator: caller, Vote: vote},
		); err != nil {
			return err
		}
		if unlocked {
			return recordPolicyUnlocked(dbCtx, dbClient, logTags, policy)
		}
		return nil
	}); dbErr != nil {
		return fmt.Errorf("failed to record vote on policy %s [%w]", policyID, dbErr)
	}
	return nil
}
