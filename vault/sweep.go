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
sweepPolicy evaluate the time based conditions of one policy

Only conditions which are not yet met are evaluated, and only false to true transitions are
applied. X_OUT_OF_Y conditions are left to the validators.

	@param policy *models.Policy - the policy to change
	@param owner models.User - snapshot of the policy owner
	@param now time.Time - evaluation time
	@returns number of conditions which became true
*/
func sweepPolicy(policy *models.Policy, owner models.User, now time.Time) int {
	triggered := 0
	for idx := range policy.Conditions {
		cond := &policy.Conditions[idx]
		if cond.Type == models.ConditionTypeXOutOfY || cond.GetStatus() {
			continue
		}
		satisfied, evaluable := cond.Evaluate(owner, now)
		if !evaluable || !satisfied {
			continue
		}
		cond.SetStatus(true)
		triggered++
	}
	return triggered
}

/*
SweepConditions evaluate the time based conditions of every policy

	@param ctx context.Context - execution context
	@param now time.Time - evaluation time
	@returns summary of the sweep
*/
func (v *vaultImpl) SweepConditions(ctx context.Context, now time.Time) (SweepReport, error) {
	logTags := v.LogTags

	var report SweepReport
	if dbErr := v.serialized(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		users, err := dbClient.ListUsers(dbCtx, db.UserQueryFilter{})
		if err != nil {
			return err
		}

		for _, owner := range users {
			ownerID := owner.ID
			policies, err := dbClient.ListPolicies(
				dbCtx, db.PolicyQueryFilter{TargetOwner: &ownerID},
			)
			if err != nil {
				return err
			}

			for _, policy := range policies {
				report.PoliciesExamined++
				triggered := sweepPolicy(&policy, owner, now)
				if triggered == 0 {
					continue
				}
				report.ConditionsTriggered += triggered
				unlocked := policy.RefreshConditionsStatus()

				if _, err := dbClient.UpdatePolicy(dbCtx, policy); err != nil {
					return err
				}
				log.WithFields(logTags).
					WithField("policy", policy.ID).
					WithField("triggered", triggered).
					Debug("Time based conditions met")

				if unlocked {
					report.PoliciesUnlocked++
					if err := recordPolicyUnlocked(dbCtx, dbClient, logTags, policy); err != nil {
						return err
					}
				}
			}
		}

		if err := dbClient.RecordSweepCompleted(dbCtx, now); err != nil {
			return err
		}
		_, err = dbClient.RecordSystemEvent(
			dbCtx,
			models.SystemEventTypeSweepCompleted,
			models.SystemEventSweepRelated{
				PoliciesExamined:    report.PoliciesExamined,
				ConditionsTriggered: report.ConditionsTriggered,
				PoliciesUnlocked:    report.PoliciesUnlocked,
			},
		)
		return err
	}); dbErr != nil {
		log.WithError(dbErr).WithFields(logTags).Error("Condition sweep failed")
		return SweepReport{}, fmt.Errorf("condition sweep failed [%w]", dbErr)
	}

	log.WithFields(logTags).
		WithField("examined", report.PoliciesExamined).
		WithField("triggered", report.ConditionsTriggered).
		WithField("unlocked", report.PoliciesUnlocked).
		Info("Condition sweep completed")
	return report, nil
}
