package models

import (
	"fmt"
	"math"
	"time"
)

// ConditionTypeENUMType policy condition type ENUM value type
type ConditionTypeENUMType string

const (
	// ConditionTypeLastLogin condition satisfied once the owner has not logged in for a period
	ConditionTypeLastLogin ConditionTypeENUMType = "LAST_LOGIN"
	// ConditionTypeFixedDateTime condition satisfied once a fixed point in time has passed
	ConditionTypeFixedDateTime ConditionTypeENUMType = "FIXED_DATE_TIME"
	// ConditionTypeXOutOfY condition satisfied once a quorum of validators voted yes
	ConditionTypeXOutOfY ConditionTypeENUMType = "X_OUT_OF_Y"
)

// LogicalOperatorENUMType how multiple policy conditions are combined
type LogicalOperatorENUMType string

const (
	// LogicalOperatorAnd all conditions must be satisfied
	LogicalOperatorAnd LogicalOperatorENUMType = "AND"
	// LogicalOperatorOr at least one condition must be satisfied
	LogicalOperatorOr LogicalOperatorENUMType = "OR"
)

// oneDay duration of one day as used by last login conditions
const oneDay = 24 * time.Hour

// MaxLastLoginDays longest inactivity period a last login condition can express
const MaxLastLoginDays = uint64(math.MaxInt64 / int64(oneDay))

// LastLoginCondition satisfied when the owner's last login is older than the set number of days
type LastLoginCondition struct {
	// ID condition ID
	ID string `json:"id" validate:"required"`
	// NumberOfDaysSinceLastLogin days of owner inactivity before the condition is met
	NumberOfDaysSinceLastLogin uint64 `json:"number_of_days_since_last_login" validate:"gte=1,lte=106751"`
	// Status whether the condition has been met
	Status bool `json:"status"`
}

// FixedDateTimeCondition satisfied once the specified time is reached
type FixedDateTimeCondition struct {
	// ID condition ID
	ID string `json:"id" validate:"required"`
	// Time the release time
	Time time.Time `json:"time" validate:"required"`
	// Status whether the condition has been met
	Status bool `json:"status"`
}

// Validator a third party whose vote counts towards a XOutOfY condition
type Validator struct {
	// Principal the validator's principal ID
	Principal string `json:"principal" validate:"required"`
	// Vote the validator's current vote
	Vote bool `json:"vote"`
}

// XOutOfYCondition satisfied once at least quorum validators voted yes
type XOutOfYCondition struct {
	// ID condition ID
	ID string `json:"id" validate:"required"`
	// Validators the validators of the condition
	Validators []Validator `json:"validators" validate:"required,min=1,dive"`
	// Quorum number of yes votes needed
	Quorum uint64 `json:"quorum" validate:"gte=1"`
	// Question the question put to the validators
	Question string `json:"question"`
	// Status whether the condition has been met
	Status bool `json:"status"`
}

// YesVotes count the validators which voted yes
func (c XOutOfYCondition) YesVotes() uint64 {
	var count uint64
	for _, v := range c.Validators {
		if v.Vote {
			count++
		}
	}
	return count
}

// HasValidator whether the principal is one of the condition's validators
func (c XOutOfYCondition) HasValidator(principal string) bool {
	for _, v := range c.Validators {
		if v.Principal == principal {
			return true
		}
	}
	return false
}

/*
Condition one policy condition.

Exactly one of the variant fields is populated, and it must match Type.
*/
type Condition struct {
	// Type condition type
	Type ConditionTypeENUMType `json:"type" validate:"required,condition_type"`
	// LastLogin populated when Type is LAST_LOGIN
	LastLogin *LastLoginCondition `json:"last_login,omitempty" validate:"omitempty"`
	// FixedDateTime populated when Type is FIXED_DATE_TIME
	FixedDateTime *FixedDateTimeCondition `json:"fixed_date_time,omitempty" validate:"omitempty"`
	// XOutOfY populated when Type is X_OUT_OF_Y
	XOutOfY *XOutOfYCondition `json:"x_out_of_y,omitempty" validate:"omitempty"`
}

// NewLastLoginCondition helper to define a LAST_LOGIN condition
func NewLastLoginCondition(id string, days uint64) Condition {
	return Condition{
		Type:      ConditionTypeLastLogin,
		LastLogin: &LastLoginCondition{ID: id, NumberOfDaysSinceLastLogin: days},
	}
}

// NewFixedDateTimeCondition helper to define a FIXED_DATE_TIME condition
func NewFixedDateTimeCondition(id string, releaseAt time.Time) Condition {
	return Condition{
		Type:          ConditionTypeFixedDateTime,
		FixedDateTime: &FixedDateTimeCondition{ID: id, Time: releaseAt},
	}
}

// NewXOutOfYCondition helper to define a X_OUT_OF_Y condition
func NewXOutOfYCondition(
	id string, question string, quorum uint64, validators ...string,
) Condition {
	entries := make([]Validator, 0, len(validators))
	for _, principal := range validators {
		entries = append(entries, Validator{Principal: principal})
	}
	return Condition{
		Type: ConditionTypeXOutOfY,
		XOutOfY: &XOutOfYCondition{
			ID: id, Validators: entries, Quorum: quorum, Question: question,
		},
	}
}

// CheckShape verify the populated variant matches the condition type
func (c Condition) CheckShape() error {
	populated := 0
	if c.LastLogin != nil {
		populated++
	}
	if c.FixedDateTime != nil {
		populated++
	}
	if c.XOutOfY != nil {
		populated++
	}
	if populated != 1 {
		return fmt.Errorf("condition must hold exactly one variant, found %d", populated)
	}

	switch c.Type {
	case ConditionTypeLastLogin:
		if c.LastLogin == nil {
			return fmt.Errorf("condition type '%s' is missing its parameters", c.Type)
		}
		if c.LastLogin.NumberOfDaysSinceLastLogin > MaxLastLoginDays {
			return fmt.Errorf(
				"condition %s inactivity of %d days exceeds %d",
				c.LastLogin.ID, c.LastLogin.NumberOfDaysSinceLastLogin, MaxLastLoginDays,
			)
		}
	case ConditionTypeFixedDateTime:
		if c.FixedDateTime == nil {
			return fmt.Errorf("condition type '%s' is missing its parameters", c.Type)
		}
	case ConditionTypeXOutOfY:
		if c.XOutOfY == nil {
			return fmt.Errorf("condition type '%s' is missing its parameters", c.Type)
		}
		if c.XOutOfY.Quorum > uint64(len(c.XOutOfY.Validators)) {
			return fmt.Errorf(
				"condition %s quorum %d exceeds validator count %d",
				c.XOutOfY.ID, c.XOutOfY.Quorum, len(c.XOutOfY.Validators),
			)
		}
		seen := map[string]bool{}
		for _, v := range c.XOutOfY.Validators {
			if seen[v.Principal] {
				return fmt.Errorf(
					"condition %s lists validator %s more than once", c.XOutOfY.ID, v.Principal,
				)
			}
			seen[v.Principal] = true
		}
	default:
		return fmt.Errorf("unknown condition type '%s'", c.Type)
	}
	return nil
}

/*
SameGate whether two conditions gate on the same parameters. The condition ID, status,
and validator votes are not compared.

	@param other Condition - the condition to compare against
	@returns whether both conditions would be met under the same circumstances
*/
func (c Condition) SameGate(other Condition) bool {
	if c.Type != other.Type {
		return false
	}
	switch c.Type {
	case ConditionTypeLastLogin:
		return c.LastLogin != nil && other.LastLogin != nil &&
			c.LastLogin.NumberOfDaysSinceLastLogin == other.LastLogin.NumberOfDaysSinceLastLogin
	case ConditionTypeFixedDateTime:
		return c.FixedDateTime != nil && other.FixedDateTime != nil &&
			c.FixedDateTime.Time.Equal(other.FixedDateTime.Time)
	case ConditionTypeXOutOfY:
		if c.XOutOfY == nil || other.XOutOfY == nil {
			return false
		}
		if c.XOutOfY.Quorum != other.XOutOfY.Quorum ||
			len(c.XOutOfY.Validators) != len(other.XOutOfY.Validators) {
			return false
		}
		for _, v := range c.XOutOfY.Validators {
			if !other.XOutOfY.HasValidator(v.Principal) {
				return false
			}
		}
		return true
	}
	return false
}

// GetID the condition ID
func (c Condition) GetID() string {
	switch c.Type {
	case ConditionTypeLastLogin:
		if c.LastLogin != nil {
			return c.LastLogin.ID
		}
	case ConditionTypeFixedDateTime:
		if c.FixedDateTime != nil {
			return c.FixedDateTime.ID
		}
	case ConditionTypeXOutOfY:
		if c.XOutOfY != nil {
			return c.XOutOfY.ID
		}
	}
	return ""
}

// SetID set the condition ID
func (c *Condition) SetID(id string) {
	switch c.Type {
	case ConditionTypeLastLogin:
		if c.LastLogin != nil {
			c.LastLogin.ID = id
		}
	case ConditionTypeFixedDateTime:
		if c.FixedDateTime != nil {
			c.FixedDateTime.ID = id
		}
	case ConditionTypeXOutOfY:
		if c.XOutOfY != nil {
			c.XOutOfY.ID = id
		}
	}
}

// GetStatus whether the condition has been met
func (c Condition) GetStatus() bool {
	switch c.Type {
	case ConditionTypeLastLogin:
		return c.LastLogin != nil && c.LastLogin.Status
	case ConditionTypeFixedDateTime:
		return c.FixedDateTime != nil && c.FixedDateTime.Status
	case ConditionTypeXOutOfY:
		return c.XOutOfY != nil && c.XOutOfY.Status
	}
	return false
}

// SetStatus record whether the condition has been met
func (c *Condition) SetStatus(status bool) {
	switch c.Type {
	case ConditionTypeLastLogin:
		if c.LastLogin != nil {
			c.LastLogin.Status = status
		}
	case ConditionTypeFixedDateTime:
		if c.FixedDateTime != nil {
			c.FixedDateTime.Status = status
		}
	case ConditionTypeXOutOfY:
		if c.XOutOfY != nil {
			c.XOutOfY.Status = status
		}
	}
}

/*
Evaluate compute whether the condition is currently met. This does not change the
condition.

A LAST_LOGIN condition can not be evaluated until the owner has logged in at least once;
in that case evaluable is false and the caller must leave the status unchanged.

	@param owner User - snapshot of the policy owner
	@param now time.Time - the evaluation time
	@returns whether the condition is met, and whether it could be evaluated at all
*/
func (c Condition) Evaluate(owner User, now time.Time) (satisfied bool, evaluable bool) {
	switch c.Type {
	case ConditionTypeLastLogin:
		if c.LastLogin == nil || owner.DateLastLogin == nil {
			return false, false
		}
		// An inactivity period time.Duration can't hold is never reached
		if c.LastLogin.NumberOfDaysSinceLastLogin > MaxLastLoginDays {
			return false, true
		}
		inactivity := time.Duration(c.LastLogin.NumberOfDaysSinceLastLogin) * oneDay
		return owner.DateLastLogin.Before(now.Add(-inactivity)), true

	case ConditionTypeFixedDateTime:
		if c.FixedDateTime == nil {
			return false, false
		}
		return !now.Before(c.FixedDateTime.Time), true

	case ConditionTypeXOutOfY:
		if c.XOutOfY == nil {
			return false, false
		}
		return c.XOutOfY.YesVotes() >= c.XOutOfY.Quorum, true
	}
	return false, false
}

/*
RecomputeConditionsStatus combine individual condition statuses into the overall status.

A policy without conditions is never satisfied.

	@param conditions []Condition - the policy conditions
	@param operator LogicalOperatorENUMType - how to combine the conditions
	@returns the combined status
*/
func RecomputeConditionsStatus(
	conditions []Condition, operator LogicalOperatorENUMType,
) bool {
	switch len(conditions) {
	case 0:
		return false
	case 1:
		return conditions[0].GetStatus()
	}

	if operator == LogicalOperatorOr {
		for _, cond := range conditions {
			if cond.GetStatus() {
				return true
			}
		}
		return false
	}

	for _, cond := range conditions {
		if !cond.GetStatus() {
			return false
		}
	}
	return true
}

// CloneCondition deep copy a condition
func CloneCondition(c Condition) Condition {
	result := Condition{Type: c.Type}
	if c.LastLogin != nil {
		tmp := *c.LastLogin
		result.LastLogin = &tmp
	}
	if c.FixedDateTime != nil {
		tmp := *c.FixedDateTime
		result.FixedDateTime = &tmp
	}
	if c.XOutOfY != nil {
		tmp := *c.XOutOfY
		tmp.Validators = append([]Validator{}, c.XOutOfY.Validators...)
		result.XOutOfY = &tmp
	}
	return result
}
