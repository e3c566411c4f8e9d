package models

import "time"

/*
Policy releases a set of the owner's secrets to beneficiaries once its conditions are met.

ConditionsStatus is derived from the conditions and ConditionsLogicalOperator. It must only
be changed through RefreshConditionsStatus.
*/
type Policy struct {
	// ID policy ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required,uuid_rfc4122"`

	// Name optional policy name
	Name *string `json:"name,omitempty" gorm:"column:name;default:null"`

	// Owner principal which owns the policy
	Owner string `json:"owner" gorm:"column:owner;not null;index" validate:"required"`

	// Beneficiaries principals which receive the secrets
	Beneficiaries []string `json:"beneficiaries" gorm:"column:beneficiaries;serializer:json" validate:"dive,required"`

	// Secrets IDs of the secrets covered by the policy
	Secrets []string `json:"secrets" gorm:"column:secrets;serializer:json" validate:"dive,required"`

	// KeyBox per secret key material released to beneficiaries
	KeyBox map[string][]byte `json:"key_box" gorm:"column:key_box;serializer:json"`

	// Conditions the ordered list of release conditions
	Conditions []Condition `json:"conditions" gorm:"column:conditions;serializer:json" validate:"dive"`

	// ConditionsLogicalOperator how conditions combine when there is more than one
	ConditionsLogicalOperator LogicalOperatorENUMType `json:"conditions_logical_operator" gorm:"column:conditions_logical_operator;not null" validate:"required,logical_operator"`

	// ConditionsStatus whether the policy conditions are met
	ConditionsStatus bool `json:"conditions_status" gorm:"column:conditions_status;not null;default:false"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

/*
RefreshConditionsStatus recompute the overall status from the current conditions.

The overall status latches: once a policy has been unlocked, it stays unlocked even if
conditions later report false.

	@returns whether the policy transitioned from locked to unlocked
*/
func (p *Policy) RefreshConditionsStatus() bool {
	if p.ConditionsStatus {
		return false
	}
	p.ConditionsStatus = RecomputeConditionsStatus(p.Conditions, p.ConditionsLogicalOperator)
	return p.ConditionsStatus
}

// IsBeneficiary whether the principal is a beneficiary of the policy
func (p Policy) IsBeneficiary(principal string) bool {
	for _, b := range p.Beneficiaries {
		if b == principal {
			return true
		}
	}
	return false
}

// CoversSecret whether the policy covers the secret
func (p Policy) CoversSecret(secretID string) bool {
	for _, s := range p.Secrets {
		if s == secretID {
			return true
		}
	}
	return false
}

// ValidatorPrincipals unique set of validators across all X_OUT_OF_Y conditions
func (p Policy) ValidatorPrincipals() []string {
	seen := map[string]bool{}
	result := []string{}
	for _, cond := range p.Conditions {
		if cond.Type != ConditionTypeXOutOfY || cond.XOutOfY == nil {
			continue
		}
		for _, v := range cond.XOutOfY.Validators {
			if !seen[v.Principal] {
				seen[v.Principal] = true
				result = append(result, v.Principal)
			}
		}
	}
	return result
}

// Clone deep copy the policy
func (p Policy) Clone() Policy {
	result := p
	if p.Name != nil {
		name := *p.Name
		result.Name = &name
	}
	result.Beneficiaries = append([]string{}, p.Beneficiaries...)
	result.Secrets = append([]string{}, p.Secrets...)
	result.KeyBox = make(map[string][]byte, len(p.KeyBox))
	for k, v := range p.KeyBox {
		result.KeyBox[k] = append([]byte{}, v...)
	}
	result.Conditions = make([]Condition, 0, len(p.Conditions))
	for _, cond := range p.Conditions {
		result.Conditions = append(result.Conditions, CloneCondition(cond))
	}
	return result
}
