// Package vault - conditional access policy engine over the vault stores
package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alwitt/goutils"
	"github.com/alwitt/legacyvault/db"
	"github.com/alwitt/legacyvault/models"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
)

// UserProfile user profile fields the user can edit
type UserProfile struct {
	// DisplayName display name
	DisplayName string `json:"display_name,omitempty"`
	// Email email address
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// SecretParams parameters of a new secret
type SecretParams struct {
	// Category secret category
	Category models.SecretCategoryENUMType `json:"category" validate:"required,secret_category"`
	// Name optional plain text name
	Name *string `json:"name,omitempty"`
	// Username encrypted user name
	Username []byte `json:"username,omitempty"`
	// Password encrypted password
	Password []byte `json:"password,omitempty"`
	// Notes encrypted notes
	Notes []byte `json:"notes,omitempty"`
	// URL optional URL
	URL *string `json:"url,omitempty" validate:"omitempty,url"`
}

// PolicyCreateParams parameters of a new policy
type PolicyCreateParams struct {
	// Name optional policy name
	Name *string `json:"name,omitempty"`
}

// PolicyView a policy along with the metadata of the secrets it covers
type PolicyView struct {
	// Policy the policy
	Policy models.Policy `json:"policy"`
	// Secrets metadata of the covered secrets
	Secrets []models.SecretMetadata `json:"secrets"`
}

// SweepReport summary of one condition sweep
type SweepReport struct {
	// PoliciesExamined number of policies evaluated
	PoliciesExamined int
	// ConditionsTriggered number of conditions which became true
	ConditionsTriggered int
	// PoliciesUnlocked number of policies which became unlocked
	PoliciesUnlocked int
}

/*
Vault the conditional access policy engine.

Each operation runs to completion before the next one starts, and all of its writes are
committed in one transaction. Derived state (the policy registries and the users' policy
and secret lists) is always written after the entity it derives from.
*/
type Vault interface {
	// ------------------------------------------------------------------------------------
	// Users

	/*
		RegisterUser register the caller as a vault user

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param profile UserProfile - user profile
			@returns the new user
	*/
	RegisterUser(ctx context.Context, caller string, profile UserProfile) (models.User, error)

	/*
		GetUser fetch the caller's user entry

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@returns the user
	*/
	GetUser(ctx context.Context, caller string) (models.User, error)

	/*
		UpdateUserProfile update the caller's profile

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param profile UserProfile - new user profile
			@returns the updated user
	*/
	UpdateUserProfile(
		ctx context.Context, caller string, profile UserProfile,
	) (models.User, error)

	/*
		RecordLogin record the caller logged in

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param loginTime time.Time - login time
			@returns the updated user
	*/
	RecordLogin(ctx context.Context, caller string, loginTime time.Time) (models.User, error)

	/*
		AddContact add a contact to the caller's address book

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param contact models.Contact - the contact
			@returns the updated user
	*/
	AddContact(ctx context.Context, caller string, contact models.Contact) (models.User, error)

	/*
		RemoveContact remove a contact from the caller's address book

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param principal string - the contact's principal
			@returns the updated user
	*/
	RemoveContact(ctx context.Context, caller string, principal string) (models.User, error)

	/*
		DeleteUser delete the caller along with every policy and secret it owns

			@param ctx context.Context - execution context
			@param caller string - the caller principal
	*/
	DeleteUser(ctx context.Context, caller string) error

	// ------------------------------------------------------------------------------------
	// Secrets

	/*
		AddSecret store a new secret for the caller

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param params SecretParams - the secret
			@param keyMaterial []byte - the owner's encrypted key material for the secret
			@returns the new secret
	*/
	AddSecret(
		ctx context.Context, caller string, params SecretParams, keyMaterial []byte,
	) (models.Secret, error)

	/*
		GetSecret fetch a secret owned by the caller

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param secretID string - the secret ID
			@returns the secret
	*/
	GetSecret(ctx context.Context, caller string, secretID string) (models.Secret, error)

	/*
		ListSecrets list the secrets owned by the caller

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@returns the secrets
	*/
	ListSecrets(ctx context.Context, caller string) ([]models.Secret, error)

	/*
		UpdateSecret replace the content of a secret owned by the caller

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param secret models.Secret - the new secret state
			@returns the updated secret
	*/
	UpdateSecret(ctx context.Context, caller string, secret models.Secret) (models.Secret, error)

	/*
		RemoveSecret delete a secret owned by the caller, and remove it from every policy

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param secretID string - the secret ID
	*/
	RemoveSecret(ctx context.Context, caller string, secretID string) error

	// ------------------------------------------------------------------------------------
	// Policies

	/*
		CreatePolicy define a new empty policy owned by the caller

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param params PolicyCreateParams - policy parameters
			@returns the new policy
	*/
	CreatePolicy(
		ctx context.Context, caller string, params PolicyCreateParams,
	) (models.Policy, error)

	/*
		UpdatePolicy replace the owner editable state of a policy

		Condition statuses and validator votes are never taken from the request.

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param policy models.Policy - the new policy state
			@returns the updated policy
	*/
	UpdatePolicy(ctx context.Context, caller string, policy models.Policy) (models.Policy, error)

	/*
		DeletePolicy delete a policy owned by the caller

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param policyID string - the policy ID
	*/
	DeletePolicy(ctx context.Context, caller string, policyID string) error

	/*
		GetPolicyAsOwner fetch a policy owned by the caller

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param policyID string - the policy ID
			@returns the policy and its secrets' metadata
	*/
	GetPolicyAsOwner(ctx context.Context, caller string, policyID string) (PolicyView, error)

	/*
		GetPolicyAsBeneficiary fetch an unlocked policy where the caller is a beneficiary

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param policyID string - the policy ID
			@returns the policy and its secrets' metadata
	*/
	GetPolicyAsBeneficiary(
		ctx context.Context, caller string, policyID string,
	) (PolicyView, error)

	/*
		GetSecretAsBeneficiary fetch a secret through an unlocked policy where the caller is a
		beneficiary

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param policyID string - the policy ID
			@param secretID string - the secret ID
			@returns the secret
	*/
	GetSecretAsBeneficiary(
		ctx context.Context, caller string, policyID string, secretID string,
	) (models.Secret, error)

	/*
		ListPoliciesAsOwner list the policies owned by the caller

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@returns the policies
	*/
	ListPoliciesAsOwner(ctx context.Context, caller string) ([]models.Policy, error)

	/*
		ListPoliciesAsBeneficiary list the policies naming the caller as beneficiary

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@returns the policies, without key material
	*/
	ListPoliciesAsBeneficiary(ctx context.Context, caller string) ([]models.Policy, error)

	/*
		ListPoliciesAsValidator list the policies naming the caller as validator

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@returns the policies, without key material
	*/
	ListPoliciesAsValidator(ctx context.Context, caller string) ([]models.Policy, error)

	/*
		ConfirmXOutOfY record the caller's vote on every X_OUT_OF_Y condition of a policy
		which lists the caller as validator

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param policyID string - the policy ID
			@param vote bool - the vote
	*/
	ConfirmXOutOfY(ctx context.Context, caller string, policyID string, vote bool) error

	// ------------------------------------------------------------------------------------
	// Evaluation

	/*
		SweepConditions evaluate the time based conditions of every policy

			@param ctx context.Context - execution context
			@param now time.Time - evaluation time
			@returns summary of the sweep
	*/
	SweepConditions(ctx context.Context, now time.Time) (SweepReport, error)

	/*
		RebuildRegistries re-derive the beneficiary and validator registries from the stored
		policies

			@param ctx context.Context - execution context
	*/
	RebuildRegistries(ctx context.Context) error

	// ------------------------------------------------------------------------------------
	// Key release gate

	/*
		IsReleaseAuthorized whether the caller may obtain key material for a secret

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param secretID string - the secret ID
			@returns whether release is authorized
	*/
	IsReleaseAuthorized(ctx context.Context, caller string, secretID string) (bool, error)

	/*
		AuthorizeKeyRelease fetch the key material of a secret the caller may obtain

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param secretID string - the secret ID
			@returns the key material
	*/
	AuthorizeKeyRelease(ctx context.Context, caller string, secretID string) ([]byte, error)

	// ------------------------------------------------------------------------------------
	// Audit

	/*
		ListAuditEvents list recorded audit events

			@param ctx context.Context - execution context
			@param filters db.SystemEventQueryFilter - entry listing filter
			@returns the events
	*/
	ListAuditEvents(
		ctx context.Context, filters db.SystemEventQueryFilter,
	) ([]models.SystemEventAudit, error)
}

// vaultImpl implements Vault
type vaultImpl struct {
	goutils.Component

	persistence db.Client
	validator   *validator.Validate

	// opLock serializes operations
	opLock sync.Mutex
}

/*
NewVault define a new vault policy engine

	@param ctx context.Context - execution context
	@param persistence db.Client - persistence layer client
	@returns engine instance
*/
func NewVault(ctx context.Context, persistence db.Client) (Vault, error) {
	logTags := log.Fields{"module": "vault", "component": "policy-engine"}

	instance := &vaultImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		persistence: persistence,
		validator:   validator.New(),
	}
	if err := models.RegisterWithValidator(instance.validator); err != nil {
		return nil, fmt.Errorf("failed to install custom validation macros [%w]", err)
	}

	// Bring the system to running state
	if dbErr := persistence.UseDatabaseInTransaction(
		ctx, func(dbCtx context.Context, dbClient db.Database) error {
			params, err := dbClient.GetSystemParamEntry(dbCtx)
			if err != nil {
				return err
			}
			if params.IsRunning() {
				return nil
			}
			if err := dbClient.MarkSystemInitializing(dbCtx); err != nil {
				return err
			}
			return dbClient.MarkSystemInitialized(dbCtx)
		},
	); dbErr != nil {
		return nil, fmt.Errorf("failed to initialize vault system state [%w]", dbErr)
	}

	return instance, nil
}

// serialized run an operation in a transaction while holding the operation lock
func (v *vaultImpl) serialized(
	ctx context.Context, coreLogic func(ctx context.Context, dbClient db.Database) error,
) error {
	v.opLock.Lock()
	defer v.opLock.Unlock()
	return v.persistence.UseDatabaseInTransaction(ctx, coreLogic)
}

// readOnly run a read only operation
func (v *vaultImpl) readOnly(
	ctx context.Context, coreLogic func(ctx context.Context, dbClient db.Database) error,
) error {
	v.opLock.Lock()
	defer v.opLock.Unlock()
	return v.persistence.UseDatabase(ctx, coreLogic)
}

/*
ListAuditEvents list recorded audit events

	@param ctx context.Context - execution context
	@param filters db.SystemEventQueryFilter - entry listing filter
	@returns the events
*/
func (v *vaultImpl) ListAuditEvents(
	ctx context.Context, filters db.SystemEventQueryFilter,
) ([]models.SystemEventAudit, error) {
	var events []models.SystemEventAudit
	if dbErr := v.readOnly(ctx, func(dbCtx context.Context, dbClient db.Database) error {
		var err error
		events, err = dbClient.ListSystemEvents(dbCtx, filters)
		return err
	}); dbErr != nil {
		return nil, fmt.Errorf("failed to list audit events [%w]", dbErr)
	}
	return events, nil
}
