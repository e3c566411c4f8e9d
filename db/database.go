package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alwitt/goutils"
	"github.com/alwitt/legacyvault/models"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var (
	// ErrNotFound the entry does not exist
	ErrNotFound = errors.New("entry does not exist")
	// ErrAlreadyExists an entry with the same ID already exists
	ErrAlreadyExists = errors.New("entry already exists")
)

// CommonListEntryQueryFilter common query filter when listing data entries
type CommonListEntryQueryFilter struct {
	Limit  *int
	Offset *int
}

// SystemEventQueryFilter audit event query filter conditions
type SystemEventQueryFilter struct {
	CommonListEntryQueryFilter
	// EventTypes the specific event types to query for
	EventTypes []models.SystemEventTypeENUMType
	// EventsAfter filter for events after this timestamp
	EventsAfter *time.Time
	// EventsBefore filter for events before this timestamp
	EventsBefore *time.Time
}

// UserQueryFilter user query filter conditions
type UserQueryFilter struct {
	CommonListEntryQueryFilter
	// WithLoginOnly only return users which have logged in at least once
	WithLoginOnly bool
}

// SecretQueryFilter secret query filter conditions
type SecretQueryFilter struct {
	CommonListEntryQueryFilter
	// TargetOwner only return secrets of this owner
	TargetOwner *string
	// TargetIDs only return secrets with these IDs
	TargetIDs []string
}

// PolicyQueryFilter policy query filter conditions
type PolicyQueryFilter struct {
	CommonListEntryQueryFilter
	// TargetOwner only return policies of this owner
	TargetOwner *string
	// TargetIDs only return policies with these IDs
	TargetIDs []string
}

// RegistryQueryFilter policy registry query filter conditions
type RegistryQueryFilter struct {
	CommonListEntryQueryFilter
	// TargetRole only return entries of this role
	TargetRole *models.RegistryRoleENUMType
	// TargetPrincipal only return entries of this principal
	TargetPrincipal *string
	// TargetPolicyID only return entries referencing this policy
	TargetPolicyID *string
}

// Database the database handle to interacting with the data base
type Database interface {
	// ------------------------------------------------------------------------------------
	// System audit events

	/*
		ListSystemEvents list captured system events

			@param ctx context.Context - execution context
			@param filters SystemEventQueryFilter - entry listing filter
			@return list of system events
	*/
	ListSystemEvents(
		ctx context.Context, filters SystemEventQueryFilter,
	) ([]models.SystemEventAudit, error)

	/*
		RecordSystemEvent record a system event

			@param ctx context.Context - execution context
			@param eventType models.SystemEventTypeENUMType - event type
			@param metadata interface{} - event metadata
			@return the event entry
	*/
	RecordSystemEvent(
		ctx context.Context, eventType models.SystemEventTypeENUMType, metadata interface{},
	) (models.SystemEventAudit, error)

	// ------------------------------------------------------------------------------------
	// System parameters

	/*
		GetSystemParamEntry fetch the global singleton system parameter entry

			@param ctx context.Context - execution context
			@returns the entry
	*/
	GetSystemParamEntry(ctx context.Context) (models.SystemParams, error)

	/*
		MarkSystemInitializing mark system is initializing

			@param ctx context.Context - execution context
	*/
	MarkSystemInitializing(ctx context.Context) error

	/*
		MarkSystemInitialized mark system fully initialized

			@param ctx context.Context - execution context
	*/
	MarkSystemInitialized(ctx context.Context) error

	/*
		RecordSweepCompleted record the reference time of a completed condition sweep

			@param ctx context.Context - execution context
			@param sweepTime time.Time - the sweep reference time
	*/
	RecordSweepCompleted(ctx context.Context, sweepTime time.Time) error

	// ------------------------------------------------------------------------------------
	// Users

	/*
		DefineNewUser insert a new user

			@param ctx context.Context - execution context
			@param user models.User - the new user
			@returns the stored user
	*/
	DefineNewUser(ctx context.Context, user models.User) (models.User, error)

	/*
		GetUser fetch a user

			@param ctx context.Context - execution context
			@param userID string - the user principal
			@returns the user
	*/
	GetUser(ctx context.Context, userID string) (models.User, error)

	/*
		ListUsers list users

			@param ctx context.Context - execution context
			@param filters UserQueryFilter - entry listing filter
			@returns list of users
	*/
	ListUsers(ctx context.Context, filters UserQueryFilter) ([]models.User, error)

	/*
		UpdateUser replace an existing user

			@param ctx context.Context - execution context
			@param user models.User - the new user state
			@returns the stored user
	*/
	UpdateUser(ctx context.Context, user models.User) (models.User, error)

	/*
		DeleteUser delete a user. Secrets and policies owned by the user are not touched.

			@param ctx context.Context - execution context
			@param userID string - the user principal
			@returns the deleted user
	*/
	DeleteUser(ctx context.Context, userID string) (models.User, error)

	// ------------------------------------------------------------------------------------
	// Secrets

	/*
		DefineNewSecret insert a new secret

			@param ctx context.Context - execution context
			@param secret models.Secret - the new secret
			@returns the stored secret
	*/
	DefineNewSecret(ctx context.Context, secret models.Secret) (models.Secret, error)

	/*
		GetSecret fetch a secret

			@param ctx context.Context - execution context
			@param secretID string - the secret ID
			@returns the secret
	*/
	GetSecret(ctx context.Context, secretID string) (models.Secret, error)

	/*
		ListSecrets list secrets

			@param ctx context.Context - execution context
			@param filters SecretQueryFilter - entry listing filter
			@returns list of secrets
	*/
	ListSecrets(ctx context.Context, filters SecretQueryFilter) ([]models.Secret, error)

	/*
		UpdateSecret replace an existing secret

			@param ctx context.Context - execution context
			@param secret models.Secret - the new secret state
			@returns the stored secret
	*/
	UpdateSecret(ctx context.Context, secret models.Secret) (models.Secret, error)

	/*
		DeleteSecret delete a secret

			@param ctx context.Context - execution context
			@param secretID string - the secret ID
			@returns the deleted secret
	*/
	DeleteSecret(ctx context.Context, secretID string) (models.Secret, error)

	// ------------------------------------------------------------------------------------
	// Policies

	/*
		DefineNewPolicy insert a new policy

			@param ctx context.Context - execution context
			@param policy models.Policy - the new policy
			@returns the stored policy
	*/
	DefineNewPolicy(ctx context.Context, policy models.Policy) (models.Policy, error)

	/*
		GetPolicy fetch a policy

			@param ctx context.Context - execution context
			@param policyID string - the policy ID
			@returns the policy
	*/
	GetPolicy(ctx context.Context, policyID string) (models.Policy, error)

	/*
		ListPolicies list policies

			@param ctx context.Context - execution context
			@param filters PolicyQueryFilter - entry listing filter
			@returns list of policies
	*/
	ListPolicies(ctx context.Context, filters PolicyQueryFilter) ([]models.Policy, error)

	/*
		UpdatePolicy replace an existing policy

			@param ctx context.Context - execution context
			@param policy models.Policy - the new policy state
			@returns the stored policy
	*/
	UpdatePolicy(ctx context.Context, policy models.Policy) (models.Policy, error)

	/*
		DeletePolicy delete a policy. Registry entries are not touched.

			@param ctx context.Context - execution context
			@param policyID string - the policy ID
			@returns the deleted policy
	*/
	DeletePolicy(ctx context.Context, policyID string) (models.Policy, error)

	// ------------------------------------------------------------------------------------
	// Policy registries

	/*
		RegisterPrincipalPolicy link a principal to a policy under a role. Registering an
		existing link is a no-op.

			@param ctx context.Context - execution context
			@param role models.RegistryRoleENUMType - the principal's role
			@param principal string - the principal
			@param policyID string - the policy ID
	*/
	RegisterPrincipalPolicy(
		ctx context.Context, role models.RegistryRoleENUMType, principal string, policyID string,
	) error

	/*
		DeregisterPrincipalPolicy unlink a principal from a policy. Removing a missing link
		is a no-op.

			@param ctx context.Context - execution context
			@param role models.RegistryRoleENUMType - the principal's role
			@param principal string - the principal
			@param policyID string - the policy ID
	*/
	DeregisterPrincipalPolicy(
		ctx context.Context, role models.RegistryRoleENUMType, principal string, policyID string,
	) error

	/*
		ListPrincipalPolicies list IDs of the policies a principal takes part in under a role

			@param ctx context.Context - execution context
			@param role models.RegistryRoleENUMType - the principal's role
			@param principal string - the principal
			@returns policy IDs
	*/
	ListPrincipalPolicies(
		ctx context.Context, role models.RegistryRoleENUMType, principal string,
	) ([]string, error)

	/*
		ListRegistryEntries list registry entries

			@param ctx context.Context - execution context
			@param filters RegistryQueryFilter - entry listing filter
			@returns registry entries
	*/
	ListRegistryEntries(
		ctx context.Context, filters RegistryQueryFilter,
	) ([]models.RegistryEntry, error)

	/*
		ClearRegistry remove every registry entry of a role

			@param ctx context.Context - execution context
			@param role models.RegistryRoleENUMType - the role to clear
	*/
	ClearRegistry(ctx context.Context, role models.RegistryRoleENUMType) error
}

// databaseImpl implements Database
type databaseImpl struct {
	goutils.Component
	db        *gorm.DB
	validator *validator.Validate
}

// newDatabase define a new database client
func newDatabase(_ context.Context, sqlClient *gorm.DB) (Database, error) {
	logTags := log.Fields{"package": "legacyvault", "module": "db", "component": "db-client"}

	instance := &databaseImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		db:        sqlClient,
		validator: validator.New(),
	}

	if err := models.RegisterWithValidator(instance.validator); err != nil {
		return nil, fmt.Errorf("failed to install custom validation macros [%w]", err)
	}

	return instance, nil
}

// applyListFilter apply the common limit and offset settings
func applyListFilter(query *gorm.DB, filters CommonListEntryQueryFilter) *gorm.DB {
	if filters.Limit != nil {
		query = query.Limit(*filters.Limit)
	}
	if filters.Offset != nil {
		query = query.Offset(*filters.Offset)
	}
	return query
}

// entryExists check whether an entry with the ID exists in the table of the model
func (d *databaseImpl) entryExists(model interface{}, id string) (bool, error) {
	var count int64
	if tmp := d.db.Model(model).Where("id = ?", id).Count(&count); tmp.Error != nil {
		return false, tmp.Error
	}
	return count > 0, nil
}

// wrapLookupErr mark gorm's record not found as ErrNotFound
func wrapLookupErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w [%w]", ErrNotFound, err)
	}
	return err
}
