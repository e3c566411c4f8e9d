package vault

import (
	"errors"
	"fmt"

	"github.com/alwitt/legacyvault/db"
)

var (
	// ErrUnauthorized caller is not allowed to perform the operation
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUserDoesNotExist the user is not registered
	ErrUserDoesNotExist = errors.New("user does not exist")
	// ErrUserAlreadyExists the user is already registered
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrPolicyDoesNotExist the policy does not exist
	ErrPolicyDoesNotExist = errors.New("policy does not exist")
	// ErrSecretDoesNotExist the secret does not exist
	ErrSecretDoesNotExist = errors.New("secret does not exist")
	// ErrNoPolicyForBeneficiary caller is not a beneficiary of the policy
	ErrNoPolicyForBeneficiary = errors.New("no policy for beneficiary")
	// ErrInvalidPolicyCondition the policy conditions are not met yet
	ErrInvalidPolicyCondition = errors.New("policy conditions are not met")
	// ErrInvariantViolation stored state is inconsistent with the request
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrInvalidRequest the request parameters are not valid
	ErrInvalidRequest = errors.New("invalid request")
)

// translateLookupErr map a store level ErrNotFound into the domain specific error
func translateLookupErr(err error, notFound error) error {
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w [%w]", notFound, err)
	}
	return err
}

// isAlreadyExists whether the error is caused by a duplicate store entry
func isAlreadyExists(err error) bool {
	return errors.Is(err, db.ErrAlreadyExists)
}
