package models

import "time"

// Contact a person the user keeps in their address book
type Contact struct {
	// Principal the contact's principal ID
	Principal string `json:"principal" validate:"required"`
	// Name display name
	Name string `json:"name,omitempty"`
	// Email email address
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

/*
User a vault user.

SecretIDs and the keys of KeyBox are kept in lockstep: every tracked secret has exactly one
key box entry. PolicyIDs lists the policies owned by the user.
*/
type User struct {
	// ID the user's principal ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required"`

	// DisplayName display name
	DisplayName string `json:"display_name,omitempty" gorm:"column:display_name"`
	// Email email address
	Email string `json:"email,omitempty" gorm:"column:email" validate:"omitempty,email"`

	// DateLastLogin the last time the user logged in
	DateLastLogin *time.Time `json:"date_last_login,omitempty" gorm:"column:date_last_login;default:null"`

	// Contacts the user's contacts
	Contacts []Contact `json:"contacts" gorm:"column:contacts;serializer:json" validate:"dive"`

	// SecretIDs secrets owned by the user
	SecretIDs []string `json:"secret_ids" gorm:"column:secret_ids;serializer:json"`
	// PolicyIDs policies owned by the user
	PolicyIDs []string `json:"policy_ids" gorm:"column:policy_ids;serializer:json"`

	// KeyBox per secret key material held for the owner
	KeyBox map[string][]byte `json:"key_box" gorm:"column:key_box;serializer:json"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// HasContact whether the principal is already a contact
func (u User) HasContact(principal string) bool {
	for _, c := range u.Contacts {
		if c.Principal == principal {
			return true
		}
	}
	return false
}

// OwnsSecret whether the user tracks the secret
func (u User) OwnsSecret(secretID string) bool {
	_, ok := u.KeyBox[secretID]
	return ok
}

// OwnsPolicy whether the user owns the policy
func (u User) OwnsPolicy(policyID string) bool {
	for _, id := range u.PolicyIDs {
		if id == policyID {
			return true
		}
	}
	return false
}

// RemoveString remove every occurrence of a value from a list, keeping order
func RemoveString(values []string, target string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v != target {
			result = append(result, v)
		}
	}
	return result
}
