package models

import "time"

// SecretCategoryENUMType secret category ENUM value type
type SecretCategoryENUMType string

const (
	// SecretCategoryPassword login credential
	SecretCategoryPassword SecretCategoryENUMType = "PASSWORD"
	// SecretCategoryNote free form note
	SecretCategoryNote SecretCategoryENUMType = "NOTE"
	// SecretCategoryDocument document
	SecretCategoryDocument SecretCategoryENUMType = "DOCUMENT"
)

// Secret an encrypted secret belonging to one owner
//
// The payload fields hold cipher text produced by the client; the vault never decrypts them.
type Secret struct {
	// ID secret ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required,uuid_rfc4122"`

	// Owner principal which owns the secret. It can not change once set.
	Owner string `json:"owner" gorm:"column:owner;not null;index" validate:"required"`

	// Category secret category
	Category SecretCategoryENUMType `json:"category" gorm:"column:category;not null" validate:"required,secret_category"`

	// Name optional plain text name
	Name *string `json:"name,omitempty" gorm:"column:name;default:null"`

	// Username encrypted user name
	Username []byte `json:"username,omitempty" gorm:"column:username;default:null"`
	// Password encrypted password
	Password []byte `json:"password,omitempty" gorm:"column:password;default:null"`
	// Notes encrypted notes
	Notes []byte `json:"notes,omitempty" gorm:"column:notes;default:null"`

	// URL optional URL
	URL *string `json:"url,omitempty" gorm:"column:url;default:null" validate:"omitempty,url"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// SecretMetadata the non-sensitive description of a secret
type SecretMetadata struct {
	// ID secret ID
	ID string `json:"id"`
	// Name optional plain text name
	Name *string `json:"name,omitempty"`
	// Category secret category
	Category SecretCategoryENUMType `json:"category"`
}

// Metadata the non-sensitive description of the secret
func (s Secret) Metadata() SecretMetadata {
	return SecretMetadata{ID: s.ID, Name: s.Name, Category: s.Category}
}
