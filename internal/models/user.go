package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxConfirmationCodeLength is the widest code the code column stores.
const MaxConfirmationCodeLength = 64

// User is a registered blogger account. The confirmation state lives on the same
// record so that issuing a new code replaces any previous one.
type User struct {
	ID           string    `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	Login        string    `gorm:"size:32;not null" bson:"login" json:"login"`
	LoginKey     string    `gorm:"uniqueIndex;size:32;not null" bson:"loginKey" json:"-"`
	Email        string    `gorm:"uniqueIndex;size:255;not null" bson:"email" json:"email"`
	PasswordHash string    `gorm:"not null" bson:"passwordHash" json:"-"`
	CreatedAt    time.Time `gorm:"index" bson:"createdAt" json:"created_at"`

	EmailConfirmation EmailConfirmation `gorm:"embedded;embeddedPrefix:email_confirmation_" bson:"emailConfirmation" json:"email_confirmation"`
}

// EmailConfirmation tracks the outstanding confirmation code of a user.
type EmailConfirmation struct {
	IsConfirmed bool       `gorm:"not null;default:false;index" bson:"isConfirmed" json:"is_confirmed"`
	Code        *string    `gorm:"uniqueIndex;size:64" bson:"confirmationCode,omitempty" json:"-"`
	ExpiresAt   *time.Time `gorm:"index" bson:"expirationDate,omitempty" json:"-"`
	ConfirmedAt *time.Time `bson:"confirmedAt,omitempty" json:"confirmed_at,omitempty"`
}

// BeforeCreate ensures a UUID and the normalised keys are present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	u.Prepare()
	return nil
}

// Prepare assigns a UUID when none is set and derives the lookup keys the
// unique indexes are built on. Non-gorm stores call it directly.
func (u *User) Prepare() {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.LoginKey = NormalizeLogin(u.Login)
	u.Email = NormalizeEmail(u.Email)
}

// Identity projects the account onto the fields exposed after authentication.
func (u *User) Identity() Identity {
	return Identity{
		UserID:    u.ID,
		Login:     u.Login,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// NormalizeLogin folds a login to the case-insensitive key logins are unique on.
func NormalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// NormalizeEmail lower-cases and trims an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
