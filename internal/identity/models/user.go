package models

import (
	"time"

	"github.com/google/uuid"

	id "idstore/pkg/domain"
)

// Field length limits are part of the persisted-schema contract
// (application_users column widths). Values exceeding them are rejected at
// the validation boundary, never truncated.
const (
	MaxUserNameLength    = 100
	MaxEmailLength       = 150
	MaxPhoneNumberLength = 20
	MaxNameLength        = 50
	MaxAuditActorLength  = 150
)

// FullName is an owned value object: it has no identity of its own and is
// stored inline with the User (first_name/last_name columns), never
// referenced by another entity.
type FullName struct {
	FirstName string
	LastName  string
}

func (n FullName) Validate() error {
	if n.FirstName == "" {
		return invalidf("firstName", "is required")
	}
	if len(n.FirstName) > MaxNameLength {
		return invalidf("firstName", "must be %d characters or less", MaxNameLength)
	}
	if n.LastName == "" {
		return invalidf("lastName", "is required")
	}
	if len(n.LastName) > MaxNameLength {
		return invalidf("lastName", "must be %d characters or less", MaxNameLength)
	}
	return nil
}

// User is the aggregate root for an identity record.
//
// Invariants:
//   - NormalizedUserName is unique across all users (case-insensitive
//     uniqueness of UserName)
//   - Email is unique (exact match) and always present; NormalizedEmail is
//     recomputed whenever Email changes and is a lookup key, not a
//     uniqueness constraint
//   - ConcurrencyStamp changes on every committed mutation; a write
//     presenting a stale stamp is rejected, not merged
//   - CreatedOn is set once and never mutated; ModifiedOn/ModifiedByUserID
//     are absent until the first update
type User struct {
	ID                 id.UserID
	UserName           string
	NormalizedUserName string
	Email              string
	NormalizedEmail    string
	PhoneNumber        string
	FullName           FullName
	ConcurrencyStamp   string
	CreatedOn          time.Time
	CreatedByUserID    string
	ModifiedOn         *time.Time
	ModifiedByUserID   string
}

// NewUser constructs a validated User with a fresh identifier, derived
// normalized forms, an initial concurrency stamp, and the creation audit
// stamp. createdBy may be empty for anonymous self-registration.
func NewUser(userName, email, phoneNumber string, fullName FullName, now time.Time, createdBy string) (*User, error) {
	u := &User{
		ID:               id.NewUserID(),
		UserName:         userName,
		Email:            email,
		PhoneNumber:      phoneNumber,
		FullName:         fullName,
		ConcurrencyStamp: uuid.NewString(),
		CreatedOn:        now.UTC(),
		CreatedByUserID:  createdBy,
	}
	u.NormalizedUserName = NormalizeUserName(userName)
	u.NormalizedEmail = NormalizeEmail(email)
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Validate checks required-ness and length constraints for every field.
func (u *User) Validate() error {
	if u.UserName == "" {
		return invalidf("userName", "is required")
	}
	if len(u.UserName) > MaxUserNameLength {
		return invalidf("userName", "must be %d characters or less", MaxUserNameLength)
	}
	if len(u.NormalizedUserName) > MaxUserNameLength {
		return invalidf("normalizedUserName", "must be %d characters or less", MaxUserNameLength)
	}
	if u.Email == "" {
		return invalidf("email", "is required")
	}
	if len(u.Email) > MaxEmailLength {
		return invalidf("email", "must be %d characters or less", MaxEmailLength)
	}
	if len(u.NormalizedEmail) > MaxEmailLength {
		return invalidf("normalizedEmail", "must be %d characters or less", MaxEmailLength)
	}
	if len(u.PhoneNumber) > MaxPhoneNumberLength {
		return invalidf("phoneNumber", "must be %d characters or less", MaxPhoneNumberLength)
	}
	if err := u.FullName.Validate(); err != nil {
		return err
	}
	if len(u.CreatedByUserID) > MaxAuditActorLength {
		return invalidf("createdByUserId", "must be %d characters or less", MaxAuditActorLength)
	}
	if len(u.ModifiedByUserID) > MaxAuditActorLength {
		return invalidf("modifiedByUserId", "must be %d characters or less", MaxAuditActorLength)
	}
	return nil
}

// UserChanges carries a partial update. Nil fields are left untouched.
type UserChanges struct {
	UserName    *string
	Email       *string
	PhoneNumber *string
	FullName    *FullName
}

// ChangesUserName reports whether the update touches the unique username key.
func (c UserChanges) ChangesUserName() bool { return c.UserName != nil }

// ChangesEmail reports whether the update touches the unique email key.
func (c UserChanges) ChangesEmail() bool { return c.Email != nil }

// ApplyChanges applies a partial update and recomputes the normalized forms
// for any changed key. The result is re-validated; on error the receiver is
// left in an undefined state and must be discarded.
func (u *User) ApplyChanges(c UserChanges) error {
	if c.UserName != nil {
		u.UserName = *c.UserName
		u.NormalizedUserName = NormalizeUserName(*c.UserName)
	}
	if c.Email != nil {
		u.Email = *c.Email
		u.NormalizedEmail = NormalizeEmail(*c.Email)
	}
	if c.PhoneNumber != nil {
		u.PhoneNumber = *c.PhoneNumber
	}
	if c.FullName != nil {
		u.FullName = *c.FullName
	}
	return u.Validate()
}

// RefreshStamp installs a new opaque concurrency stamp. Stores call this
// inside the same atomic unit as the rest of an update so the next writer
// observes a changed stamp.
func (u *User) RefreshStamp() {
	u.ConcurrencyStamp = uuid.NewString()
}

// StampModified records the modification audit stamp. CreatedOn and
// CreatedByUserID are never touched after creation.
func (u *User) StampModified(now time.Time, actor string) {
	t := now.UTC()
	u.ModifiedOn = &t
	u.ModifiedByUserID = actor
}

// Clone returns an independent copy so stores never hand out aliased state.
func (u *User) Clone() *User {
	clone := *u
	if u.ModifiedOn != nil {
		t := *u.ModifiedOn
		clone.ModifiedOn = &t
	}
	return &clone
}
