package models

import (
	id "idstore/pkg/domain"
)

// Child records are owned by exactly one User via the raw UserID foreign
// key. They carry no navigation back to a rich User object, which keeps
// ownership direction unambiguous and the object graph acyclic. Deleting a
// User cascades to all four kinds; the store performs the cascade
// explicitly rather than relying on schema-level ON DELETE behavior.

// Claim is a (name, value) assertion about a user. The pair is unique per
// user.
type Claim struct {
	ID     int64
	UserID id.UserID
	Name   string
	Value  string
}

func (c Claim) Validate() error {
	if c.UserID.IsNil() {
		return invalidf("claim.userId", "is required")
	}
	if c.Name == "" {
		return invalidf("claim.name", "is required")
	}
	return nil
}

// Login records an external login. The (Provider, ProviderKey) pair is
// unique across all logins.
type Login struct {
	UserID      id.UserID
	Provider    string
	ProviderKey string
	DisplayName string
}

func (l Login) Validate() error {
	if l.UserID.IsNil() {
		return invalidf("login.userId", "is required")
	}
	if l.Provider == "" {
		return invalidf("login.provider", "is required")
	}
	if l.ProviderKey == "" {
		return invalidf("login.providerKey", "is required")
	}
	return nil
}

// Token stores an externally generated security token, keyed by
// (Provider, Name) per user. Token generation is out of scope; only storage
// lives here.
type Token struct {
	UserID   id.UserID
	Provider string
	Name     string
	Value    string
}

func (t Token) Validate() error {
	if t.UserID.IsNil() {
		return invalidf("token.userId", "is required")
	}
	if t.Provider == "" {
		return invalidf("token.provider", "is required")
	}
	if t.Name == "" {
		return invalidf("token.name", "is required")
	}
	return nil
}

// RoleAssignment links a user to a role defined elsewhere. The
// (UserID, RoleID) pair is unique.
type RoleAssignment struct {
	UserID id.UserID
	RoleID id.RoleID
}

func (r RoleAssignment) Validate() error {
	if r.UserID.IsNil() {
		return invalidf("role.userId", "is required")
	}
	if r.RoleID.IsNil() {
		return invalidf("role.roleId", "is required")
	}
	return nil
}
