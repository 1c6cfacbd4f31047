// Package domain holds typed identifiers shared across the module. Typed IDs
// prevent cross-type assignment at compile time: a RoleID can never be passed
// where a UserID is expected.
package domain

import (
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "idstore/pkg/domain-errors"
)

// UserID identifies a user aggregate.
type UserID uuid.UUID

func NewUserID() UserID { return UserID(uuid.New()) }

func (id UserID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// ParseUserID parses and validates a user ID at a trust boundary. Empty
// strings, malformed UUIDs, and nil UUIDs are rejected.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return UserID{}, err
	}
	return UserID(parsed), nil
}

func (id UserID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = UserID(parsed)
	return nil
}

// RoleID identifies a role referenced by a role assignment. Role definitions
// live outside this module; only the raw identifier is stored.
type RoleID uuid.UUID

func NewRoleID() RoleID { return RoleID(uuid.New()) }

func (id RoleID) String() string { return uuid.UUID(id).String() }

func (id RoleID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// ParseRoleID parses and validates a role ID at a trust boundary.
func ParseRoleID(raw string) (RoleID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return RoleID{}, err
	}
	return RoleID(parsed), nil
}

func (id RoleID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *RoleID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = RoleID(parsed)
	return nil
}

func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	if !utf8.ValidString(raw) {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be valid UTF-8")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return parsed, nil
}
