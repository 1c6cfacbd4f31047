// Package user provides the persistence surface for identity records. It is
// the only layer external callers touch; uniqueness, optimistic concurrency,
// and audit stamping are enforced inside each store operation as a single
// atomic unit.
package user

import (
	"context"

	"idstore/internal/identity/models"
	id "idstore/pkg/domain"
)

// Store is the operation surface for the User aggregate and its child
// records. Implementations must guarantee:
//
//   - Create/Update check uniqueness of normalizedUserName and email
//     atomically with the write; a conflict fails the whole operation with
//     *models.DuplicateKeyError and leaves prior state untouched.
//   - Update is a compare-and-swap on the concurrency stamp: a stale
//     expectedStamp fails with sentinel.ErrStaleStamp and performs no write;
//     success installs a fresh stamp and the modification audit stamp in the
//     same atomic unit.
//   - Delete cascades to all four child record kinds atomically; a reader
//     never observes a user without its children or vice versa.
//   - Child operations require an existing owner and fail with
//     sentinel.ErrNotFound otherwise.
//
// The store performs no internal retries; retry policy belongs to the
// caller.
type Store interface {
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, userID id.UserID, changes models.UserChanges, expectedStamp string) (*models.User, error)
	Delete(ctx context.Context, userID id.UserID) error

	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByNormalizedUserName(ctx context.Context, normalized string) (*models.User, error)
	// FindByNormalizedEmail returns every user whose normalized email
	// matches. The index is deliberately non-unique: distinct raw emails can
	// normalize to the same value even though email itself is unique.
	FindByNormalizedEmail(ctx context.Context, normalized string) ([]*models.User, error)

	AddClaim(ctx context.Context, claim *models.Claim) error
	RemoveClaim(ctx context.Context, userID id.UserID, claimID int64) error
	ListClaims(ctx context.Context, userID id.UserID) ([]models.Claim, error)

	AddLogin(ctx context.Context, login models.Login) error
	RemoveLogin(ctx context.Context, userID id.UserID, provider, providerKey string) error
	ListLogins(ctx context.Context, userID id.UserID) ([]models.Login, error)

	SetToken(ctx context.Context, token models.Token) error
	RemoveToken(ctx context.Context, userID id.UserID, provider, name string) error
	ListTokens(ctx context.Context, userID id.UserID) ([]models.Token, error)

	AssignRole(ctx context.Context, assignment models.RoleAssignment) error
	RemoveRole(ctx context.Context, userID id.UserID, roleID id.RoleID) error
	ListRoles(ctx context.Context, userID id.UserID) ([]id.RoleID, error)
}
