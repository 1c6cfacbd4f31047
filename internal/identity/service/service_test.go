package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"idstore/internal/identity/audit"
	"idstore/internal/identity/models"
	"idstore/internal/identity/service"
	"idstore/internal/identity/service/mocks"
	"idstore/internal/identity/store/user"
	id "idstore/pkg/domain"
	dErrors "idstore/pkg/domain-errors"
)

func newService(t *testing.T, opts ...service.Option) (*service.Service, *user.InMemory) {
	t.Helper()
	store := user.NewInMemory()
	return service.New(store, opts...), store
}

func validRequest() service.CreateUserRequest {
	return service.CreateUserRequest{
		UserName: "alice",
		Email:    "alice@example.com",
		FullName: models.FullName{FirstName: "Alice", LastName: "Liddell"},
	}
}

func TestCreateUserDerivesIdentity(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, validRequest())
	require.NoError(t, err)
	assert.False(t, created.ID.IsNil())
	assert.NotEmpty(t, created.ConcurrencyStamp)
	assert.Equal(t, "ALICE", created.NormalizedUserName)
	assert.Equal(t, "ALICE@EXAMPLE.COM", created.NormalizedEmail)

	found, err := svc.GetUserByName(ctx, "  aLiCe ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestCreateUserValidationIsCoded(t *testing.T) {
	svc, _ := newService(t)

	req := validRequest()
	req.UserName = ""
	_, err := svc.CreateUser(context.Background(), req)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	var validation *models.ValidationError
	assert.ErrorAs(t, err, &validation)
	assert.Equal(t, "userName", validation.Field)
}

func TestCreateUserDuplicateIsConflict(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, validRequest())
	require.NoError(t, err)

	req := validRequest()
	req.UserName = "ALICE"
	req.Email = "other@example.com"
	_, err = svc.CreateUser(ctx, req)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestUpdateUserStaleStampIsConcurrency(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, validRequest())
	require.NoError(t, err)

	phone := "555-0100"
	winner, err := svc.UpdateUser(ctx, created.ID, models.UserChanges{PhoneNumber: &phone}, created.ConcurrencyStamp)
	require.NoError(t, err)
	assert.NotEqual(t, created.ConcurrencyStamp, winner.ConcurrencyStamp)

	other := "555-0101"
	_, err = svc.UpdateUser(ctx, created.ID, models.UserChanges{PhoneNumber: &other}, created.ConcurrencyStamp)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConcurrency))
}

func TestLookupsMapNotFound(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.GetUser(ctx, id.NewUserID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = svc.GetUserByName(ctx, "nobody")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	users, err := svc.GetUsersByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestDeleteUserCascades(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, validRequest())
	require.NoError(t, err)
	require.NoError(t, svc.AddClaim(ctx, &models.Claim{UserID: created.ID, Name: "department", Value: "engineering"}))
	require.NoError(t, svc.AssignRole(ctx, models.RoleAssignment{UserID: created.ID, RoleID: id.NewRoleID()}))

	require.NoError(t, svc.DeleteUser(ctx, created.ID))

	_, err = svc.GetUser(ctx, created.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	err = svc.DeleteUser(ctx, created.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestChildOperationsOnMissingOwner(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	missing := id.NewUserID()

	err := svc.AddClaim(ctx, &models.Claim{UserID: missing, Name: "n", Value: "v"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	err = svc.AddLogin(ctx, models.Login{UserID: missing, Provider: "github", ProviderKey: "gh-1"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestTokenSetIsUpsert(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, validRequest())
	require.NoError(t, err)

	require.NoError(t, svc.SetToken(ctx, models.Token{UserID: created.ID, Provider: "github", Name: "refresh", Value: "v1"}))
	require.NoError(t, svc.SetToken(ctx, models.Token{UserID: created.ID, Provider: "github", Name: "refresh", Value: "v2"}))

	tokens, err := svc.ListTokens(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "v2", tokens[0].Value)
}

func TestAuditEventsEmitted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	publisher := mocks.NewMockAuditPublisher(ctrl)
	svc, _ := newService(t, service.WithAuditPublisher(publisher))
	ctx := context.Background()

	var created audit.Event
	publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, event audit.Event) error {
			created = event
			return nil
		})

	u, err := svc.CreateUser(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, audit.ActionUserCreated, created.Action)
	assert.Equal(t, u.ID, created.UserID)

	publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, event audit.Event) error {
			assert.Equal(t, audit.ActionUserDeleted, event.Action)
			assert.Equal(t, u.ID, event.UserID)
			return nil
		})
	require.NoError(t, svc.DeleteUser(ctx, u.ID))
}

func TestAuditEmitFailureDoesNotFailOperation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	publisher := mocks.NewMockAuditPublisher(ctrl)
	publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(context.DeadlineExceeded)

	svc, _ := newService(t, service.WithAuditPublisher(publisher))

	_, err := svc.CreateUser(context.Background(), validRequest())
	assert.NoError(t, err)
}

func TestNoAuditEventOnFailedWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	publisher := mocks.NewMockAuditPublisher(ctrl)
	// Exactly one emit for the successful create; none for the rejected one.
	publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	svc, _ := newService(t, service.WithAuditPublisher(publisher))
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, validRequest())
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, validRequest())
	require.Error(t, err)
}
