package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"idstore/internal/identity/audit"
	"idstore/internal/identity/metrics"
	"idstore/internal/identity/models"
	"idstore/internal/identity/store/user"
	id "idstore/pkg/domain"
	dErrors "idstore/pkg/domain-errors"
	"idstore/pkg/platform/sentinel"
	"idstore/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// AuditPublisher records identity lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates user lifecycle and child record management on top of
// a Store, translating storage failures into coded errors for transports.
type Service struct {
	store          user.Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(store user.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer("idstore/identity"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUserRequest carries the caller-supplied fields for a new user.
// Identity, stamps, and normalized forms are derived, never accepted.
type CreateUserRequest struct {
	UserName    string
	Email       string
	PhoneNumber string
	FullName    models.FullName
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "identity.CreateUser")
	defer span.End()
	start := time.Now()

	u, err := models.NewUser(req.UserName, req.Email, req.PhoneNumber, req.FullName,
		requestcontext.Now(ctx), requestcontext.ActorID(ctx))
	if err != nil {
		return nil, translate(err, "invalid user")
	}

	if err := s.store.Create(ctx, u); err != nil {
		s.countRejection(err)
		return nil, translate(err, "failed to create user")
	}
	span.SetAttributes(attribute.String("user.id", u.ID.String()))

	s.logger.InfoContext(ctx, "user created",
		"user_id", u.ID.String(),
		"normalized_user_name", u.NormalizedUserName)
	s.emit(ctx, audit.ActionUserCreated, u.ID, "")
	if s.metrics != nil {
		s.metrics.IncrementUsersCreated()
		s.metrics.ObserveCreateUser(start)
	}
	return u, nil
}

// UpdateUser applies changes when expectedStamp still matches the stored
// record. On success the returned user carries a fresh stamp.
func (s *Service) UpdateUser(ctx context.Context, userID id.UserID, changes models.UserChanges, expectedStamp string) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "identity.UpdateUser",
		trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer span.End()
	start := time.Now()

	updated, err := s.store.Update(ctx, userID, changes, expectedStamp)
	if err != nil {
		s.countRejection(err)
		return nil, translate(err, "failed to update user")
	}

	s.logger.InfoContext(ctx, "user updated", "user_id", userID.String())
	s.emit(ctx, audit.ActionUserUpdated, userID, "")
	if s.metrics != nil {
		s.metrics.IncrementUsersUpdated()
		s.metrics.ObserveUpdateUser(start)
	}
	return updated, nil
}

// DeleteUser removes the user and all of its child records.
func (s *Service) DeleteUser(ctx context.Context, userID id.UserID) error {
	ctx, span := s.tracer.Start(ctx, "identity.DeleteUser",
		trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer span.End()

	if err := s.store.Delete(ctx, userID); err != nil {
		return translate(err, "failed to delete user")
	}

	s.logger.InfoContext(ctx, "user deleted", "user_id", userID.String())
	s.emit(ctx, audit.ActionUserDeleted, userID, "")
	if s.metrics != nil {
		s.metrics.IncrementUsersDeleted()
	}
	return nil
}

func (s *Service) GetUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "identity.GetUser")
	defer span.End()
	start := time.Now()
	defer s.observeFind(start)

	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, translate(err, "failed to load user")
	}
	return u, nil
}

// GetUserByName resolves a username case-insensitively.
func (s *Service) GetUserByName(ctx context.Context, userName string) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "identity.GetUserByName")
	defer span.End()
	start := time.Now()
	defer s.observeFind(start)

	u, err := s.store.FindByNormalizedUserName(ctx, models.NormalizeUserName(userName))
	if err != nil {
		return nil, translate(err, "failed to load user")
	}
	return u, nil
}

// GetUsersByEmail returns every user whose email normalizes to the given
// value. The normalized email is a lookup key, not a uniqueness guard, so
// more than one match is legitimate.
func (s *Service) GetUsersByEmail(ctx context.Context, email string) ([]*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "identity.GetUsersByEmail")
	defer span.End()
	start := time.Now()
	defer s.observeFind(start)

	users, err := s.store.FindByNormalizedEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		return nil, translate(err, "failed to load users")
	}
	return users, nil
}

func (s *Service) AddClaim(ctx context.Context, claim *models.Claim) error {
	if err := claim.Validate(); err != nil {
		return translate(err, "invalid claim")
	}
	if err := s.store.AddClaim(ctx, claim); err != nil {
		s.countRejection(err)
		return translate(err, "failed to add claim")
	}
	s.emit(ctx, audit.ActionClaimAdded, claim.UserID, claim.Name)
	return nil
}

func (s *Service) RemoveClaim(ctx context.Context, userID id.UserID, claimID int64) error {
	if err := s.store.RemoveClaim(ctx, userID, claimID); err != nil {
		return translate(err, "failed to remove claim")
	}
	s.emit(ctx, audit.ActionClaimRemoved, userID, "")
	return nil
}

func (s *Service) ListClaims(ctx context.Context, userID id.UserID) ([]models.Claim, error) {
	claims, err := s.store.ListClaims(ctx, userID)
	if err != nil {
		return nil, translate(err, "failed to list claims")
	}
	return claims, nil
}

func (s *Service) AddLogin(ctx context.Context, login models.Login) error {
	if err := login.Validate(); err != nil {
		return translate(err, "invalid login")
	}
	if err := s.store.AddLogin(ctx, login); err != nil {
		s.countRejection(err)
		return translate(err, "failed to add login")
	}
	s.emit(ctx, audit.ActionLoginAdded, login.UserID, login.Provider)
	return nil
}

func (s *Service) RemoveLogin(ctx context.Context, userID id.UserID, provider, providerKey string) error {
	if err := s.store.RemoveLogin(ctx, userID, provider, providerKey); err != nil {
		return translate(err, "failed to remove login")
	}
	s.emit(ctx, audit.ActionLoginRemoved, userID, provider)
	return nil
}

func (s *Service) ListLogins(ctx context.Context, userID id.UserID) ([]models.Login, error) {
	logins, err := s.store.ListLogins(ctx, userID)
	if err != nil {
		return nil, translate(err, "failed to list logins")
	}
	return logins, nil
}

func (s *Service) SetToken(ctx context.Context, token models.Token) error {
	if err := token.Validate(); err != nil {
		return translate(err, "invalid token")
	}
	if err := s.store.SetToken(ctx, token); err != nil {
		return translate(err, "failed to set token")
	}
	s.emit(ctx, audit.ActionTokenSet, token.UserID, token.Provider)
	return nil
}

func (s *Service) RemoveToken(ctx context.Context, userID id.UserID, provider, name string) error {
	if err := s.store.RemoveToken(ctx, userID, provider, name); err != nil {
		return translate(err, "failed to remove token")
	}
	s.emit(ctx, audit.ActionTokenRemoved, userID, provider)
	return nil
}

func (s *Service) ListTokens(ctx context.Context, userID id.UserID) ([]models.Token, error) {
	tokens, err := s.store.ListTokens(ctx, userID)
	if err != nil {
		return nil, translate(err, "failed to list tokens")
	}
	return tokens, nil
}

func (s *Service) AssignRole(ctx context.Context, assignment models.RoleAssignment) error {
	if err := assignment.Validate(); err != nil {
		return translate(err, "invalid role assignment")
	}
	if err := s.store.AssignRole(ctx, assignment); err != nil {
		s.countRejection(err)
		return translate(err, "failed to assign role")
	}
	s.emit(ctx, audit.ActionRoleAssigned, assignment.UserID, assignment.RoleID.String())
	return nil
}

func (s *Service) RemoveRole(ctx context.Context, userID id.UserID, roleID id.RoleID) error {
	if err := s.store.RemoveRole(ctx, userID, roleID); err != nil {
		return translate(err, "failed to remove role")
	}
	s.emit(ctx, audit.ActionRoleRemoved, userID, roleID.String())
	return nil
}

func (s *Service) ListRoles(ctx context.Context, userID id.UserID) ([]id.RoleID, error) {
	roles, err := s.store.ListRoles(ctx, userID)
	if err != nil {
		return nil, translate(err, "failed to list roles")
	}
	return roles, nil
}

// translate maps store and model errors onto coded errors. Already-coded
// errors pass through untouched.
func translate(err error, internalMsg string) error {
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}

	var validation *models.ValidationError
	if errors.As(err, &validation) {
		return dErrors.Wrap(err, dErrors.CodeValidation, validation.Error())
	}
	var dup *models.DuplicateKeyError
	if errors.As(err, &dup) {
		return dErrors.Wrap(err, dErrors.CodeConflict, dup.Error())
	}

	switch {
	case errors.Is(err, sentinel.ErrStaleStamp):
		return dErrors.Wrap(err, dErrors.CodeConcurrency, "concurrency stamp mismatch")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "conflicting record exists")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "not found")
	case errors.Is(err, sentinel.ErrTimeout):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "storage timeout")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "storage unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
	}
}

func (s *Service) countRejection(err error) {
	if s.metrics == nil {
		return
	}
	var dup *models.DuplicateKeyError
	if errors.As(err, &dup) {
		s.metrics.IncrementDuplicateKey(dup.Field)
		return
	}
	if errors.Is(err, sentinel.ErrStaleStamp) {
		s.metrics.IncrementConcurrencyConflict()
	}
}

func (s *Service) observeFind(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveFindUser(start)
	}
}

func (s *Service) emit(ctx context.Context, action string, userID id.UserID, detail string) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		Action: action,
		UserID: userID,
		Detail: detail,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}
