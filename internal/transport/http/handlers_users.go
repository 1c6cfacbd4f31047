package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"idstore/internal/identity/models"
	"idstore/internal/identity/service"
	id "idstore/pkg/domain"
	dErrors "idstore/pkg/domain-errors"
	"idstore/pkg/platform/httputil"
	"idstore/pkg/requestcontext"
)

// UserService is the surface the handler needs from the identity service.
type UserService interface {
	CreateUser(ctx context.Context, req service.CreateUserRequest) (*models.User, error)
	UpdateUser(ctx context.Context, userID id.UserID, changes models.UserChanges, expectedStamp string) (*models.User, error)
	DeleteUser(ctx context.Context, userID id.UserID) error
	GetUser(ctx context.Context, userID id.UserID) (*models.User, error)
	GetUserByName(ctx context.Context, userName string) (*models.User, error)
	GetUsersByEmail(ctx context.Context, email string) ([]*models.User, error)
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

// UserHandler wires user endpoints to the identity service.
type UserHandler struct {
	service UserService
	logger  *slog.Logger
}

// NewUserHandler constructs a user handler with its dependencies.
func NewUserHandler(service UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: service, logger: logger}
}

// Register mounts user endpoints on the router.
func (h *UserHandler) Register(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/by-name/{userName}", h.handleGetByName)
		r.Get("/by-email/{email}", h.handleGetByEmail)

		r.Route("/{userID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Patch("/", h.handleUpdate)
			r.Delete("/", h.handleDelete)

			r.Get("/claims", h.handleListClaims)
			r.Post("/claims", h.handleAddClaim)
			r.Delete("/claims/{claimID}", h.handleRemoveClaim)

			r.Get("/logins", h.handleListLogins)
			r.Post("/logins", h.handleAddLogin)
			r.Delete("/logins/{provider}/{providerKey}", h.handleRemoveLogin)

			r.Get("/tokens", h.handleListTokens)
			r.Put("/tokens", h.handleSetToken)
			r.Delete("/tokens/{provider}/{name}", h.handleRemoveToken)

			r.Get("/roles", h.handleListRoles)
			r.Put("/roles/{roleID}", h.handleAssignRole)
			r.Delete("/roles/{roleID}", h.handleRemoveRole)
		})
	})
}

func (h *UserHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[CreateUserRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := h.service.CreateUser(ctx, req.toService())
	if err != nil {
		h.logger.WarnContext(ctx, "create user rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromUser(created))
}

func (h *UserHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	u, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromUser(u))
}

func (h *UserHandler) handleGetByName(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetUserByName(r.Context(), chi.URLParam(r, "userName"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromUser(u))
}

func (h *UserHandler) handleGetByEmail(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.GetUsersByEmail(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromUsers(users))
}

func (h *UserHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	req, err := httputil.DecodeJSON[UpdateUserRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.ConcurrencyStamp == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "concurrencyStamp is required"))
		return
	}

	updated, err := h.service.UpdateUser(ctx, userID, req.toChanges(), req.ConcurrencyStamp)
	if err != nil {
		h.logger.WarnContext(ctx, "update user rejected",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID.String(),
			"error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromUser(updated))
}

func (h *UserHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), userID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) handleListClaims(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	claims, err := h.service.ListClaims(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromClaims(claims))
}

func (h *UserHandler) handleAddClaim(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	payload, err := httputil.DecodeJSON[ClaimPayload](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	claim := &models.Claim{UserID: userID, Name: payload.Name, Value: payload.Value}
	if err := h.service.AddClaim(r.Context(), claim); err != nil {
		httputil.WriteError(w, err)
		return
	}
	payload.ID = claim.ID
	httputil.WriteJSON(w, http.StatusCreated, payload)
}

func (h *UserHandler) handleRemoveClaim(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	claimID, err := strconv.ParseInt(chi.URLParam(r, "claimID"), 10, 64)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid claim id"))
		return
	}
	if err := h.service.RemoveClaim(r.Context(), userID, claimID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) handleListLogins(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	logins, err := h.service.ListLogins(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromLogins(logins))
}

func (h *UserHandler) handleAddLogin(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	payload, err := httputil.DecodeJSON[LoginPayload](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	login := models.Login{
		UserID:      userID,
		Provider:    payload.Provider,
		ProviderKey: payload.ProviderKey,
		DisplayName: payload.DisplayName,
	}
	if err := h.service.AddLogin(r.Context(), login); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, payload)
}

func (h *UserHandler) handleRemoveLogin(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	provider := chi.URLParam(r, "provider")
	providerKey := chi.URLParam(r, "providerKey")
	if err := h.service.RemoveLogin(r.Context(), userID, provider, providerKey); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) handleListTokens(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	tokens, err := h.service.ListTokens(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromTokens(tokens))
}

func (h *UserHandler) handleSetToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	payload, err := httputil.DecodeJSON[TokenPayload](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	token := models.Token{
		UserID:   userID,
		Provider: payload.Provider,
		Name:     payload.Name,
		Value:    payload.Value,
	}
	if err := h.service.SetToken(r.Context(), token); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, payload)
}

func (h *UserHandler) handleRemoveToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	provider := chi.URLParam(r, "provider")
	name := chi.URLParam(r, "name")
	if err := h.service.RemoveToken(r.Context(), userID, provider, name); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	roles, err := h.service.ListRoles(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]string, 0, len(roles))
	for _, roleID := range roles {
		out = append(out, roleID.String())
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *UserHandler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	assignment := models.RoleAssignment{UserID: userID, RoleID: roleID}
	if err := h.service.AssignRole(r.Context(), assignment); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), userID, roleID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) userID(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid user id"))
		return id.UserID{}, false
	}
	return userID, true
}

func (h *UserHandler) roleID(w http.ResponseWriter, r *http.Request) (id.RoleID, bool) {
	roleID, err := id.ParseRoleID(chi.URLParam(r, "roleID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid role id"))
		return id.RoleID{}, false
	}
	return roleID, true
}
