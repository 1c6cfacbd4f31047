package httptransport

import (
	"time"

	"idstore/internal/identity/models"
	"idstore/internal/identity/service"
)

type fullNamePayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// CreateUserRequest is the wire shape for user creation. Identity, stamps,
// and normalized forms are server-derived and never accepted from clients.
type CreateUserRequest struct {
	UserName    string          `json:"userName"`
	Email       string          `json:"email"`
	PhoneNumber string          `json:"phoneNumber,omitempty"`
	FullName    fullNamePayload `json:"fullName"`
}

func (r CreateUserRequest) toService() service.CreateUserRequest {
	return service.CreateUserRequest{
		UserName:    r.UserName,
		Email:       r.Email,
		PhoneNumber: r.PhoneNumber,
		FullName: models.FullName{
			FirstName: r.FullName.FirstName,
			LastName:  r.FullName.LastName,
		},
	}
}

// UpdateUserRequest carries the changed fields plus the stamp the caller
// last observed. Absent fields keep their stored values.
type UpdateUserRequest struct {
	UserName         *string          `json:"userName,omitempty"`
	Email            *string          `json:"email,omitempty"`
	PhoneNumber      *string          `json:"phoneNumber,omitempty"`
	FullName         *fullNamePayload `json:"fullName,omitempty"`
	ConcurrencyStamp string           `json:"concurrencyStamp"`
}

func (r UpdateUserRequest) toChanges() models.UserChanges {
	changes := models.UserChanges{
		UserName:    r.UserName,
		Email:       r.Email,
		PhoneNumber: r.PhoneNumber,
	}
	if r.FullName != nil {
		changes.FullName = &models.FullName{
			FirstName: r.FullName.FirstName,
			LastName:  r.FullName.LastName,
		}
	}
	return changes
}

// UserResponse is the wire shape of a stored user.
type UserResponse struct {
	ID                 string          `json:"id"`
	UserName           string          `json:"userName"`
	NormalizedUserName string          `json:"normalizedUserName"`
	Email              string          `json:"email"`
	NormalizedEmail    string          `json:"normalizedEmail"`
	PhoneNumber        string          `json:"phoneNumber,omitempty"`
	FullName           fullNamePayload `json:"fullName"`
	ConcurrencyStamp   string          `json:"concurrencyStamp"`
	CreatedOn          time.Time       `json:"createdOn"`
	CreatedByUserID    string          `json:"createdBy,omitempty"`
	ModifiedOn         *time.Time      `json:"modifiedOn,omitempty"`
	ModifiedByUserID   string          `json:"modifiedBy,omitempty"`
}

func fromUser(u *models.User) UserResponse {
	return UserResponse{
		ID:                 u.ID.String(),
		UserName:           u.UserName,
		NormalizedUserName: u.NormalizedUserName,
		Email:              u.Email,
		NormalizedEmail:    u.NormalizedEmail,
		PhoneNumber:        u.PhoneNumber,
		FullName: fullNamePayload{
			FirstName: u.FullName.FirstName,
			LastName:  u.FullName.LastName,
		},
		ConcurrencyStamp: u.ConcurrencyStamp,
		CreatedOn:        u.CreatedOn,
		CreatedByUserID:  u.CreatedByUserID,
		ModifiedOn:       u.ModifiedOn,
		ModifiedByUserID: u.ModifiedByUserID,
	}
}

func fromUsers(users []*models.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, fromUser(u))
	}
	return out
}

// ClaimPayload is the wire shape of a user claim. ID is server-assigned and
// ignored on input.
type ClaimPayload struct {
	ID    int64  `json:"id,omitempty"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

func fromClaims(claims []models.Claim) []ClaimPayload {
	out := make([]ClaimPayload, 0, len(claims))
	for _, claim := range claims {
		out = append(out, ClaimPayload{ID: claim.ID, Name: claim.Name, Value: claim.Value})
	}
	return out
}

// LoginPayload is the wire shape of an external login.
type LoginPayload struct {
	Provider    string `json:"provider"`
	ProviderKey string `json:"providerKey"`
	DisplayName string `json:"displayName,omitempty"`
}

func fromLogins(logins []models.Login) []LoginPayload {
	out := make([]LoginPayload, 0, len(logins))
	for _, login := range logins {
		out = append(out, LoginPayload{
			Provider:    login.Provider,
			ProviderKey: login.ProviderKey,
			DisplayName: login.DisplayName,
		})
	}
	return out
}

// TokenPayload is the wire shape of a provider token.
type TokenPayload struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Value    string `json:"value"`
}

func fromTokens(tokens []models.Token) []TokenPayload {
	out := make([]TokenPayload, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, TokenPayload{
			Provider: token.Provider,
			Name:     token.Name,
			Value:    token.Value,
		})
	}
	return out
}
