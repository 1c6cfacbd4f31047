package user

import (
	"context"
	"sync"

	"idstore/internal/identity/models"
	id "idstore/pkg/domain"
	"idstore/pkg/platform/sentinel"
	"idstore/pkg/requestcontext"
)

type loginKey struct {
	provider    string
	providerKey string
}

type tokenKey struct {
	provider string
	name     string
}

// InMemory keeps identity records in process with the same contract as the
// PostgreSQL store. The uniqueness indexes are explicit maps guarded by the
// store mutex, so the check and the write are one atomic unit. It
// intentionally favors clarity over performance.
type InMemory struct {
	mu sync.RWMutex

	users map[id.UserID]*models.User

	// Uniqueness indexes. byNormEmail is deliberately a multimap: the
	// normalized form is a lookup accelerator, not a uniqueness constraint.
	byNormUserName map[string]id.UserID
	byEmail        map[string]id.UserID
	byNormEmail    map[string][]id.UserID

	claims      map[id.UserID][]models.Claim
	logins      map[id.UserID][]models.Login
	loginOwners map[loginKey]id.UserID
	tokens      map[id.UserID]map[tokenKey]models.Token
	roles       map[id.UserID]map[id.RoleID]struct{}

	nextClaimID int64
}

func NewInMemory() *InMemory {
	return &InMemory{
		users:          make(map[id.UserID]*models.User),
		byNormUserName: make(map[string]id.UserID),
		byEmail:        make(map[string]id.UserID),
		byNormEmail:    make(map[string][]id.UserID),
		claims:         make(map[id.UserID][]models.Claim),
		logins:         make(map[id.UserID][]models.Login),
		loginOwners:    make(map[loginKey]id.UserID),
		tokens:         make(map[id.UserID]map[tokenKey]models.Token),
		roles:          make(map[id.UserID]map[id.RoleID]struct{}),
	}
}

func (s *InMemory) Create(_ context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byNormUserName[user.NormalizedUserName]; taken {
		return &models.DuplicateKeyError{Field: "userName"}
	}
	if _, taken := s.byEmail[user.Email]; taken {
		return &models.DuplicateKeyError{Field: "email"}
	}

	stored := user.Clone()
	s.users[stored.ID] = stored
	s.byNormUserName[stored.NormalizedUserName] = stored.ID
	s.byEmail[stored.Email] = stored.ID
	s.byNormEmail[stored.NormalizedEmail] = append(s.byNormEmail[stored.NormalizedEmail], stored.ID)
	return nil
}

func (s *InMemory) Update(ctx context.Context, userID id.UserID, changes models.UserChanges, expectedStamp string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if current.ConcurrencyStamp != expectedStamp {
		return nil, sentinel.ErrStaleStamp
	}

	updated := current.Clone()
	if err := updated.ApplyChanges(changes); err != nil {
		return nil, err
	}

	if updated.NormalizedUserName != current.NormalizedUserName {
		if owner, taken := s.byNormUserName[updated.NormalizedUserName]; taken && owner != userID {
			return nil, &models.DuplicateKeyError{Field: "userName"}
		}
	}
	if updated.Email != current.Email {
		if owner, taken := s.byEmail[updated.Email]; taken && owner != userID {
			return nil, &models.DuplicateKeyError{Field: "email"}
		}
	}

	updated.RefreshStamp()
	updated.StampModified(requestcontext.Now(ctx), requestcontext.ActorID(ctx))
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	s.reindex(current, updated)
	s.users[userID] = updated
	return updated.Clone(), nil
}

func (s *InMemory) reindex(old, updated *models.User) {
	if updated.NormalizedUserName != old.NormalizedUserName {
		delete(s.byNormUserName, old.NormalizedUserName)
		s.byNormUserName[updated.NormalizedUserName] = updated.ID
	}
	if updated.Email != old.Email {
		delete(s.byEmail, old.Email)
		s.byEmail[updated.Email] = updated.ID
	}
	if updated.NormalizedEmail != old.NormalizedEmail {
		s.byNormEmail[old.NormalizedEmail] = removeID(s.byNormEmail[old.NormalizedEmail], old.ID)
		if len(s.byNormEmail[old.NormalizedEmail]) == 0 {
			delete(s.byNormEmail, old.NormalizedEmail)
		}
		s.byNormEmail[updated.NormalizedEmail] = append(s.byNormEmail[updated.NormalizedEmail], updated.ID)
	}
}

func (s *InMemory) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}

	// Cascade: user and all four child kinds go together.
	delete(s.users, userID)
	delete(s.byNormUserName, user.NormalizedUserName)
	delete(s.byEmail, user.Email)
	s.byNormEmail[user.NormalizedEmail] = removeID(s.byNormEmail[user.NormalizedEmail], userID)
	if len(s.byNormEmail[user.NormalizedEmail]) == 0 {
		delete(s.byNormEmail, user.NormalizedEmail)
	}

	delete(s.claims, userID)
	for _, login := range s.logins[userID] {
		delete(s.loginOwners, loginKey{login.Provider, login.ProviderKey})
	}
	delete(s.logins, userID)
	delete(s.tokens, userID)
	delete(s.roles, userID)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[userID]; ok {
		return user.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindByNormalizedUserName(_ context.Context, normalized string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if userID, ok := s.byNormUserName[normalized]; ok {
		return s.users[userID].Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindByNormalizedEmail(_ context.Context, normalized string) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byNormEmail[normalized]
	users := make([]*models.User, 0, len(ids))
	for _, userID := range ids {
		users = append(users, s.users[userID].Clone())
	}
	return users, nil
}

func (s *InMemory) AddClaim(_ context.Context, claim *models.Claim) error {
	if err := claim.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[claim.UserID]; !ok {
		return sentinel.ErrNotFound
	}
	for _, existing := range s.claims[claim.UserID] {
		if existing.Name == claim.Name && existing.Value == claim.Value {
			return &models.DuplicateKeyError{Field: "claim"}
		}
	}
	s.nextClaimID++
	claim.ID = s.nextClaimID
	s.claims[claim.UserID] = append(s.claims[claim.UserID], *claim)
	return nil
}

func (s *InMemory) RemoveClaim(_ context.Context, userID id.UserID, claimID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	claims := s.claims[userID]
	for i, claim := range claims {
		if claim.ID == claimID {
			s.claims[userID] = append(claims[:i], claims[i+1:]...)
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *InMemory) ListClaims(_ context.Context, userID id.UserID) ([]models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Claim{}, s.claims[userID]...), nil
}

func (s *InMemory) AddLogin(_ context.Context, login models.Login) error {
	if err := login.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[login.UserID]; !ok {
		return sentinel.ErrNotFound
	}
	key := loginKey{login.Provider, login.ProviderKey}
	if _, taken := s.loginOwners[key]; taken {
		return &models.DuplicateKeyError{Field: "login"}
	}
	s.loginOwners[key] = login.UserID
	s.logins[login.UserID] = append(s.logins[login.UserID], login)
	return nil
}

func (s *InMemory) RemoveLogin(_ context.Context, userID id.UserID, provider, providerKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logins := s.logins[userID]
	for i, login := range logins {
		if login.Provider == provider && login.ProviderKey == providerKey {
			s.logins[userID] = append(logins[:i], logins[i+1:]...)
			delete(s.loginOwners, loginKey{provider, providerKey})
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *InMemory) ListLogins(_ context.Context, userID id.UserID) ([]models.Login, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Login{}, s.logins[userID]...), nil
}

func (s *InMemory) SetToken(_ context.Context, token models.Token) error {
	if err := token.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[token.UserID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.tokens[token.UserID] == nil {
		s.tokens[token.UserID] = make(map[tokenKey]models.Token)
	}
	s.tokens[token.UserID][tokenKey{token.Provider, token.Name}] = token
	return nil
}

func (s *InMemory) RemoveToken(_ context.Context, userID id.UserID, provider, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tokenKey{provider, name}
	if _, ok := s.tokens[userID][key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.tokens[userID], key)
	return nil
}

func (s *InMemory) ListTokens(_ context.Context, userID id.UserID) ([]models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := make([]models.Token, 0, len(s.tokens[userID]))
	for _, token := range s.tokens[userID] {
		tokens = append(tokens, token)
	}
	return tokens, nil
}

func (s *InMemory) AssignRole(_ context.Context, assignment models.RoleAssignment) error {
	if err := assignment.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[assignment.UserID]; !ok {
		return sentinel.ErrNotFound
	}
	if _, assigned := s.roles[assignment.UserID][assignment.RoleID]; assigned {
		return &models.DuplicateKeyError{Field: "role"}
	}
	if s.roles[assignment.UserID] == nil {
		s.roles[assignment.UserID] = make(map[id.RoleID]struct{})
	}
	s.roles[assignment.UserID][assignment.RoleID] = struct{}{}
	return nil
}

func (s *InMemory) RemoveRole(_ context.Context, userID id.UserID, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[userID][roleID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.roles[userID], roleID)
	return nil
}

func (s *InMemory) ListRoles(_ context.Context, userID id.UserID) ([]id.RoleID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := make([]id.RoleID, 0, len(s.roles[userID]))
	for roleID := range s.roles[userID] {
		roles = append(roles, roleID)
	}
	return roles, nil
}

func removeID(ids []id.UserID, target id.UserID) []id.UserID {
	for i, candidate := range ids {
		if candidate == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

var _ Store = (*InMemory)(nil)
