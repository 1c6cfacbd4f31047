package user

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"idstore/internal/identity/models"
	id "idstore/pkg/domain"
	"idstore/pkg/platform/sentinel"
	"idstore/pkg/platform/tx"
	"idstore/pkg/requestcontext"
)

// PostgresStore persists identity records in PostgreSQL. Uniqueness is
// enforced by database constraints so the check and the write commit
// together; optimistic concurrency is a row-level compare-and-swap on the
// stamp column inside a single transaction. No lock is held across caller
// round trips.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed identity store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, user_name, normalized_user_name, email, normalized_email,
	phone_number, first_name, last_name, concurrency_stamp,
	created_on, created_by_user_id, modified_on, modified_by_user_id`

// Unique and foreign-key constraint names are part of the persisted-schema
// contract (see migrations); violations are mapped back to the offending
// field.
var constraintFields = map[string]string{
	"UserNameIndex":                      "userName",
	"application_users_email_key":        "email",
	"user_claims_user_id_name_value_key": "claim",
	"user_logins_pkey":                   "login",
	"user_roles_pkey":                    "role",
}

func (s *PostgresStore) Create(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	_, err := s.runner(ctx).ExecContext(ctx, `
		INSERT INTO application_users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		user.ID.String(), user.UserName, user.NormalizedUserName,
		user.Email, user.NormalizedEmail,
		nullString(user.PhoneNumber), user.FullName.FirstName, user.FullName.LastName,
		user.ConcurrencyStamp,
		user.CreatedOn, nullString(user.CreatedByUserID), user.ModifiedOn, nullString(user.ModifiedByUserID),
	)
	if err != nil {
		return mapError("create user", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, userID id.UserID, changes models.UserChanges, expectedStamp string) (*models.User, error) {
	var updated *models.User
	err := s.withTx(ctx, func(txn *sql.Tx) error {
		// FOR UPDATE serializes racing writers on this row so the stamp
		// comparison and the write form one atomic unit. The lock lives only
		// for the duration of this transaction.
		current, err := scanUser(txn.QueryRowContext(ctx, `
			SELECT `+userColumns+` FROM application_users WHERE id = $1 FOR UPDATE
		`, userID.String()))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return mapError("load user for update", err)
		}
		if current.ConcurrencyStamp != expectedStamp {
			return sentinel.ErrStaleStamp
		}

		updated = current.Clone()
		if err := updated.ApplyChanges(changes); err != nil {
			return err
		}
		updated.RefreshStamp()
		updated.StampModified(requestcontext.Now(ctx), requestcontext.ActorID(ctx))
		if err := updated.Validate(); err != nil {
			return err
		}

		_, err = txn.ExecContext(ctx, `
			UPDATE application_users
			SET user_name = $2, normalized_user_name = $3,
				email = $4, normalized_email = $5,
				phone_number = $6, first_name = $7, last_name = $8,
				concurrency_stamp = $9, modified_on = $10, modified_by_user_id = $11
			WHERE id = $1
		`,
			userID.String(), updated.UserName, updated.NormalizedUserName,
			updated.Email, updated.NormalizedEmail,
			nullString(updated.PhoneNumber), updated.FullName.FirstName, updated.FullName.LastName,
			updated.ConcurrencyStamp, updated.ModifiedOn, nullString(updated.ModifiedByUserID),
		)
		if err != nil {
			return mapError("update user", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID id.UserID) error {
	return s.withTx(ctx, func(txn *sql.Tx) error {
		// Children first: the schema has no ON DELETE CASCADE, the store owns
		// the cascade so it stays atomic with the parent delete.
		for _, table := range []string{"user_roles", "user_tokens", "user_logins", "user_claims"} {
			if _, err := txn.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = $1`, userID.String()); err != nil {
				return mapError("cascade delete "+table, err)
			}
		}
		res, err := txn.ExecContext(ctx, `DELETE FROM application_users WHERE id = $1`, userID.String())
		if err != nil {
			return mapError("delete user", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return mapError("delete user", err)
		}
		if affected == 0 {
			return sentinel.ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM application_users WHERE id = $1`, userID.String())
}

func (s *PostgresStore) FindByNormalizedUserName(ctx context.Context, normalized string) (*models.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM application_users WHERE normalized_user_name = $1`, normalized)
}

func (s *PostgresStore) FindByNormalizedEmail(ctx context.Context, normalized string) ([]*models.User, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT `+userColumns+` FROM application_users
		WHERE normalized_email = $1
		ORDER BY created_on
	`, normalized)
	if err != nil {
		return nil, mapError("find by normalized email", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, mapError("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("find by normalized email", err)
	}
	return users, nil
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user, err := scanUser(s.runner(ctx).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, mapError("find user", err)
	}
	return user, nil
}

func (s *PostgresStore) AddClaim(ctx context.Context, claim *models.Claim) error {
	if err := claim.Validate(); err != nil {
		return err
	}
	err := s.runner(ctx).QueryRowContext(ctx, `
		INSERT INTO user_claims (user_id, name, value)
		VALUES ($1, $2, $3)
		RETURNING id
	`, claim.UserID.String(), claim.Name, claim.Value).Scan(&claim.ID)
	if err != nil {
		return mapError("add claim", err)
	}
	return nil
}

func (s *PostgresStore) RemoveClaim(ctx context.Context, userID id.UserID, claimID int64) error {
	return s.removeChild(ctx, `DELETE FROM user_claims WHERE user_id = $1 AND id = $2`,
		"remove claim", userID.String(), claimID)
}

func (s *PostgresStore) ListClaims(ctx context.Context, userID id.UserID) ([]models.Claim, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT id, name, value FROM user_claims WHERE user_id = $1 ORDER BY id
	`, userID.String())
	if err != nil {
		return nil, mapError("list claims", err)
	}
	defer rows.Close()

	claims := make([]models.Claim, 0)
	for rows.Next() {
		claim := models.Claim{UserID: userID}
		if err := rows.Scan(&claim.ID, &claim.Name, &claim.Value); err != nil {
			return nil, mapError("scan claim", err)
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

func (s *PostgresStore) AddLogin(ctx context.Context, login models.Login) error {
	if err := login.Validate(); err != nil {
		return err
	}
	_, err := s.runner(ctx).ExecContext(ctx, `
		INSERT INTO user_logins (login_provider, provider_key, provider_display_name, user_id)
		VALUES ($1, $2, $3, $4)
	`, login.Provider, login.ProviderKey, nullString(login.DisplayName), login.UserID.String())
	if err != nil {
		return mapError("add login", err)
	}
	return nil
}

func (s *PostgresStore) RemoveLogin(ctx context.Context, userID id.UserID, provider, providerKey string) error {
	return s.removeChild(ctx, `
		DELETE FROM user_logins WHERE user_id = $1 AND login_provider = $2 AND provider_key = $3
	`, "remove login", userID.String(), provider, providerKey)
}

func (s *PostgresStore) ListLogins(ctx context.Context, userID id.UserID) ([]models.Login, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT login_provider, provider_key, COALESCE(provider_display_name, '')
		FROM user_logins WHERE user_id = $1
		ORDER BY login_provider, provider_key
	`, userID.String())
	if err != nil {
		return nil, mapError("list logins", err)
	}
	defer rows.Close()

	logins := make([]models.Login, 0)
	for rows.Next() {
		login := models.Login{UserID: userID}
		if err := rows.Scan(&login.Provider, &login.ProviderKey, &login.DisplayName); err != nil {
			return nil, mapError("scan login", err)
		}
		logins = append(logins, login)
	}
	return logins, rows.Err()
}

func (s *PostgresStore) SetToken(ctx context.Context, token models.Token) error {
	if err := token.Validate(); err != nil {
		return err
	}
	_, err := s.runner(ctx).ExecContext(ctx, `
		INSERT INTO user_tokens (user_id, login_provider, name, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, login_provider, name) DO UPDATE SET value = EXCLUDED.value
	`, token.UserID.String(), token.Provider, token.Name, token.Value)
	if err != nil {
		return mapError("set token", err)
	}
	return nil
}

func (s *PostgresStore) RemoveToken(ctx context.Context, userID id.UserID, provider, name string) error {
	return s.removeChild(ctx, `
		DELETE FROM user_tokens WHERE user_id = $1 AND login_provider = $2 AND name = $3
	`, "remove token", userID.String(), provider, name)
}

func (s *PostgresStore) ListTokens(ctx context.Context, userID id.UserID) ([]models.Token, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT login_provider, name, value FROM user_tokens WHERE user_id = $1
		ORDER BY login_provider, name
	`, userID.String())
	if err != nil {
		return nil, mapError("list tokens", err)
	}
	defer rows.Close()

	tokens := make([]models.Token, 0)
	for rows.Next() {
		token := models.Token{UserID: userID}
		if err := rows.Scan(&token.Provider, &token.Name, &token.Value); err != nil {
			return nil, mapError("scan token", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func (s *PostgresStore) AssignRole(ctx context.Context, assignment models.RoleAssignment) error {
	if err := assignment.Validate(); err != nil {
		return err
	}
	_, err := s.runner(ctx).ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
	`, assignment.UserID.String(), assignment.RoleID.String())
	if err != nil {
		return mapError("assign role", err)
	}
	return nil
}

func (s *PostgresStore) RemoveRole(ctx context.Context, userID id.UserID, roleID id.RoleID) error {
	return s.removeChild(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`,
		"remove role", userID.String(), roleID.String())
}

func (s *PostgresStore) ListRoles(ctx context.Context, userID id.UserID) ([]id.RoleID, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT role_id FROM user_roles WHERE user_id = $1 ORDER BY role_id
	`, userID.String())
	if err != nil {
		return nil, mapError("list roles", err)
	}
	defer rows.Close()

	roles := make([]id.RoleID, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, mapError("scan role", err)
		}
		roleID, err := id.ParseRoleID(raw)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, roleID)
	}
	return roles, rows.Err()
}

func (s *PostgresStore) removeChild(ctx context.Context, query, op string, args ...any) error {
	res, err := s.runner(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return mapError(op, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// runner returns the caller-provided transaction from context when present,
// otherwise the pool. This lets a service compose several store calls into
// one transaction without the store knowing.
func (s *PostgresStore) runner(ctx context.Context) runner {
	if txn, ok := tx.From(ctx); ok {
		return txn
	}
	return s.db
}

type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if txn, ok := tx.From(ctx); ok {
		return fn(txn)
	}
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin transaction", err)
	}
	if err := fn(txn); err != nil {
		_ = txn.Rollback()
		return err
	}
	if err := txn.Commit(); err != nil {
		return mapError("commit transaction", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user       models.User
		rawID      string
		phone      sql.NullString
		createdBy  sql.NullString
		modifiedOn sql.NullTime
		modifiedBy sql.NullString
	)
	err := row.Scan(
		&rawID, &user.UserName, &user.NormalizedUserName,
		&user.Email, &user.NormalizedEmail,
		&phone, &user.FullName.FirstName, &user.FullName.LastName,
		&user.ConcurrencyStamp,
		&user.CreatedOn, &createdBy, &modifiedOn, &modifiedBy,
	)
	if err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(rawID)
	if err != nil {
		return nil, err
	}
	user.ID = userID
	user.PhoneNumber = phone.String
	user.CreatedByUserID = createdBy.String
	if modifiedOn.Valid {
		t := modifiedOn.Time.UTC()
		user.ModifiedOn = &t
	}
	user.ModifiedByUserID = modifiedBy.String
	return &user, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// mapError translates driver errors into the store's error contract: unique
// violations become DuplicateKeyError for the offending field, foreign-key
// violations mean the owning user does not exist, deadline errors and
// connection failures surface as their sentinels.
func mapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			if field, ok := constraintFields[pqErr.Constraint]; ok {
				return &models.DuplicateKeyError{Field: field}
			}
			return &models.DuplicateKeyError{Field: pqErr.Constraint}
		case pqErr.Code == "23503":
			return sentinel.ErrNotFound
		case pqErr.Code.Class() == "08":
			return fmt.Errorf("%s: %w", op, sentinel.ErrUnavailable)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, sentinel.ErrTimeout)
	}
	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%s: %w", op, sentinel.ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ Store = (*PostgresStore)(nil)
