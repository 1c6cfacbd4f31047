package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFullName() FullName {
	return FullName{FirstName: "Jane", LastName: "Doe"}
}

func TestNewUser(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	t.Run("derives normalized forms", func(t *testing.T) {
		u, err := NewUser("alice", "Alice@Example.com", "", validFullName(), now, "")
		require.NoError(t, err)
		assert.Equal(t, "ALICE", u.NormalizedUserName)
		assert.Equal(t, "ALICE@EXAMPLE.COM", u.NormalizedEmail)
		assert.Equal(t, "alice", u.UserName)
		assert.Equal(t, "Alice@Example.com", u.Email)
	})

	t.Run("sets creation audit stamp exactly once", func(t *testing.T) {
		u, err := NewUser("alice", "a@x.com", "", validFullName(), now, "admin-7")
		require.NoError(t, err)
		assert.Equal(t, now, u.CreatedOn)
		assert.Equal(t, "admin-7", u.CreatedByUserID)
		assert.Nil(t, u.ModifiedOn)
		assert.Empty(t, u.ModifiedByUserID)
	})

	t.Run("anonymous registration leaves creator absent", func(t *testing.T) {
		u, err := NewUser("alice", "a@x.com", "", validFullName(), now, "")
		require.NoError(t, err)
		assert.Empty(t, u.CreatedByUserID)
	})

	t.Run("assigns id and initial concurrency stamp", func(t *testing.T) {
		u, err := NewUser("alice", "a@x.com", "", validFullName(), now, "")
		require.NoError(t, err)
		assert.False(t, u.ID.IsNil())
		assert.NotEmpty(t, u.ConcurrencyStamp)
	})
}

func TestUserValidation(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		userName string
		email    string
		phone    string
		fullName FullName
		field    string
	}{
		{"missing userName", "", "a@x.com", "", validFullName(), "userName"},
		{"userName too long", strings.Repeat("a", 101), "a@x.com", "", validFullName(), "userName"},
		{"missing email", "alice", "", "", validFullName(), "email"},
		{"email too long", "alice", strings.Repeat("a", 151), "", validFullName(), "email"},
		{"phone too long", "alice", "a@x.com", strings.Repeat("1", 21), validFullName(), "phoneNumber"},
		{"missing first name", "alice", "a@x.com", "", FullName{LastName: "Doe"}, "firstName"},
		{"first name too long", "alice", "a@x.com", "", FullName{FirstName: strings.Repeat("a", 51), LastName: "Doe"}, "firstName"},
		{"missing last name", "alice", "a@x.com", "", FullName{FirstName: "Jane"}, "lastName"},
		{"last name too long", "alice", "a@x.com", "", FullName{FirstName: "Jane", LastName: strings.Repeat("a", 51)}, "lastName"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewUser(tc.userName, tc.email, tc.phone, tc.fullName, now, "")
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	t.Run("creator id too long", func(t *testing.T) {
		_, err := NewUser("alice", "a@x.com", "", validFullName(), now, strings.Repeat("a", 151))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "createdByUserId", verr.Field)
	})

	t.Run("boundary lengths are accepted", func(t *testing.T) {
		_, err := NewUser(strings.Repeat("a", 100), strings.Repeat("b", 150), strings.Repeat("1", 20),
			FullName{FirstName: strings.Repeat("c", 50), LastName: strings.Repeat("d", 50)}, now, "")
		require.NoError(t, err)
	})
}

func TestApplyChanges(t *testing.T) {
	now := time.Now()

	t.Run("recomputes normalized email when email changes", func(t *testing.T) {
		u, err := NewUser("alice", "a@x.com", "", validFullName(), now, "")
		require.NoError(t, err)

		email := "New@Mail.com"
		require.NoError(t, u.ApplyChanges(UserChanges{Email: &email}))
		assert.Equal(t, "New@Mail.com", u.Email)
		assert.Equal(t, "NEW@MAIL.COM", u.NormalizedEmail)
		// Username key untouched
		assert.Equal(t, "ALICE", u.NormalizedUserName)
	})

	t.Run("rejects invalid changed field", func(t *testing.T) {
		u, err := NewUser("alice", "a@x.com", "", validFullName(), now, "")
		require.NoError(t, err)

		empty := ""
		err = u.ApplyChanges(UserChanges{Email: &empty})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "email", verr.Field)
	})

	t.Run("nil fields are left untouched", func(t *testing.T) {
		u, err := NewUser("alice", "a@x.com", "555", validFullName(), now, "")
		require.NoError(t, err)

		name := "bob"
		require.NoError(t, u.ApplyChanges(UserChanges{UserName: &name}))
		assert.Equal(t, "a@x.com", u.Email)
		assert.Equal(t, "555", u.PhoneNumber)
		assert.Equal(t, "BOB", u.NormalizedUserName)
	})
}

func TestRefreshStamp(t *testing.T) {
	u, err := NewUser("alice", "a@x.com", "", validFullName(), time.Now(), "")
	require.NoError(t, err)

	seen := map[string]bool{u.ConcurrencyStamp: true}
	for i := 0; i < 10; i++ {
		u.RefreshStamp()
		assert.False(t, seen[u.ConcurrencyStamp], "stamp must differ from all prior stamps")
		seen[u.ConcurrencyStamp] = true
	}
}

func TestNormalizeIsInvariant(t *testing.T) {
	// Dotted and dotless i must normalize identically regardless of locale.
	assert.Equal(t, NormalizeUserName("istanbul"), NormalizeUserName("ISTANBUL"))
	assert.Equal(t, "USER NAME", NormalizeUserName("  user name  "))
}
