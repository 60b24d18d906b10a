package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bloggers/internal/models"
)

// runDirectoryContract exercises behaviour every Directory backend must share.
func runDirectoryContract(t *testing.T, newDirectory func(t *testing.T) Directory) {
	t.Helper()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	newUser := func(login, email string) *models.User {
		return &models.User{
			Login:        login,
			Email:        email,
			PasswordHash: "hash",
			CreatedAt:    base,
		}
	}

	t.Run("create and find", func(t *testing.T) {
		dir := newDirectory(t)
		ctx := context.Background()

		user := newUser("Alice", "alice@example.com")
		require.NoError(t, dir.Create(ctx, user))
		require.NotEmpty(t, user.ID)

		byLogin, err := dir.FindByLoginOrEmail(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, user.ID, byLogin.ID)

		byEmail, err := dir.FindByLoginOrEmail(ctx, "ALICE@example.com")
		require.NoError(t, err)
		require.Equal(t, user.ID, byEmail.ID)

		byID, err := dir.FindByID(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, "Alice", byID.Login)
		require.False(t, byID.EmailConfirmation.IsConfirmed)

		_, err = dir.FindByLoginOrEmail(ctx, "bob")
		require.ErrorIs(t, err, ErrNotFound)

		_, err = dir.FindByLoginOrEmail(ctx, "  ")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unique login and email", func(t *testing.T) {
		dir := newDirectory(t)
		ctx := context.Background()

		require.NoError(t, dir.Create(ctx, newUser("alice", "alice@example.com")))

		err := dir.Create(ctx, newUser("alice", "other@example.com"))
		require.ErrorIs(t, err, ErrDuplicate)

		err = dir.Create(ctx, newUser("other", "alice@example.com"))
		require.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("login uniqueness ignores case", func(t *testing.T) {
		dir := newDirectory(t)
		ctx := context.Background()

		first := newUser("Alice", "a1@example.com")
		require.NoError(t, dir.Create(ctx, first))

		err := dir.Create(ctx, newUser("alice", "a2@example.com"))
		require.ErrorIs(t, err, ErrDuplicate)

		err = dir.Create(ctx, newUser("bob", "A1@Example.com"))
		require.ErrorIs(t, err, ErrDuplicate)

		found, err := dir.FindByLoginOrEmail(ctx, "ALICE")
		require.NoError(t, err)
		require.Equal(t, first.ID, found.ID)
		require.Equal(t, "Alice", found.Login)
	})

	t.Run("confirmation code lifecycle", func(t *testing.T) {
		dir := newDirectory(t)
		ctx := context.Background()

		user := newUser("carol", "carol@example.com")
		require.NoError(t, dir.Create(ctx, user))

		expires := base.Add(time.Hour)
		require.NoError(t, dir.SetConfirmationCode(ctx, user.ID, "abc123", expires))

		found, err := dir.FindByConfirmationCode(ctx, "abc123")
		require.NoError(t, err)
		require.Equal(t, user.ID, found.ID)
		require.NotNil(t, found.EmailConfirmation.ExpiresAt)
		require.True(t, found.EmailConfirmation.ExpiresAt.Equal(expires))

		require.NoError(t, dir.SetConfirmationCode(ctx, user.ID, "def456", expires))
		_, err = dir.FindByConfirmationCode(ctx, "abc123")
		require.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, dir.MarkConfirmed(ctx, user.ID, base.Add(time.Minute)))

		confirmed, err := dir.FindByID(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, confirmed.EmailConfirmation.IsConfirmed)
		require.Nil(t, confirmed.EmailConfirmation.Code)
		require.NotNil(t, confirmed.EmailConfirmation.ConfirmedAt)

		_, err = dir.FindByConfirmationCode(ctx, "def456")
		require.ErrorIs(t, err, ErrNotFound)

		require.ErrorIs(t, dir.MarkConfirmed(ctx, user.ID, base), ErrNotFound)
	})

	t.Run("missing user", func(t *testing.T) {
		dir := newDirectory(t)
		ctx := context.Background()

		require.ErrorIs(t, dir.SetConfirmationCode(ctx, "missing", "code", base), ErrNotFound)
		require.ErrorIs(t, dir.MarkConfirmed(ctx, "missing", base), ErrNotFound)
		require.ErrorIs(t, dir.DeleteByID(ctx, "missing"), ErrNotFound)
		_, err := dir.FindByID(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)
		_, err = dir.FindByConfirmationCode(ctx, "")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		dir := newDirectory(t)
		ctx := context.Background()

		user := newUser("dave", "dave@example.com")
		require.NoError(t, dir.Create(ctx, user))
		require.NoError(t, dir.DeleteByID(ctx, user.ID))

		_, err := dir.FindByID(ctx, user.ID)
		require.ErrorIs(t, err, ErrNotFound)

		// the login is free again once the account is gone
		require.NoError(t, dir.Create(ctx, newUser("dave", "dave@example.com")))
	})

	t.Run("delete unconfirmed before cutoff", func(t *testing.T) {
		dir := newDirectory(t)
		ctx := context.Background()

		stale := newUser("stale", "stale@example.com")
		fresh := newUser("fresh", "fresh@example.com")
		done := newUser("done", "done@example.com")
		for _, u := range []*models.User{stale, fresh, done} {
			require.NoError(t, dir.Create(ctx, u))
		}

		require.NoError(t, dir.SetConfirmationCode(ctx, stale.ID, "s1", base.Add(-2*time.Hour)))
		require.NoError(t, dir.SetConfirmationCode(ctx, fresh.ID, "f1", base.Add(2*time.Hour)))
		require.NoError(t, dir.SetConfirmationCode(ctx, done.ID, "d1", base.Add(-2*time.Hour)))
		require.NoError(t, dir.MarkConfirmed(ctx, done.ID, base.Add(-3*time.Hour)))

		removed, err := dir.DeleteUnconfirmedBefore(ctx, base)
		require.NoError(t, err)
		require.EqualValues(t, 1, removed)

		_, err = dir.FindByID(ctx, stale.ID)
		require.ErrorIs(t, err, ErrNotFound)
		_, err = dir.FindByID(ctx, fresh.ID)
		require.NoError(t, err)
		_, err = dir.FindByID(ctx, done.ID)
		require.NoError(t, err)
	})
}
