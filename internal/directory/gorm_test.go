package directory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bloggers/internal/database/testutil"
)

func newGormDirectory(t *testing.T) Directory {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	dir, err := NewGormDirectory(db)
	require.NoError(t, err)
	return dir
}

func TestGormDirectoryContract(t *testing.T) {
	runDirectoryContract(t, newGormDirectory)
}

func TestNewGormDirectoryRequiresDB(t *testing.T) {
	_, err := NewGormDirectory(nil)
	require.Error(t, err)
}

func TestDuplicateErrorMatchesSentinel(t *testing.T) {
	err := &DuplicateError{Field: "email", Err: errors.New("boom")}
	require.ErrorIs(t, err, ErrDuplicate)
	require.Equal(t, "email", DuplicateField(err))
	require.Equal(t, "", DuplicateField(errors.New("other")))
}

func TestUniqueField(t *testing.T) {
	require.Equal(t, "login", uniqueField("UNIQUE constraint failed: users.login"))
	require.Equal(t, "email", uniqueField(`duplicate key value violates unique constraint "idx_users_email"`))
	require.Equal(t, "code", uniqueField("Duplicate entry 'x' for key 'idx_users_email_confirmation_code'"))
	require.Equal(t, "", uniqueField("duplicated key not allowed"))
}
