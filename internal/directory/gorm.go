package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/charlesng35/bloggers/internal/models"
)

const (
	columnCode        = "email_confirmation_code"
	columnExpiresAt   = "email_confirmation_expires_at"
	columnConfirmed   = "email_confirmation_is_confirmed"
	columnConfirmedAt = "email_confirmation_confirmed_at"
)

// GormDirectory stores accounts in a relational database through gorm.
type GormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory wraps an opened and migrated gorm handle.
func NewGormDirectory(db *gorm.DB) (*GormDirectory, error) {
	if db == nil {
		return nil, errors.New("directory: db is required")
	}
	return &GormDirectory{db: db}, nil
}

func (d *GormDirectory) FindByLoginOrEmail(ctx context.Context, identifier string) (*models.User, error) {
	login := models.NormalizeLogin(identifier)
	if login == "" {
		return nil, ErrNotFound
	}

	var user models.User
	err := d.db.WithContext(ctx).
		Where("login_key = ? OR email = ?", login, models.NormalizeEmail(identifier)).
		Order("created_at ASC").
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (d *GormDirectory) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := d.db.WithContext(ctx).Take(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (d *GormDirectory) Create(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("directory: user is required")
	}
	return translate(d.db.WithContext(ctx).Create(user).Error)
}

func (d *GormDirectory) SetConfirmationCode(ctx context.Context, userID, code string, expiresAt time.Time) error {
	result := d.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			columnCode:      code,
			columnExpiresAt: expiresAt,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *GormDirectory) FindByConfirmationCode(ctx context.Context, code string) (*models.User, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrNotFound
	}

	var user models.User
	if err := d.db.WithContext(ctx).Take(&user, columnCode+" = ?", code).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (d *GormDirectory) MarkConfirmed(ctx context.Context, userID string, at time.Time) error {
	result := d.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND "+columnConfirmed+" = ?", userID, false).
		Updates(map[string]any{
			columnConfirmed:   true,
			columnConfirmedAt: at,
			columnCode:        nil,
			columnExpiresAt:   nil,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *GormDirectory) DeleteByID(ctx context.Context, userID string) error {
	result := d.db.WithContext(ctx).Delete(&models.User{}, "id = ?", userID)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *GormDirectory) DeleteUnconfirmedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := d.db.WithContext(ctx).
		Where(columnConfirmed+" = ? AND "+columnExpiresAt+" < ?", false, cutoff).
		Delete(&models.User{})
	if result.Error != nil {
		return 0, translate(result.Error)
	}
	return result.RowsAffected, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isUniqueConstraintError(err):
		return &DuplicateError{Field: uniqueField(err.Error()), Err: err}
	default:
		return err
	}
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// uniqueField guesses the offending column from a vendor message; "" when unknown.
func uniqueField(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "confirmation_code"):
		return "code"
	case strings.Contains(lower, "login"):
		return "login"
	case strings.Contains(lower, "email"):
		return "email"
	default:
		return ""
	}
}
