package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/charlesng35/bloggers/internal/models"
)

const (
	defaultUsersCollection = "users"

	fieldLoginKey    = "loginKey"
	fieldEmail       = "email"
	fieldCode        = "emailConfirmation.confirmationCode"
	fieldExpiresAt   = "emailConfirmation.expirationDate"
	fieldConfirmed   = "emailConfirmation.isConfirmed"
	fieldConfirmedAt = "emailConfirmation.confirmedAt"
)

// MongoOption customises the MongoDirectory.
type MongoOption func(*mongoSettings)

type mongoSettings struct {
	collection string
}

// WithCollection overrides the users collection name.
func WithCollection(name string) MongoOption {
	return func(s *mongoSettings) {
		if name = strings.TrimSpace(name); name != "" {
			s.collection = name
		}
	}
}

// MongoDirectory stores accounts as documents, one per user.
type MongoDirectory struct {
	users *mongo.Collection
}

// NewMongoDirectory binds the directory to the users collection of db.
func NewMongoDirectory(db *mongo.Database, opts ...MongoOption) (*MongoDirectory, error) {
	if db == nil {
		return nil, errors.New("directory: mongo database is required")
	}

	settings := mongoSettings{collection: defaultUsersCollection}
	for _, opt := range opts {
		opt(&settings)
	}

	return &MongoDirectory{users: db.Collection(settings.collection)}, nil
}

// EnsureIndexes creates the unique indexes the directory relies on for duplicate detection.
func (d *MongoDirectory) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: fieldLoginKey, Value: 1}},
			Options: options.Index().SetName("uniq_login_key").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: fieldEmail, Value: 1}},
			Options: options.Index().SetName("uniq_email").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: fieldCode, Value: 1}},
			Options: options.Index().SetName("uniq_confirmation_code").SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{
				{Key: fieldConfirmed, Value: 1},
				{Key: fieldExpiresAt, Value: 1},
			},
			Options: options.Index().SetName("idx_unconfirmed_expiry"),
		},
	}

	if _, err := d.users.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("directory: ensure indexes: %w", err)
	}
	return nil
}

func (d *MongoDirectory) FindByLoginOrEmail(ctx context.Context, identifier string) (*models.User, error) {
	login := models.NormalizeLogin(identifier)
	if login == "" {
		return nil, ErrNotFound
	}

	filter := bson.M{"$or": bson.A{
		bson.M{fieldLoginKey: login},
		bson.M{fieldEmail: models.NormalizeEmail(identifier)},
	}}
	return d.findOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

func (d *MongoDirectory) FindByID(ctx context.Context, id string) (*models.User, error) {
	return d.findOne(ctx, bson.M{"_id": id})
}

func (d *MongoDirectory) Create(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("directory: user is required")
	}
	user.Prepare()

	if _, err := d.users.InsertOne(ctx, user); err != nil {
		return translateMongo(err)
	}
	return nil
}

func (d *MongoDirectory) SetConfirmationCode(ctx context.Context, userID, code string, expiresAt time.Time) error {
	result, err := d.users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{
			fieldCode:      code,
			fieldExpiresAt: expiresAt,
		}},
	)
	if err != nil {
		return translateMongo(err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *MongoDirectory) FindByConfirmationCode(ctx context.Context, code string) (*models.User, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrNotFound
	}
	return d.findOne(ctx, bson.M{fieldCode: code})
}

func (d *MongoDirectory) MarkConfirmed(ctx context.Context, userID string, at time.Time) error {
	result, err := d.users.UpdateOne(ctx,
		bson.M{"_id": userID, fieldConfirmed: false},
		bson.M{
			"$set":   bson.M{fieldConfirmed: true, fieldConfirmedAt: at},
			"$unset": bson.M{fieldCode: "", fieldExpiresAt: ""},
		},
	)
	if err != nil {
		return translateMongo(err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *MongoDirectory) DeleteByID(ctx context.Context, userID string) error {
	result, err := d.users.DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return translateMongo(err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *MongoDirectory) DeleteUnconfirmedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := d.users.DeleteMany(ctx, bson.M{
		fieldConfirmed: false,
		fieldExpiresAt: bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, translateMongo(err)
	}
	return result.DeletedCount, nil
}

func (d *MongoDirectory) findOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) (*models.User, error) {
	var user models.User
	if err := d.users.FindOne(ctx, filter, opts...).Decode(&user); err != nil {
		return nil, translateMongo(err)
	}
	return &user, nil
}

func translateMongo(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return &DuplicateError{Field: mongoDuplicateField(err.Error()), Err: err}
	default:
		return err
	}
}

// mongoDuplicateField maps the index name in an E11000 message back to the field.
func mongoDuplicateField(message string) string {
	switch {
	case strings.Contains(message, "uniq_confirmation_code"):
		return "code"
	case strings.Contains(message, "uniq_login_key"):
		return "login"
	case strings.Contains(message, "uniq_email"):
		return "email"
	default:
		return ""
	}
}
