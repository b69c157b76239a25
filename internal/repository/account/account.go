package account

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"e2e_messaging/internal/model"
)

type (
	// Repository stores accounts and hands out their one-time prekeys.
	// GetByName returns nil, nil when no account matches.
	Repository interface {
		GetByName(ctx context.Context, name string) (*model.Account, error)
		Create(ctx context.Context, acc *model.Account) (primitive.ObjectID, error)
		// ClaimOneTimePreKey marks one unissued prekey as issued and returns it,
		// or nil when the account has none left.
		ClaimOneTimePreKey(ctx context.Context, name string) (*model.OneTimePreKey, error)
		// ConsumeOneTimePreKey removes a prekey and returns it, or nil when it is gone.
		ConsumeOneTimePreKey(ctx context.Context, name string, keyID uint32) (*model.OneTimePreKey, error)
	}

	AccountRepo struct {
		collection *mongo.Collection
	}
)

var _ Repository = (*AccountRepo)(nil)

func NewAccountRepo(db *mongo.Database) *AccountRepo {
	return &AccountRepo{
		collection: db.Collection("accounts"),
	}
}

func (r *AccountRepo) GetByName(ctx context.Context, name string) (*model.Account, error) {
	filter := bson.M{
		"name": name,
	}

	var acc model.Account
	err := r.collection.FindOne(ctx, filter).Decode(&acc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &acc, nil
}

func (r *AccountRepo) Create(ctx context.Context, acc *model.Account) (primitive.ObjectID, error) {
	res, err := r.collection.InsertOne(ctx, acc)
	if err != nil {
		return primitive.NilObjectID, err
	}

	id := res.InsertedID.(primitive.ObjectID)
	acc.ID = id
	return id, nil
}

func (r *AccountRepo) ClaimOneTimePreKey(ctx context.Context, name string) (*model.OneTimePreKey, error) {
	filter := bson.M{
		"name": name,
		"one_time_pre_keys": bson.M{
			"$elemMatch": bson.M{"issued": false},
		},
	}
	update := bson.M{
		"$set": bson.M{"one_time_pre_keys.$.issued": true},
	}
	// The pre-update document still reports the claimed key as unissued, which is
	// how it is located below.
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var acc model.Account
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&acc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	for i := range acc.OneTimePreKeys {
		if !acc.OneTimePreKeys[i].Issued {
			k := acc.OneTimePreKeys[i]
			k.Issued = true
			return &k, nil
		}
	}
	return nil, nil
}

func (r *AccountRepo) ConsumeOneTimePreKey(ctx context.Context, name string, keyID uint32) (*model.OneTimePreKey, error) {
	filter := bson.M{
		"name":                     name,
		"one_time_pre_keys.key_id": keyID,
	}
	update := bson.M{
		"$pull": bson.M{"one_time_pre_keys": bson.M{"key_id": keyID}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var acc model.Account
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&acc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	for _, k := range acc.OneTimePreKeys {
		if k.KeyID == keyID {
			return &k, nil
		}
	}
	return nil, nil
}
