package repository

import (
	"context"
	"errors"

	"github.com/forgo/qola/api/internal/database"
	"github.com/forgo/qola/api/internal/model"
)

// AccountRepository handles account document access
type AccountRepository struct {
	store database.DocumentStore
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(store database.DocumentStore) *AccountRepository {
	return &AccountRepository{store: store}
}

func accountKey(uid string) database.Key {
	return database.Key{Collection: model.AccountCollection, ID: uid}
}

// UsernameTaken reports whether any account already uses the normalized
// username. The read participates in tx, so a concurrent registration of the
// same name invalidates the commit.
func (r *AccountRepository) UsernameTaken(ctx context.Context, tx database.Txn, normalized string) (bool, error) {
	docs, err := tx.QueryEquals(ctx, model.AccountCollection, model.FieldUsername, normalized)
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// Stage writes the account document in tx. CreatedAt is assigned by the store.
func (r *AccountRepository) Stage(tx database.Txn, acct *model.Account) {
	doc := database.Document{
		"uid":         acct.UID,
		"email":       acct.Email,
		"username":    acct.Username,
		"displayName": acct.DisplayName,
		"bio":         acct.Bio,
		"avatarUrl":   acct.AvatarURL,
		"coverUrl":    acct.CoverURL,
		"friends":     nonNil(acct.Friends),
		"blocked":     nonNil(acct.Blocked),
		"needsSetup":  acct.NeedsSetup,
	}
	doc[model.FieldCreatedAt] = database.ServerTimestamp
	tx.Set(accountKey(acct.UID), doc, database.SetOptions{})
}

// GetByID retrieves an account by identity handle. Returns nil when absent.
func (r *AccountRepository) GetByID(ctx context.Context, uid string) (*model.Account, error) {
	var acct *model.Account
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx database.Txn) error {
		doc, err := tx.Get(ctx, accountKey(uid))
		if err != nil {
			return err
		}
		acct = parseAccount(doc)
		return nil
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return acct, nil
}

// Exists reports whether an account document is keyed by uid.
func (r *AccountRepository) Exists(ctx context.Context, uid string) (bool, error) {
	acct, err := r.GetByID(ctx, uid)
	if err != nil {
		return false, err
	}
	return acct != nil, nil
}

func parseAccount(doc database.Document) *model.Account {
	str := func(k string) string {
		s, _ := doc[k].(string)
		return s
	}
	needsSetup, _ := doc["needsSetup"].(bool)
	return &model.Account{
		UID:         str("uid"),
		Email:       str("email"),
		Username:    str("username"),
		DisplayName: str("displayName"),
		Bio:         str("bio"),
		AvatarURL:   str("avatarUrl"),
		CoverURL:    str("coverUrl"),
		Friends:     database.Strings(doc["friends"]),
		Blocked:     database.Strings(doc["blocked"]),
		NeedsSetup:  needsSetup,
		CreatedAt:   database.Time(doc[model.FieldCreatedAt]),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
