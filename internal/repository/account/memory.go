package account

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"e2e_messaging/internal/model"
)

// MemoryRepo keeps accounts in process memory, for tests and single-process setups.
type MemoryRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
}

var _ Repository = (*MemoryRepo)(nil)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{accounts: make(map[string]*model.Account)}
}

func (r *MemoryRepo) GetByName(_ context.Context, name string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[name]
	if !ok {
		return nil, nil
	}
	return cloneAccount(acc), nil
}

func (r *MemoryRepo) Create(_ context.Context, acc *model.Account) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[acc.Name]; ok {
		return primitive.NilObjectID, fmt.Errorf("account %q already exists", acc.Name)
	}
	if acc.ID.IsZero() {
		acc.ID = primitive.NewObjectID()
	}
	r.accounts[acc.Name] = cloneAccount(acc)
	return acc.ID, nil
}

func (r *MemoryRepo) ClaimOneTimePreKey(_ context.Context, name string) (*model.OneTimePreKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[name]
	if !ok {
		return nil, nil
	}
	for i := range acc.OneTimePreKeys {
		if !acc.OneTimePreKeys[i].Issued {
			acc.OneTimePreKeys[i].Issued = true
			k := acc.OneTimePreKeys[i]
			return &k, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepo) ConsumeOneTimePreKey(_ context.Context, name string, keyID uint32) (*model.OneTimePreKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[name]
	if !ok {
		return nil, nil
	}
	for i, k := range acc.OneTimePreKeys {
		if k.KeyID == keyID {
			acc.OneTimePreKeys = append(acc.OneTimePreKeys[:i], acc.OneTimePreKeys[i+1:]...)
			return &k, nil
		}
	}
	return nil, nil
}

func cloneAccount(a *model.Account) *model.Account {
	out := *a
	out.OneTimePreKeys = append([]model.OneTimePreKey(nil), a.OneTimePreKeys...)
	return &out
}
