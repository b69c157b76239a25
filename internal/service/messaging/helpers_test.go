package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"e2e_messaging/internal/model"
	"e2e_messaging/internal/protocol/ratchet"
	accountrepo "e2e_messaging/internal/repository/account"
	"e2e_messaging/internal/repository/session"
	"e2e_messaging/internal/repository/snapshot"
	"e2e_messaging/internal/service/account"
	"e2e_messaging/internal/service/directory"
	"e2e_messaging/internal/service/handshake"
)

var errUnavailable = errors.New("storage unavailable")

// clock hands out strictly increasing times one second apart.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// network is a set of users sharing one account directory, each with its own
// stores, like separate devices talking to one key server.
type network struct {
	accounts *account.Service
	engine   *ratchet.Engine
	clock    *clock
}

type user struct {
	*Service
	sessions session.Store
	kv       snapshot.KV
}

func newNetwork(t *testing.T, opks int) *network {
	t.Helper()
	return &network{
		accounts: account.NewService(accountrepo.NewMemoryRepo(), opks),
		engine:   ratchet.NewEngine(),
		clock:    newClock(),
	}
}

func (n *network) user(t *testing.T, name string) *user {
	t.Helper()
	return n.userWith(t, name, session.NewMemoryStore(), snapshot.NewMemoryKV(), 0)
}

func (n *network) userWith(t *testing.T, name string, sessions session.Store, kv snapshot.KV, flush time.Duration) *user {
	t.Helper()
	_, err := n.accounts.GetOrCreate(context.Background(), name)
	require.NoError(t, err)

	hs := handshake.NewService(name, n.accounts, directory.NewLocal(n.accounts), n.engine)
	svc := NewService(Config{
		LocalID:       name,
		FlushInterval: flush,
		Now:           n.clock.Now,
	}, n.engine, sessions, hs, kv)
	return &user{Service: svc, sessions: sessions, kv: kv}
}

func (u *user) send(t *testing.T, to, content string) *model.EncryptedMessage {
	t.Helper()
	em, err := u.SendMessage(context.Background(), model.DecryptedMessage{RecipientID: to, Content: content})
	require.NoError(t, err)
	return em
}

func (u *user) open(t *testing.T, em *model.EncryptedMessage) string {
	t.Helper()
	dm, err := u.DecryptMessage(context.Background(), em)
	require.NoError(t, err)
	return dm.Content
}

func (u *user) state(t *testing.T, peer string) *model.SessionState {
	t.Helper()
	st, err := u.sessions.GetSessionState(context.Background(), peer)
	require.NoError(t, err)
	return st
}

// failingStore accepts reads but fails writes while fail is set.
type failingStore struct {
	session.Store
	mu   sync.Mutex
	fail bool
}

func (f *failingStore) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *failingStore) UpdateSessionState(ctx context.Context, peer string, st *model.SessionState) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errUnavailable
	}
	return f.Store.UpdateSessionState(ctx, peer, st)
}

// failingKV fails every write while fail is set.
type failingKV struct {
	snapshot.KV
	mu     sync.Mutex
	fail   bool
	writes int
}

func (f *failingKV) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errUnavailable
	}
	f.writes++
	return f.KV.Set(ctx, key, value)
}

func (f *failingKV) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func withoutHandshake(em *model.EncryptedMessage) *model.EncryptedMessage {
	out := *em
	out.Handshake = nil
	return &out
}

// unreadableKV fails every read.
type unreadableKV struct {
	snapshot.KV
}

func (unreadableKV) Get(context.Context, string) ([]byte, error) {
	return nil, errUnavailable
}
