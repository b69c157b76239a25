package messaging

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"e2e_messaging/internal/apperrors"
	"e2e_messaging/internal/model"
	"e2e_messaging/internal/repository/session"
	"e2e_messaging/internal/repository/snapshot"
	"e2e_messaging/internal/service/events"
)

func boolPtr(b bool) *bool { return &b }

func TestCreateConversationDirect(t *testing.T) {
	n := newNetwork(t, 0)
	alice := n.user(t, "alice")
	ctx := context.Background()

	var created []*model.Conversation
	alice.On(events.ConversationCreated, func(ev events.Event) { created = append(created, ev.Conversation) })

	c1, err := alice.CreateConversation(ctx, []string{"bob", "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice|bob", c1.ID)
	assert.Equal(t, model.ConversationDirect, c1.Type)
	assert.Equal(t, model.DefaultSettings(), c1.Settings)
	assert.Empty(t, alice.GetMessages(c1.ID, 0))

	c2, err := alice.CreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	assert.True(t, c1.CreatedAt.Equal(c2.CreatedAt))

	require.Len(t, created, 1)
	assert.Equal(t, "alice|bob", created[0].ID)
}

func TestCreateConversationGroup(t *testing.T) {
	n := newNetwork(t, 0)
	alice := n.user(t, "alice")
	ctx := context.Background()

	g1, err := alice.CreateConversation(ctx, []string{"alice", "bob", "carol", "bob"})
	require.NoError(t, err)
	g2, err := alice.CreateConversation(ctx, []string{"alice", "bob", "carol"})
	require.NoError(t, err)

	assert.Equal(t, model.ConversationGroup, g1.Type)
	assert.Equal(t, []string{"alice", "bob", "carol"}, g1.Participants)
	assert.NotEqual(t, g1.ID, g2.ID)
	assert.Len(t, alice.GetConversations(), 2)
}

func TestCreateConversationNeedsTwoParticipants(t *testing.T) {
	n := newNetwork(t, 0)
	alice := n.user(t, "alice")

	for _, ids := range [][]string{nil, {"alice"}, {"alice", "alice"}, {"alice", ""}} {
		_, err := alice.CreateConversation(context.Background(), ids)
		require.ErrorIs(t, err, apperrors.ErrInvalidParticipants, "%v", ids)
	}
}

func TestGetConversation(t *testing.T) {
	n := newNetwork(t, 0)
	alice := n.user(t, "alice")

	c, err := alice.CreateConversation(context.Background(), []string{"alice", "bob"})
	require.NoError(t, err)

	got, err := alice.GetConversation(c.ID)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	got.Participants[0] = "mallory"
	again, _ := alice.GetConversation(c.ID)
	assert.Equal(t, "alice", again.Participants[0])

	_, err = alice.GetConversation("nope")
	require.ErrorIs(t, err, apperrors.ErrConversationNotFound)
}

func TestGetMessagesNewestFirstWithLimit(t *testing.T) {
	n := newNetwork(t, 5)
	alice := n.user(t, "alice")
	n.user(t, "bob")

	for i := 0; i < 5; i++ {
		alice.send(t, "bob", "m")
	}

	last2 := alice.GetMessages("alice|bob", 2)
	require.Len(t, last2, 2)
	assert.Equal(t, uint32(4), last2[0].MessageNumber)
	assert.Equal(t, uint32(3), last2[1].MessageNumber)

	all := alice.GetMessages("alice|bob", 0)
	require.Len(t, all, 5)
	for i, m := range all {
		assert.Equal(t, uint32(4-i), m.MessageNumber)
	}

	assert.Len(t, alice.GetMessages("alice|bob", 100), 5)
	assert.Empty(t, alice.GetMessages("unknown", 10))
}

func TestSendUpdatesConversation(t *testing.T) {
	n := newNetwork(t, 5)
	alice := n.user(t, "alice")
	n.user(t, "bob")

	c, err := alice.CreateConversation(context.Background(), []string{"alice", "bob"})
	require.NoError(t, err)

	em := alice.send(t, "bob", "hi")

	got, err := alice.GetConversation(c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, em.ID, got.LastMessage.ID)
	assert.True(t, got.UpdatedAt.After(c.UpdatedAt))
}

func TestEventsEmittedInOrder(t *testing.T) {
	n := newNetwork(t, 5)
	alice := n.user(t, "alice")
	n.user(t, "bob")
	ctx := context.Background()

	var kinds []events.Kind
	record := func(ev events.Event) { kinds = append(kinds, ev.Kind) }
	subs := []events.Subscription{
		alice.On(events.MessageSent, record),
		alice.On(events.MessageRead, record),
		alice.On(events.ConversationCreated, record),
		alice.On(events.ConversationUpdated, record),
	}

	var sentPayload *model.EncryptedMessage
	alice.On(events.MessageSent, func(ev events.Event) { sentPayload = ev.Message })

	em := alice.send(t, "bob", "hi")
	require.NoError(t, alice.MarkAsRead("alice|bob", em.ID))
	_, err := alice.UpdateConversationSettings(ctx, "alice|bob", model.SettingsPatch{EphemeralEnabled: boolPtr(true)})
	require.NoError(t, err)

	assert.Equal(t, []events.Kind{
		events.ConversationCreated,
		events.MessageSent,
		events.MessageRead,
		events.ConversationUpdated,
	}, kinds)
	require.NotNil(t, sentPayload)
	assert.Equal(t, em.ID, sentPayload.ID)

	for _, s := range subs {
		assert.True(t, alice.Off(s))
	}
	alice.send(t, "bob", "quiet")
	assert.Len(t, kinds, 4)
}

func TestMarkAsReadValidation(t *testing.T) {
	n := newNetwork(t, 0)
	alice := n.user(t, "alice")

	var receipt *events.ReadReceipt
	alice.On(events.MessageRead, func(ev events.Event) { receipt = ev.Receipt })

	require.NoError(t, alice.MarkAsRead("c", "m"))
	require.NotNil(t, receipt)
	assert.Equal(t, events.ReadReceipt{ConversationID: "c", MessageID: "m"}, *receipt)

	err := alice.MarkAsRead("", "m")
	assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))
}

func TestUpdateConversationSettings(t *testing.T) {
	n := newNetwork(t, 0)
	alice := n.user(t, "alice")
	ctx := context.Background()

	c, err := alice.CreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)

	got, err := alice.UpdateConversationSettings(ctx, c.ID, model.SettingsPatch{
		AnchoringEnabled:     boolPtr(true),
		NotificationsEnabled: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, model.ConversationSettings{AnchoringEnabled: true}, got.Settings)
	assert.True(t, got.UpdatedAt.After(c.UpdatedAt))

	got, err = alice.UpdateConversationSettings(ctx, c.ID, model.SettingsPatch{EphemeralEnabled: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, model.ConversationSettings{AnchoringEnabled: true, EphemeralEnabled: true}, got.Settings)

	_, err = alice.UpdateConversationSettings(ctx, "missing", model.SettingsPatch{})
	require.ErrorIs(t, err, apperrors.ErrConversationNotFound)
}

func TestReloadKeepsConversationOrder(t *testing.T) {
	n := newNetwork(t, 5)
	kv := snapshot.NewMemoryKV()
	alice := n.userWith(t, "alice", session.NewMemoryStore(), kv, 0)
	for _, name := range []string{"bob", "carol", "dave"} {
		n.user(t, name)
	}
	ctx := context.Background()

	alice.send(t, "bob", "1")
	alice.send(t, "carol", "2")
	alice.send(t, "dave", "3")
	_, err := alice.UpdateConversationSettings(ctx, "alice|bob", model.SettingsPatch{EphemeralEnabled: boolPtr(true)})
	require.NoError(t, err)

	before := alice.GetConversations()
	require.Len(t, before, 3)
	assert.Equal(t, "alice|bob", before[0].ID)

	reloaded := n.userWith(t, "alice", session.NewMemoryStore(), kv, 0)
	require.NoError(t, reloaded.Load(ctx))
	after := reloaded.GetConversations()

	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Participants, after[i].Participants)
		assert.Equal(t, before[i].Settings, after[i].Settings)
		assert.True(t, before[i].UpdatedAt.Equal(after[i].UpdatedAt))
		assert.True(t, before[i].CreatedAt.Equal(after[i].CreatedAt))
	}
	assert.Len(t, reloaded.GetMessages("alice|carol", 0), 1)
}

func TestSnapshotEncoding(t *testing.T) {
	n := newNetwork(t, 5)
	alice := n.user(t, "alice")
	n.user(t, "bob")
	alice.send(t, "bob", "hello")

	b, err := json.Marshal(alice.Snapshot())
	require.NoError(t, err)

	var raw struct {
		Conversations [][]json.RawMessage `json:"conversations"`
		Messages      [][]json.RawMessage `json:"messages"`
		Timestamp     int64               `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(b, &raw))
	require.Len(t, raw.Conversations, 1)
	require.Len(t, raw.Conversations[0], 2)
	assert.JSONEq(t, `"alice|bob"`, string(raw.Conversations[0][0]))
	require.Len(t, raw.Messages, 1)
	assert.JSONEq(t, `"alice|bob"`, string(raw.Messages[0][0]))
	assert.Positive(t, raw.Timestamp)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(b, &snap))
	orig := alice.Snapshot()
	require.Len(t, snap.Messages, 1)
	require.Len(t, snap.Messages[0].Messages, 1)
	assert.Equal(t, orig.Conversations[0].Conversation.Participants, snap.Conversations[0].Conversation.Participants)
	assert.True(t, orig.Conversations[0].Conversation.UpdatedAt.Equal(snap.Conversations[0].Conversation.UpdatedAt))
	assert.Equal(t, orig.Messages[0].Messages[0].Ciphertext, snap.Messages[0].Messages[0].Ciphertext)
	assert.True(t, orig.Messages[0].Messages[0].Timestamp.Equal(snap.Messages[0].Messages[0].Timestamp))

	require.Error(t, json.Unmarshal([]byte(`{"conversations":[["only-one"]]}`), &snap))
}

func TestLoadMissingAndCorruptSnapshot(t *testing.T) {
	n := newNetwork(t, 0)
	kv := snapshot.NewMemoryKV()
	alice := n.userWith(t, "alice", session.NewMemoryStore(), kv, 0)
	ctx := context.Background()

	require.NoError(t, alice.Load(ctx))
	assert.Empty(t, alice.GetConversations())

	require.NoError(t, kv.Set(ctx, DefaultSnapshotKey, []byte("{broken")))
	require.NoError(t, alice.Load(ctx))
	assert.Empty(t, alice.GetConversations())

	// the bad blob is kept aside and the service keeps working
	var moved []byte
	for _, k := range kv.Keys() {
		if strings.HasPrefix(k, DefaultSnapshotKey+".corrupt-") {
			moved, _ = kv.Get(ctx, k)
		}
	}
	assert.Equal(t, "{broken", string(moved))

	_, err := alice.CreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)

	reloaded := n.userWith(t, "alice", session.NewMemoryStore(), kv, 0)
	require.NoError(t, reloaded.Load(ctx))
	assert.Len(t, reloaded.GetConversations(), 1)
}

func TestLoadReturnsStoreReadFailure(t *testing.T) {
	n := newNetwork(t, 0)
	alice := n.userWith(t, "alice", session.NewMemoryStore(), unreadableKV{}, 0)
	require.ErrorIs(t, alice.Load(context.Background()), errUnavailable)
}

func TestRunFlushesOnTickAndCancel(t *testing.T) {
	n := newNetwork(t, 0)
	kv := &failingKV{KV: snapshot.NewMemoryKV()}
	alice := n.userWith(t, "alice", session.NewMemoryStore(), kv, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- alice.Run(ctx) }()

	_, err := alice.CreateConversation(context.Background(), []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return kv.count() == 1 }, time.Second, 5*time.Millisecond)

	// failed writes are retried on later ticks
	kv.setFail(true)
	_, err = alice.CreateConversation(context.Background(), []string{"alice", "carol"})
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, kv.count())
	kv.setFail(false)
	assert.Eventually(t, func() bool { return kv.count() == 2 }, time.Second, 5*time.Millisecond)

	_, err = alice.CreateConversation(context.Background(), []string{"alice", "dave"})
	require.NoError(t, err)
	cancel()
	require.NoError(t, <-done)

	stored, err := kv.Get(context.Background(), DefaultSnapshotKey)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(stored, &snap))
	assert.Len(t, snap.Conversations, 3)
}

func TestRunReturnsWithoutInterval(t *testing.T) {
	n := newNetwork(t, 0)
	alice := n.user(t, "alice")
	require.NoError(t, alice.Run(context.Background()))
}
