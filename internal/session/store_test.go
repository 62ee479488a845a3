package session

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(client, 0, nil), mr
}

func TestStoreRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	in := &Session{
		Token:    "tok-1",
		ThreadID: "thread_abc",
		Metadata: map[string]string{
			"name":     "Ada Lovelace",
			"email":    "ada@example.com",
			"roleName": "traveller",
			"debtorId": "EDIZZZZZZZ",
		},
		ChannelState: &ChannelState{
			ConversationID: "19:meeting",
			SubjectID:      "aad-123",
		},
		PendingMessage: "where is my flight",
	}
	if err := store.Set(context.Background(), in.Token, in); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	out, err := store.Get(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if out == nil {
		t.Fatal("expected session, got nil")
	}
	if out.ThreadID != in.ThreadID {
		t.Errorf("thread id mismatch: %s != %s", out.ThreadID, in.ThreadID)
	}
	if out.Metadata["debtorId"] != "EDIZZZZZZZ" {
		t.Errorf("metadata lost in round trip: %#v", out.Metadata)
	}
	if out.ChannelState == nil || out.ChannelState.ConversationID != "19:meeting" {
		t.Errorf("channel state lost in round trip: %#v", out.ChannelState)
	}
	if out.PendingMessage != in.PendingMessage {
		t.Errorf("pending message lost in round trip: %q", out.PendingMessage)
	}
}

func TestStoreRoundTripMinimalSession(t *testing.T) {
	store, _ := newTestStore(t)

	in := &Session{Token: "tok-min", ThreadID: "t1"}
	if err := store.Set(context.Background(), in.Token, in); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	out, err := store.Get(context.Background(), "tok-min")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if out.ChannelState != nil {
		t.Errorf("expected absent channel state to stay absent, got %#v", out.ChannelState)
	}
	if len(out.Metadata) != 0 {
		t.Errorf("expected empty metadata, got %#v", out.Metadata)
	}
}

func TestStoreGetMissingIsNotAnError(t *testing.T) {
	store, _ := newTestStore(t)

	sess, err := store.Get(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("expected absence, got error: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected nil session, got %#v", sess)
	}
}

func TestStoreUsesSessionKeyPrefix(t *testing.T) {
	store, mr := newTestStore(t)

	if err := store.Set(context.Background(), "tok-2", &Session{Token: "tok-2"}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if !mr.Exists("session:tok-2") {
		t.Error("expected key session:tok-2 in redis")
	}
}

func TestChannelIdentityBinding(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.BindChannelIdentity(context.Background(), "whatsapp", "6140000000", "tok-3"); err != nil {
		t.Fatalf("BindChannelIdentity returned error: %v", err)
	}
	token, err := store.TokenForChannelIdentity(context.Background(), "whatsapp", "6140000000")
	if err != nil {
		t.Fatalf("TokenForChannelIdentity returned error: %v", err)
	}
	if token != "tok-3" {
		t.Errorf("expected tok-3, got %q", token)
	}

	token, err = store.TokenForChannelIdentity(context.Background(), "whatsapp", "unknown")
	if err != nil {
		t.Fatalf("unexpected error for unbound identity: %v", err)
	}
	if token != "" {
		t.Errorf("expected empty token for unbound identity, got %q", token)
	}
}
