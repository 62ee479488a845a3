package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Store persists sessions in Redis keyed by the client token. Writes are
// last-write-wins; concurrent writers to the same token are expected to be
// serialized by the caller when ordering matters.
type Store struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewStore creates a session store. A zero ttl keeps sessions until the
// backing cache evicts them.
func NewStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *Store {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("concierge.internal.session")
	}
	return &Store{
		redis:  client,
		ttl:    ttl,
		tracer: tracer,
	}
}

// Get loads the session for a token. A missing session is not an error: the
// caller receives (nil, nil) and decides whether first contact is allowed.
func (s *Store) Get(ctx context.Context, token string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.get")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(token)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode session: %w", err)
	}
	return &sess, nil
}

// Set persists the session under its token.
func (s *Store) Set(ctx context.Context, token string, sess *Session) error {
	ctx, span := s.tracer.Start(ctx, "session.set")
	defer span.End()

	data, err := json.Marshal(sess)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(token), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist session: %w", err)
	}
	return nil
}

// BindChannelIdentity records which token a channel-level subject id belongs
// to, so later webhooks from that channel can be resolved back to a session.
func (s *Store) BindChannelIdentity(ctx context.Context, channel, subjectID, token string) error {
	ctx, span := s.tracer.Start(ctx, "session.bind_channel_identity")
	defer span.End()

	if err := s.redis.Set(ctx, channelKey(channel, subjectID), token, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to bind channel identity: %w", err)
	}
	return nil
}

// TokenForChannelIdentity resolves a channel subject id to its session token.
// Returns "" when the identity has never been bound.
func (s *Store) TokenForChannelIdentity(ctx context.Context, channel, subjectID string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "session.resolve_channel_identity")
	defer span.End()

	token, err := s.redis.Get(ctx, channelKey(channel, subjectID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("session: failed to resolve channel identity: %w", err)
	}
	return token, nil
}

func sessionKey(token string) string {
	return "session:" + token
}

func channelKey(channel, subjectID string) string {
	return fmt.Sprintf("channel_token:%s:%s", channel, subjectID)
}
