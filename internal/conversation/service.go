package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tripdesk/concierge/internal/assistant"
	"github.com/tripdesk/concierge/internal/channels"
	"github.com/tripdesk/concierge/internal/handoff"
	"github.com/tripdesk/concierge/internal/session"
	"github.com/tripdesk/concierge/pkg/logging"
)

const failureAcknowledgment = "Sorry, something went wrong on our side. Please try again shortly."

// Service is the conversation façade used by the HTTP boundary. It maps
// tokens to sessions, drives assistant runs and routes webhook replies back
// to their origin channel. Work on one token is serialized with a per-token
// lock; distinct tokens proceed concurrently.
type Service struct {
	store     *session.Store
	adapter   *channels.Adapter
	orch      *assistant.Orchestrator
	runtime   assistant.Runtime
	handoff   *handoff.Client
	jwtSecret string
	logger    *logging.Logger
	tracer    trace.Tracer
	locks     *keyedMutex
}

// NewService wires the conversation service.
func NewService(store *session.Store, adapter *channels.Adapter, orch *assistant.Orchestrator, runtime assistant.Runtime, handoffClient *handoff.Client, jwtSecret string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:     store,
		adapter:   adapter,
		orch:      orch,
		runtime:   runtime,
		handoff:   handoffClient,
		jwtSecret: jwtSecret,
		logger:    logger,
		tracer:    otel.Tracer("concierge.internal.conversation"),
		locks:     newKeyedMutex(),
	}
}

// Init starts or resumes a conversation for a token and drives one full
// exchange. On first contact it decodes the token claims into session
// metadata, creates a remote thread and persists the session before the run
// starts; the thread id is never reassigned afterwards.
func (s *Service) Init(ctx context.Context, channel, token, text string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.init")
	defer span.End()

	if err := validate(channel, token, text); err != nil {
		return "", err
	}
	unlock := s.locks.lock(token)
	defer unlock()

	sess, err := s.store.Get(ctx, token)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if sess == nil {
		sess, err = s.createSession(ctx, channel, token)
		if err != nil {
			span.RecordError(err)
			return "", err
		}
		text = bootstrapPreamble(sess.Metadata) + text
	}

	reply, err := s.orch.Execute(ctx, sess, channel, text)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if err := s.store.Set(ctx, token, sess); err != nil {
		span.RecordError(err)
		return "", err
	}
	return reply, nil
}

// Chat drives one exchange on an existing session. With an active consultant
// chat open for the user, the message is forwarded there instead of to the
// assistant.
func (s *Service) Chat(ctx context.Context, channel, token, text string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.chat")
	defer span.End()

	if err := validate(channel, token, text); err != nil {
		return "", err
	}
	unlock := s.locks.lock(token)
	defer unlock()

	sess, err := s.store.Get(ctx, token)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if sess == nil {
		return "", ErrSessionNotFound
	}

	if forwarded, reply := s.forwardToConsultant(ctx, sess, text); forwarded {
		return reply, nil
	}

	reply, err := s.orch.Execute(ctx, sess, channel, text)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if err := s.store.Set(ctx, token, sess); err != nil {
		span.RecordError(err)
		return "", err
	}
	return reply, nil
}

// StageMessage queues a message for a later streaming read of the same
// session.
func (s *Service) StageMessage(ctx context.Context, channel, token, text string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.stage_message")
	defer span.End()

	if err := validate(channel, token, text); err != nil {
		return err
	}
	unlock := s.locks.lock(token)
	defer unlock()

	sess, err := s.store.Get(ctx, token)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	sess.PendingMessage = text
	return s.store.Set(ctx, token, sess)
}

// ChatStream consumes the session's staged message and exposes the assistant
// answer as an ordered fragment sequence. The fragment channel closes when
// the run ends; the error channel then yields nil on success. The per-token
// lock is held until the run ends, so staged messages and other exchanges on
// the same token wait for the stream to finish.
func (s *Service) ChatStream(ctx context.Context, channel, token string) (<-chan string, <-chan error, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.chat_stream")
	defer span.End()

	if channel == "" {
		return nil, nil, &ValidationError{Field: "platform"}
	}
	if token == "" {
		return nil, nil, &ValidationError{Field: "token"}
	}

	unlock := s.locks.lock(token)
	sess, err := s.store.Get(ctx, token)
	if err != nil {
		unlock()
		span.RecordError(err)
		return nil, nil, err
	}
	if sess == nil {
		unlock()
		return nil, nil, ErrSessionNotFound
	}
	text := sess.PendingMessage
	if text == "" {
		unlock()
		return nil, nil, &ValidationError{Field: "message"}
	}
	sess.PendingMessage = ""
	if err := s.store.Set(ctx, token, sess); err != nil {
		unlock()
		span.RecordError(err)
		return nil, nil, err
	}

	fragments, runErr := s.orch.ExecuteStream(ctx, sess, channel, text)
	errCh := make(chan error, 1)
	go func() {
		err := <-runErr
		unlock()
		errCh <- err
	}()
	return fragments, errCh, nil
}

// Webhook handles one inbound channel callback end to end: normalize, run,
// reply. The reply is dispatched without blocking the caller; delivery
// failures are logged, not retried.
func (s *Service) Webhook(ctx context.Context, body []byte, contentType string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.webhook")
	defer span.End()

	msg, err := s.adapter.Normalize(ctx, body, contentType)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if msg.Token == "" {
		s.logger.Warn("webhook sender has no bound session", "channel", msg.Channel)
		return ErrSessionNotFound
	}
	if msg.Text == "" {
		return &ValidationError{Field: "text"}
	}

	unlock := s.locks.lock(msg.Token)
	defer unlock()

	sess, err := s.store.Get(ctx, msg.Token)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if sess == nil {
		return ErrSessionNotFound
	}

	if forwarded, _ := s.forwardToConsultant(ctx, sess, msg.Text); forwarded {
		return nil
	}

	reply, err := s.orch.Execute(ctx, sess, msg.Channel, msg.Text)
	if err != nil {
		span.RecordError(err)
		s.dispatchReply(ctx, msg.Channel, msg.OriginID, failureAcknowledgment)
		return err
	}
	if err := s.store.Set(ctx, msg.Token, sess); err != nil {
		span.RecordError(err)
		return err
	}

	s.dispatchReply(ctx, msg.Channel, msg.OriginID, reply)
	return nil
}

func (s *Service) createSession(ctx context.Context, channel, token string) (*session.Session, error) {
	metadata, err := session.DecodeToken(token, s.jwtSecret)
	if err != nil {
		s.logger.Warn("token claims could not be decoded, starting an anonymous session", "error", err)
		metadata = map[string]string{}
	}

	threadID, err := s.runtime.CreateThread(ctx)
	if err != nil {
		return nil, err
	}

	sess := &session.Session{
		Token:    token,
		ThreadID: threadID,
		Metadata: metadata,
	}
	if err := s.store.Set(ctx, token, sess); err != nil {
		return nil, err
	}
	if err := s.bindChannelIdentity(ctx, channel, sess); err != nil {
		return nil, err
	}
	s.logger.Info("session created", "channel", channel, "thread_id", threadID)
	return sess, nil
}

// bindChannelIdentity records the webhook identity for channels that will
// call back without a token, so later inbound activity can find the session.
func (s *Service) bindChannelIdentity(ctx context.Context, channel string, sess *session.Session) error {
	var subject string
	switch channel {
	case channels.ChannelTeams:
		subject = sess.Metadata["aadObjectId"]
	case channels.ChannelWhatsApp:
		subject = sess.Metadata["phone"]
	default:
		return nil
	}
	if subject == "" {
		return nil
	}
	return s.store.BindChannelIdentity(ctx, channel, subject, sess.Token)
}

func (s *Service) forwardToConsultant(ctx context.Context, sess *session.Session, text string) (bool, string) {
	if s.handoff == nil {
		return false, ""
	}
	status, err := s.handoff.Status(ctx, sess.Metadata["email"])
	if err != nil || !status.Active {
		return false, ""
	}
	if err := s.handoff.Forward(ctx, status.ChatID, text); err != nil {
		s.logger.Error("failed to forward message to consultant chat", "error", err)
		return true, failureAcknowledgment
	}
	return true, "Your message has been passed to your consultant."
}

// dispatchReply sends the reply on the origin channel without holding up the
// webhook response.
func (s *Service) dispatchReply(ctx context.Context, channel, originID, text string) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	go func() {
		defer cancel()
		if err := s.adapter.SendReply(sendCtx, channel, originID, text); err != nil {
			s.logger.Error("webhook reply was not delivered", "channel", channel, "error", err)
		}
	}()
}

// bootstrapPreamble prefixes the first message of a session with the client
// context decoded from the token, so the assistant can personalize without a
// lookup.
func bootstrapPreamble(metadata map[string]string) string {
	if len(metadata) == 0 {
		return ""
	}
	var parts []string
	for _, key := range []string{"name", "email", "roleName", "debtorId"} {
		if v := metadata[key]; v != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", key, v))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "[client context: " + strings.Join(parts, ", ") + "] "
}

func validate(channel, token, text string) error {
	if channel == "" {
		return &ValidationError{Field: "platform"}
	}
	if token == "" {
		return &ValidationError{Field: "token"}
	}
	if text == "" {
		return &ValidationError{Field: "message"}
	}
	return nil
}
