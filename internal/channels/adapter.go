package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tripdesk/concierge/internal/observability/metrics"
	"github.com/tripdesk/concierge/internal/session"
	"github.com/tripdesk/concierge/pkg/logging"
)

// Channel names used across the service. Web is the widget channel and never
// arrives via webhook.
const (
	ChannelWeb      = "web"
	ChannelTeams    = "teams"
	ChannelWhatsApp = "whatsapp"
)

var (
	// ErrUnsupportedMediaType is returned before any payload inspection when
	// the webhook content type is not one the adapter can decode.
	ErrUnsupportedMediaType = errors.New("channels: unsupported content type")

	// ErrUnsupportedChannel is returned when no recognizer claims the payload
	// or a reply targets a channel with no transport.
	ErrUnsupportedChannel = errors.New("channels: unsupported channel")
)

// NormalizedMessage is one inbound webhook reduced to the shape the
// conversation layer works with. Token is the session token resolved from the
// channel identity directory and is empty when the sender is unknown.
type NormalizedMessage struct {
	Channel  string
	Token    string
	Text     string
	OriginID string
}

// Transport delivers one outbound reply on a specific channel.
type Transport interface {
	Channel() string
	Send(ctx context.Context, originID, text string) error
}

// recognizer is one row of the inbound dispatch table: a predicate over the
// decoded payload and a builder that produces the normalized message.
type recognizer struct {
	channel string
	match   func(payload map[string]any) bool
	build   func(ctx context.Context, payload map[string]any) (NormalizedMessage, error)
}

// Adapter normalizes inbound webhook payloads and routes outbound replies.
// Recognition is table-driven so adding a channel means adding a row, not a
// branch; an unmatched payload is always an explicit unsupported outcome.
type Adapter struct {
	store       *session.Store
	transports  map[string]Transport
	recognizers []recognizer
	logger      *logging.Logger
	tracer      trace.Tracer
	metrics     *metrics.ConversationMetrics
}

// NewAdapter builds the adapter over the session store and the given
// outbound transports.
func NewAdapter(store *session.Store, logger *logging.Logger, m *metrics.ConversationMetrics, transports ...Transport) *Adapter {
	if logger == nil {
		logger = logging.Default()
	}
	a := &Adapter{
		store:      store,
		transports: make(map[string]Transport, len(transports)),
		logger:     logger,
		tracer:     otel.Tracer("concierge.internal.channels"),
		metrics:    m,
	}
	for _, t := range transports {
		if t == nil {
			continue
		}
		a.transports[t.Channel()] = t
	}
	a.recognizers = []recognizer{
		{channel: ChannelTeams, match: isTeamsActivity, build: a.buildTeams},
		{channel: ChannelWhatsApp, match: isWhatsAppForm, build: a.buildWhatsApp},
	}
	return a
}

// Normalize decodes the webhook body and dispatches it through the
// recognizer table. Content-type rejection happens before any session lookup.
func (a *Adapter) Normalize(ctx context.Context, body []byte, contentType string) (NormalizedMessage, error) {
	ctx, span := a.tracer.Start(ctx, "channels.normalize")
	defer span.End()

	payload, err := decodeBody(body, contentType)
	if err != nil {
		span.RecordError(err)
		return NormalizedMessage{}, err
	}
	for _, r := range a.recognizers {
		if r.match(payload) {
			msg, err := r.build(ctx, payload)
			if err != nil {
				span.RecordError(err)
			}
			return msg, err
		}
	}
	a.logger.Warn("webhook payload matched no known channel shape")
	return NormalizedMessage{}, ErrUnsupportedChannel
}

// SendReply delivers text back on the origin channel. Failures are reported,
// never retried here.
func (a *Adapter) SendReply(ctx context.Context, channel, originID, text string) error {
	ctx, span := a.tracer.Start(ctx, "channels.send_reply")
	defer span.End()

	transport, ok := a.transports[channel]
	if !ok {
		a.metrics.ObserveReply(channel, "unsupported")
		return fmt.Errorf("%w: no transport for %q", ErrUnsupportedChannel, channel)
	}
	if err := transport.Send(ctx, originID, text); err != nil {
		span.RecordError(err)
		a.metrics.ObserveReply(channel, "error")
		a.logger.Error("reply delivery failed", "channel", channel, "error", err)
		return err
	}
	a.metrics.ObserveReply(channel, "ok")
	return nil
}

func decodeBody(body []byte, contentType string) (map[string]any, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil && contentType != "" {
		return nil, ErrUnsupportedMediaType
	}
	switch mediaType {
	case "application/json":
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("channels: malformed JSON payload: %w", err)
		}
		return payload, nil
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("channels: malformed form payload: %w", err)
		}
		payload := make(map[string]any, len(values))
		for key := range values {
			payload[key] = values.Get(key)
		}
		return payload, nil
	default:
		return nil, ErrUnsupportedMediaType
	}
}

func isTeamsActivity(payload map[string]any) bool {
	channelID, _ := payload["channelId"].(string)
	_, hasServiceURL := payload["serviceUrl"]
	return channelID == "msteams" && hasServiceURL
}

func isWhatsAppForm(payload map[string]any) bool {
	waID, _ := payload["WaId"].(string)
	return waID != ""
}

func (a *Adapter) buildTeams(ctx context.Context, payload map[string]any) (NormalizedMessage, error) {
	text, _ := payload["text"].(string)
	var conversationID string
	if conv, ok := payload["conversation"].(map[string]any); ok {
		conversationID, _ = conv["id"].(string)
	}
	var subjectID string
	if from, ok := payload["from"].(map[string]any); ok {
		subjectID, _ = from["aadObjectId"].(string)
	}
	if conversationID == "" || subjectID == "" {
		return NormalizedMessage{}, fmt.Errorf("%w: teams activity is missing conversation or sender identity", ErrUnsupportedChannel)
	}

	msg := NormalizedMessage{
		Channel:  ChannelTeams,
		Text:     text,
		OriginID: conversationID,
	}

	token, err := a.store.TokenForChannelIdentity(ctx, ChannelTeams, subjectID)
	if err != nil {
		return NormalizedMessage{}, err
	}
	msg.Token = token
	if token == "" {
		return msg, nil
	}

	// Downstream components assume the session's channel state matches the
	// activity that just arrived, so the upsert happens here.
	sess, err := a.store.Get(ctx, token)
	if err != nil {
		return NormalizedMessage{}, err
	}
	if sess != nil {
		state := sess.EnsureChannelState()
		state.ConversationID = conversationID
		state.SubjectID = subjectID
		if err := a.store.Set(ctx, token, sess); err != nil {
			return NormalizedMessage{}, err
		}
	}
	return msg, nil
}

func (a *Adapter) buildWhatsApp(ctx context.Context, payload map[string]any) (NormalizedMessage, error) {
	waID, _ := payload["WaId"].(string)
	text, _ := payload["Body"].(string)

	token, err := a.store.TokenForChannelIdentity(ctx, ChannelWhatsApp, waID)
	if err != nil {
		return NormalizedMessage{}, err
	}
	return NormalizedMessage{
		Channel:  ChannelWhatsApp,
		Token:    token,
		Text:     text,
		OriginID: waID,
	}, nil
}
