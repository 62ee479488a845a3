package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tripdesk/concierge/pkg/logging"
)

// ConsultantHandover answers chat_with_consultant calls by opening a live
// chat with a human consultant. The assistant only needs an acknowledgement;
// the actual conversation continues on the live-chat transport.
type ConsultantHandover struct {
	initURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewConsultantHandover creates the chat_with_consultant adapter.
func NewConsultantHandover(initURL string, client *http.Client, logger *logging.Logger) *ConsultantHandover {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConsultantHandover{initURL: initURL, httpClient: client, logger: logger}
}

// Name implements Adapter.
func (h *ConsultantHandover) Name() string { return "chat_with_consultant" }

type handoverRequest struct {
	ChatID         string `json:"chatId"`
	TeamsChat      bool   `json:"teamsChat"`
	ConversationID string `json:"conversationId,omitempty"`
	AADObjectID    string `json:"aadObjectId,omitempty"`
	ClientName     string `json:"clientName"`
	ClientEmail    string `json:"clientEmail"`
	DebtorID       string `json:"debtorId"`
	Region         string `json:"region"`
	Reason         string `json:"reason"`
	InitialMessage string `json:"initialMessage"`
}

// Invoke implements Adapter.
func (h *ConsultantHandover) Invoke(ctx context.Context, inv Invocation) (string, error) {
	initialMessage, err := stringArg(inv.Args, "initial_message")
	if err != nil {
		return "", err
	}
	if inv.Session == nil {
		return "", fmt.Errorf("functions: handover requires a session")
	}

	payload := handoverRequest{
		ChatID:         uuid.NewString(),
		ClientName:     inv.Session.Metadata["name"],
		ClientEmail:    inv.Session.Metadata["email"],
		DebtorID:       inv.Session.Metadata["debtorId"],
		Region:         "Asia",
		Reason:         "Client requested to talk to a consultant",
		InitialMessage: initialMessage,
	}
	// Webhook channels carry the chat over the existing Teams conversation;
	// the web widget opens a fresh tab instead.
	if inv.Channel != "web" && inv.Session.ChannelState != nil {
		payload.TeamsChat = true
		payload.ConversationID = inv.Session.ChannelState.ConversationID
		payload.AADObjectID = inv.Session.ChannelState.SubjectID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("functions: failed to encode handover request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.initURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("functions: failed to build handover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("functions: handover initiation failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("functions: handover backend returned status %d", resp.StatusCode)
	}

	h.logger.Info("consultant handover initiated", "chat_id", payload.ChatID, "channel", inv.Channel)
	return EncodeResult("Connecting the client to a consultant in a new tab."), nil
}
