package session

// Session ties an opaque client token to the remote conversation thread and
// any per-channel correlation data accumulated along the way.
type Session struct {
	Token          string            `json:"token"`
	ThreadID       string            `json:"thread_id"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ChannelState   *ChannelState     `json:"channel_state,omitempty"`
	PendingMessage string            `json:"pending_message,omitempty"`
}

// ChannelState carries channel-specific correlation identifiers, refreshed on
// every inbound webhook from that channel.
type ChannelState struct {
	ConversationID string `json:"conversation_id"`
	SubjectID      string `json:"subject_id,omitempty"`
}

// EnsureChannelState returns the session's channel state, allocating it when
// the session has never seen a webhook channel.
func (s *Session) EnsureChannelState() *ChannelState {
	if s.ChannelState == nil {
		s.ChannelState = &ChannelState{}
	}
	return s.ChannelState
}
