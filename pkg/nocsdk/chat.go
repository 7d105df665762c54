package nocsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/arnatech/noc/pkg/history"
)

// Chat endpoint paths, relative to the chat base URL.
const (
	PathChat        = "/chat/"
	PathChatHistory = "/chat/history"
)

// ChatRequest is the body of POST /chat/.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatReply is the assistant's answer. Chart holds a chart configuration
// when the answer includes one.
type ChatReply struct {
	Text  string          `json:"text"`
	Chart json.RawMessage `json:"chart,omitempty"`
}

// HasChart reports whether the reply carries a chart.
func (r *ChatReply) HasChart() bool {
	return len(r.Chart) > 0 && string(r.Chart) != "null"
}

// ChatHistory fetches the flat history feed of the current user.
func (c *Client) ChatHistory(ctx context.Context) ([]history.Record, error) {
	var resp struct {
		History []history.Record `json:"history"`
	}
	if err := c.doJSON(ctx, http.MethodGet, PathChatHistory, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch chat history: %w", err)
	}
	if resp.History == nil {
		return []history.Record{}, nil
	}
	return resp.History, nil
}

// SendChat sends a message. An empty conversationID lets the backend decide.
func (c *Client) SendChat(ctx context.Context, message, conversationID string) (*ChatReply, error) {
	req := ChatRequest{Message: message, ConversationID: conversationID}

	var reply ChatReply
	if err := c.doJSON(ctx, http.MethodPost, PathChat, req, &reply); err != nil {
		return nil, fmt.Errorf("failed to send chat message: %w", err)
	}
	if !reply.HasChart() {
		reply.Chart = nil
	}
	return &reply, nil
}
