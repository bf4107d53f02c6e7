// Package directory is the thin client for the external Chat Directory
// service, which owns chat existence and the participant list.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/osetrov/messenger/pkg/apperr"
	"github.com/osetrov/messenger/pkg/auth"
	"github.com/osetrov/messenger/pkg/model"
)

// Directory is what the hub and the reconciler need from the collaborator.
// Implementations are fail-closed: transport failures surface as
// apperr.ErrUnavailable, which callers treat like a failed membership check.
type Directory interface {
	GetChat(ctx context.Context, chatID string) (*model.Chat, error)
}

// Client talks to GET {base}/chats/{chatId} with a service bearer token.
type Client struct {
	base   string
	http   *http.Client
	tokens *auth.Tokens
}

func NewClient(base string, tokens *auth.Tokens) *Client {
	return &Client{
		base:   base,
		http:   &http.Client{Timeout: 5 * time.Second},
		tokens: tokens,
	}
}

func (c *Client) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	if chatID == "" {
		return nil, fmt.Errorf("get chat: empty id: %w", apperr.ErrInvalidInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/chats/"+chatID, nil)
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %w", chatID, err)
	}

	token, err := c.tokens.Generate("message-service")
	if err != nil {
		return nil, fmt.Errorf("get chat %s: service token: %w", chatID, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %v: %w", chatID, err, apperr.ErrUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("chat %s: %w", chatID, apperr.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("get chat %s: status %d: %w", chatID, resp.StatusCode, apperr.ErrUnavailable)
	}

	var chat model.Chat
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("get chat %s: decode: %v: %w", chatID, err, apperr.ErrUnavailable)
	}
	return &chat, nil
}
