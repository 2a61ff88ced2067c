package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"habitpulse/internal/config"
	"habitpulse/internal/types"
)

// ChatClient talks to the messaging provider's web API. It carries no retry
// or breaker logic of its own; the Dispatcher wraps every call.
type ChatClient struct {
	client  *http.Client
	apiBase string
	logger  *slog.Logger
}

// NewChatClient creates a ChatClient from the messaging configuration.
func NewChatClient(cfg config.MessagingConfig, logger *slog.Logger) *ChatClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		apiBase: cfg.APIBase,
		logger:  logger,
	}
}

// apiResponse is the provider's common response envelope.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	Channel struct {
		ID string `json:"id"`
	} `json:"channel,omitempty"`
}

// OpenDirectChannel opens (or reuses) the direct-message channel to the
// given provider user and returns its channel reference.
func (c *ChatClient) OpenDirectChannel(ctx context.Context, token types.SecretString, externalUserID string) (string, error) {
	resp, err := c.call(ctx, token, "conversations.open", map[string]any{
		"users": externalUserID,
	})
	if err != nil {
		return "", err
	}
	if resp.Channel.ID == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamMessaging, "provider returned no channel reference", nil)
	}
	return resp.Channel.ID, nil
}

// PostMessage delivers one message to an already-opened channel. blocks is
// the optional structured body; nil sends plain text only.
func (c *ChatClient) PostMessage(ctx context.Context, token types.SecretString, channelID, text string, blocks []map[string]any) error {
	payload := map[string]any{
		"channel": channelID,
		"text":    text,
	}
	if len(blocks) > 0 {
		payload["blocks"] = blocks
	}
	_, err := c.call(ctx, token, "chat.postMessage", payload)
	return err
}

func (c *ChatClient) call(ctx context.Context, token types.SecretString, method string, payload map[string]any) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode provider payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build provider request", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token.Unmask())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMessaging, "provider request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, types.NewAppError(types.ErrCodeUpstreamThrottled, "provider rate limit exceeded", nil)
	}
	if resp.StatusCode >= 500 {
		return nil, types.NewAppError(types.ErrCodeUpstreamMessaging,
			fmt.Sprintf("provider returned %d", resp.StatusCode), nil)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMessaging, "failed to read provider response", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMessaging, "failed to decode provider response", err)
	}
	if !parsed.OK {
		return nil, mapProviderError(method, parsed.Error)
	}
	return &parsed, nil
}

// mapProviderError translates the provider's error strings into the domain
// taxonomy. Credential errors are permanent; everything else on this path is
// treated as a transient provider failure.
func mapProviderError(method, code string) *types.AppError {
	switch code {
	case "invalid_auth", "token_revoked", "token_expired", "account_inactive", "not_authed":
		return types.NewAppError(types.ErrCodeCredentialInvalid,
			fmt.Sprintf("provider rejected credentials on %s: %s", method, code), nil)
	case "ratelimited", "rate_limited":
		return types.NewAppError(types.ErrCodeUpstreamThrottled,
			fmt.Sprintf("provider throttled %s", method), nil)
	default:
		return types.NewAppError(types.ErrCodeUpstreamMessaging,
			fmt.Sprintf("provider error on %s: %s", method, code), nil)
	}
}
