package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// CredentialProvider yields the value sent in the X-Authorization header.
// Implementations are resolved once per logical operation, not per poll.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticKey is a pre-shared personal-access token.
type StaticKey string

func (k StaticKey) Token(ctx context.Context) (string, error) {
	if k == "" {
		return "", fmt.Errorf("static engine key is empty")
	}
	return string(k), nil
}

// KeyPair exchanges a key id/secret for a short-lived session token via the
// engine's token endpoint.
type KeyPair struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Client    *http.Client
}

func (p *KeyPair) Token(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"keyId":     p.KeyID,
		"keySecret": p.KeySecret,
	})
	if err != nil {
		return "", fmt.Errorf("encode token request: %w", err)
	}

	url := strings.TrimRight(p.BaseURL, "/") + "/api/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("token response missing token field")
	}
	return out.Token, nil
}
