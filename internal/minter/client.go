// Package minter sends reward mint requests to the token minting service.
package minter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MazePlayLabs/gamepass/pkg/gamepass"
	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 10 * time.Second
	mintPath              = "/v1/mint"
)

// Client is an HTTP client for the minting service. It satisfies
// gamepass.MintGateway: mint requests are dispatched asynchronously and the
// outcome is only logged, never surfaced to the session that earned the
// reward.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	logger     *zap.Logger
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		client.httpClient = httpClient
	}
}

// WithRequestTimeout bounds each mint request.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(client *Client) {
		client.timeout = timeout
	}
}

// WithAuthToken attaches a bearer token to mint requests.
func WithAuthToken(token string) Option {
	return func(client *Client) {
		client.authToken = token
	}
}

// NewClient constructs a mint client for the given service base URL.
func NewClient(baseURL string, logger *zap.Logger, options ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("minter base url is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("minter logger is required")
	}
	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     logger,
		timeout:    defaultRequestTimeout,
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}

type mintRequest struct {
	Recipient string  `json:"recipient"`
	Amount    string  `json:"amount"`
	Referral  *string `json:"referral,omitempty"`
}

// Mint dispatches a reward mint in the background. The call returns
// immediately; a failed mint is logged and otherwise dropped.
func (client *Client) Mint(_ context.Context, recipient gamepass.AccountID, amount gamepass.TokenAmount, referral *gamepass.AccountID) {
	request := mintRequest{
		Recipient: recipient.String(),
		Amount:    amount.String(),
	}
	if referral != nil {
		value := referral.String()
		request.Referral = &value
	}
	go client.deliver(request)
}

func (client *Client) deliver(request mintRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), client.timeout)
	defer cancel()

	if err := client.post(ctx, request); err != nil {
		client.logger.Warn("reward mint failed",
			zap.String("recipient", request.Recipient),
			zap.String("amount", request.Amount),
			zap.Error(err))
		return
	}
	client.logger.Info("reward minted",
		zap.String("recipient", request.Recipient),
		zap.String("amount", request.Amount))
}

func (client *Client) post(ctx context.Context, request mintRequest) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return err
	}
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+mintPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if client.authToken != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+client.authToken)
	}
	response, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("mint request failed: status=%d body=%s", response.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
