// services/claim_gateway.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"quest-reward-system/utils"
)

// ClaimGateway is the boundary to the external chain executor. Both verbs are
// called at most once per logical trigger by this service, but the executor
// must treat them as idempotent — infrastructure above us may retry.
type ClaimGateway interface {
	// AllowClaim grants on-chain claim eligibility for a completed campaign.
	AllowClaim(ctx context.Context, userID, contractAddress string) error
	// AllowMint grants NFT mint eligibility for a newly reached level.
	AllowMint(ctx context.Context, level int, userID string) error
}

// ChainExecutorClient talks to the chain-executor service over HTTP.
type ChainExecutorClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewChainExecutorClient() *ChainExecutorClient {
	baseURL := os.Getenv("CHAIN_EXECUTOR_URL")
	if baseURL == "" {
		log.Fatal("CHAIN_EXECUTOR_URL environment variable is required")
	}
	token := os.Getenv("QUEST_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("QUEST_SERVICE_TOKEN environment variable is required for executor calls")
	}

	return &ChainExecutorClient{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: utils.HTTPClient,
	}
}

func (c *ChainExecutorClient) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode executor payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create executor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call chain executor: %w", err)
	}
	defer resp.Body.Close()

	// 2xx including 202 — the executor may queue the transaction.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("chain executor returned status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

func (c *ChainExecutorClient) AllowClaim(ctx context.Context, userID, contractAddress string) error {
	return c.post(ctx, "/api/v1/executor/claims", map[string]string{
		"user_id":          userID,
		"contract_address": contractAddress,
	})
}

func (c *ChainExecutorClient) AllowMint(ctx context.Context, level int, userID string) error {
	return c.post(ctx, "/api/v1/executor/mints", map[string]any{
		"user_id": userID,
		"level":   level,
	})
}
