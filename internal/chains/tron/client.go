// internal/chains/tron/client.go
package tron

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"recharge-service/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TronHTTPClient reads blocks from the TronGrid wallet HTTP API.
type TronHTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewTronHTTPClient creates a rate limited client. rps <= 0 disables limiting.
func NewTronHTTPClient(baseURL, apiKey string, timeout time.Duration, rps float64, logger *zap.Logger) *TronHTTPClient {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &TronHTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

type blockResponse struct {
	BlockID     string `json:"blockID"`
	BlockHeader *struct {
		RawData struct {
			Number    int64 `json:"number"`
			Timestamp int64 `json:"timestamp"`
		} `json:"raw_data"`
	} `json:"block_header"`
	Transactions []transactionResponse `json:"transactions"`
}

type transactionResponse struct {
	TxID string `json:"txID"`
	Ret  []struct {
		ContractRet string `json:"contractRet"`
	} `json:"ret"`
	RawData struct {
		Contract []struct {
			Type      string `json:"type"`
			Parameter struct {
				Value struct {
					OwnerAddress    string `json:"owner_address"`
					ToAddress       string `json:"to_address"`
					Amount          int64  `json:"amount"`
					ContractAddress string `json:"contract_address"`
					Data            string `json:"data"`
				} `json:"value"`
			} `json:"parameter"`
		} `json:"contract"`
	} `json:"raw_data"`
}

// LatestBlockNumber returns the tip height via /wallet/getnowblock.
func (c *TronHTTPClient) LatestBlockNumber(ctx context.Context) (int64, error) {
	var resp blockResponse
	if err := c.post(ctx, "/wallet/getnowblock", nil, &resp); err != nil {
		return 0, err
	}
	if resp.BlockHeader == nil {
		return 0, fmt.Errorf("%w: empty now block", domain.ErrBlockUnavailable)
	}
	return resp.BlockHeader.RawData.Number, nil
}

// BlockByNumber fetches one block via /wallet/getblockbynum. TronGrid answers
// {} for heights it does not have yet, which is reported as ErrBlockUnavailable.
func (c *TronHTTPClient) BlockByNumber(ctx context.Context, n int64) (*domain.Block, error) {
	var resp blockResponse
	if err := c.post(ctx, "/wallet/getblockbynum", map[string]int64{"num": n}, &resp); err != nil {
		return nil, err
	}
	if resp.BlockHeader == nil {
		return nil, fmt.Errorf("%w: %d", domain.ErrBlockUnavailable, n)
	}

	block := resp.toDomain()
	c.logger.Debug("block fetched via HTTP",
		zap.Int64("block", n),
		zap.Int("transactions", len(block.Transactions)))
	return block, nil
}

func (r *blockResponse) toDomain() *domain.Block {
	block := &domain.Block{
		Number:       r.BlockHeader.RawData.Number,
		Timestamp:    time.UnixMilli(r.BlockHeader.RawData.Timestamp),
		Transactions: make([]domain.RawTransaction, 0, len(r.Transactions)),
	}
	for _, tx := range r.Transactions {
		raw := domain.RawTransaction{TxID: tx.TxID}
		if len(tx.Ret) > 0 {
			raw.Result = tx.Ret[0].ContractRet
		}
		for _, c := range tx.RawData.Contract {
			v := c.Parameter.Value
			raw.Contracts = append(raw.Contracts, domain.RawContract{
				Type:            domain.ContractType(c.Type),
				OwnerAddress:    v.OwnerAddress,
				ToAddress:       v.ToAddress,
				Amount:          v.Amount,
				ContractAddress: v.ContractAddress,
				Data:            v.Data,
			})
		}
		block.Transactions = append(block.Transactions, raw)
	}
	return block
}

func (c *TronHTTPClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader = http.NoBody
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
