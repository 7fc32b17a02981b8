// Package indexer reads the engine's vault registry from an external
// indexing API. Pagination is handled here; callers see one flat listing.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vault-liquidator/internal/domain"
)

const defaultPageSize = 1000

// Options parameterise the indexer client.
type Options struct {
	BaseURL   string
	PageSize  int
	Timeout   time.Duration
	UserAgent string
}

// Client fetches vault records over HTTP.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// New constructs an indexer client.
func New(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "vault_indexer").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

type vaultEntry struct {
	Key   string `json:"key"`
	Value struct {
		Minted            string `json:"minted"`
		Balance           string `json:"balance"`
		IsBeingLiquidated bool   `json:"is_being_liquidated"`
	} `json:"value"`
}

// ListVaults returns every vault registered with the engine contract.
func (c *Client) ListVaults(ctx context.Context, engineAddress string) ([]domain.VaultRecord, error) {
	if c.baseURL == "" {
		return nil, errors.New("indexer base url not configured")
	}
	if engineAddress == "" {
		return nil, errors.New("engine address required")
	}

	pageSize := c.opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var vaults []domain.VaultRecord
	for offset := 0; ; offset += pageSize {
		page, err := c.fetchPage(ctx, engineAddress, pageSize, offset)
		if err != nil {
			return nil, err
		}

		for _, entry := range page {
			record, err := entry.toRecord()
			if err != nil {
				return nil, fmt.Errorf("vault %s: %w", entry.Key, err)
			}
			vaults = append(vaults, record)
		}

		if len(page) < pageSize {
			return vaults, nil
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, engineAddress string, limit, offset int) ([]vaultEntry, error) {
	endpoint := fmt.Sprintf("%s/v1/contracts/%s/vaults", c.baseURL, url.PathEscape(engineAddress))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	query := req.URL.Query()
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	req.URL.RawQuery = query.Encode()

	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var page []vaultEntry
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, fmt.Errorf("decode vault page: %w", err)
	}
	return page, nil
}

func (e vaultEntry) toRecord() (domain.VaultRecord, error) {
	minted, ok := new(big.Int).SetString(e.Value.Minted, 10)
	if !ok {
		return domain.VaultRecord{}, fmt.Errorf("invalid minted amount %q", e.Value.Minted)
	}
	balance, ok := new(big.Int).SetString(e.Value.Balance, 10)
	if !ok {
		return domain.VaultRecord{}, fmt.Errorf("invalid collateral balance %q", e.Value.Balance)
	}

	return domain.VaultRecord{
		Owner:             e.Key,
		Minted:            minted,
		CollateralBalance: balance,
		IsBeingLiquidated: e.Value.IsBeingLiquidated,
	}, nil
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("indexer api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("indexer api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("indexer api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("indexer api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("indexer api error (%d)", status)
}
