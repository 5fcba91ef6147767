package clearinghouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client reports remittance acknowledgements back to the clearinghouse.
// A failure here never affects local processing; callers log and move on.
type Client struct {
	baseURL     string
	bearerToken string
	http        *http.Client

	maxAttempts    int
	initialBackoff time.Duration
}

func NewClient() (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("CLEARINGHOUSE_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("CLEARINGHOUSE_BASE_URL is not set")
	}
	token := strings.TrimSpace(os.Getenv("CLEARINGHOUSE_TOKEN"))
	if token == "" {
		return nil, errors.New("CLEARINGHOUSE_TOKEN is not set")
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		bearerToken:    token,
		http:           &http.Client{Timeout: 45 * time.Second},
		maxAttempts:    3,
		initialBackoff: 2 * time.Second,
	}, nil
}

type SubmissionRequest struct {
	FileName      string `json:"file_name"`
	CheckNumber   string `json:"check_number"`
	PayerName     string `json:"payer_name"`
	RecordCount   int    `json:"record_count"`
	MatchedCount  int    `json:"matched_count"`
	PostedAmount  string `json:"posted_amount"`
	CorrelationId string `json:"correlation_id"`
}

type SubmissionResult struct {
	ReferenceId string `json:"reference_id"`
	Status      string `json:"status"`
}

// AcknowledgeRemittance reports one processed file. Retries up to three
// attempts with exponential backoff; 4xx responses are not retried since the
// request will not get better.
func (c *Client) AcknowledgeRemittance(ctx context.Context, req SubmissionRequest) (*SubmissionResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	backoff := c.initialBackoff
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		result, retryable, err := c.doSubmit(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("clearinghouse unreachable after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) doSubmit(ctx context.Context, body []byte) (*SubmissionResult, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/remittance-acks", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.bearerToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var result SubmissionResult
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, false, fmt.Errorf("clearinghouse returned unparseable body: %w", err)
		}
		return &result, false, nil
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("clearinghouse error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	default:
		return nil, false, fmt.Errorf("clearinghouse rejected request %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
}
