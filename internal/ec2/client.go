// Package ec2 implements the spot-price source against the EC2 Query API.
package ec2

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"cloudmarketwatch/internal/ingestion"
	"cloudmarketwatch/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0

	apiVersion = "2016-11-15"
	timeFormat = "2006-01-02T15:04:05Z"
)

// Client calls DescribeSpotPriceHistory over the EC2 Query API with SigV4
// signed requests, bounded retries and exponential backoff.
type Client struct {
	creds       aws.Credentials
	signer      *v4.Signer
	client      *http.Client
	endpoint    string // overrides the per-region endpoint when set
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets the maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithEndpoint overrides the regional endpoint. Used in tests.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// NewClient creates a new EC2 Query API client.
func NewClient(accessKeyID, secretAccessKey string, opts ...ClientOption) *Client {
	c := &Client{
		creds: aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		},
		signer:      v4.NewSigner(),
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ ingestion.SpotPriceSource = (*Client)(nil)

// DescribeSpotPriceHistory fetches one page of spot price history for a
// region. An empty nextToken requests the first page.
func (c *Client) DescribeSpotPriceHistory(ctx context.Context, region string, start, end time.Time, nextToken string) (*ingestion.PricePage, error) {
	params := url.Values{}
	params.Set("Action", "DescribeSpotPriceHistory")
	params.Set("Version", apiVersion)
	params.Set("StartTime", start.UTC().Format(timeFormat))
	params.Set("EndTime", end.UTC().Format(timeFormat))
	if nextToken != "" {
		params.Set("NextToken", nextToken)
	}

	started := time.Now()
	var result describeSpotPriceHistoryResponse
	err := c.call(ctx, region, params, &result)
	observability.RecordSourceRequest(time.Since(started).Seconds(), err)
	if err != nil {
		return nil, err
	}

	page := &ingestion.PricePage{
		Records:   make([]ingestion.PriceRecord, 0, len(result.Items)),
		NextToken: result.NextToken,
	}
	for _, item := range result.Items {
		page.Records = append(page.Records, ingestion.PriceRecord{
			Timestamp:          item.Timestamp,
			SpotPrice:          item.SpotPrice,
			AvailabilityZone:   item.AvailabilityZone,
			InstanceType:       item.InstanceType,
			ProductDescription: item.ProductDescription,
		})
	}
	return page, nil
}

// call performs a signed Query API call with retries and exponential backoff.
// 429 and 5xx responses are retried; other API errors are fatal.
func (c *Client) call(ctx context.Context, region string, params url.Values, result any) error {
	endpoint := c.endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://ec2.%s.amazonaws.com/", region)
	}
	body := params.Encode()

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")

		hash := sha256.Sum256([]byte(body))
		err = c.signer.SignHTTP(ctx, c.creds, req, hex.EncodeToString(hash[:]), "ec2", region, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("sign request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting and transient server errors
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("retryable status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		if resp.StatusCode != http.StatusOK {
			// Auth and validation errors are not retried
			if apiErr := parseAPIError(respBody); apiErr != nil {
				return apiErr
			}
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
		}

		if err := xml.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// parseAPIError extracts the first API error from an error envelope.
func parseAPIError(body []byte) error {
	var envelope errorResponse
	if err := xml.Unmarshal(body, &envelope); err != nil || len(envelope.Errors) == 0 {
		return nil
	}
	return &envelope.Errors[0]
}
