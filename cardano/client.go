// Package cardano is the ledger boundary: a client for duplicate-identifier
// queries and metadata submission against a Cardano metadata endpoint, plus
// the transaction-metadata envelope format. The identity core never imports
// this package; it only guarantees that the DID it derives is a stable query
// key.
package cardano

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Client talks to a Koios-style metadata query service.
type Client struct {
	endpoint      string
	metadataLabel uint64
	client        *http.Client
	logger        *logrus.Logger
}

func NewClient(endpoint string, metadataLabel uint64) *Client {
	return &Client{
		endpoint:      endpoint,
		metadataLabel: metadataLabel,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logrus.WithField("service", "cardano-client").Logger,
	}
}

func (c *Client) bodyCloser(body io.ReadCloser) {
	if body != nil {
		if err := body.Close(); err != nil {
			c.logger.Error("Failed to close body,err:", err)
		}
	}
}

// EnrollmentInfo is what the ledger reports for an existing identifier.
type EnrollmentInfo struct {
	Did         string    `json:"did"`
	TxHash      string    `json:"tx_hash"`
	Controllers []string  `json:"controllers"`
	EnrolledAt  time.Time `json:"enrolled_at"`
	Revoked     bool      `json:"revoked"`
}

// IdentityExists answers the duplicate-enrollment question: has this DID been
// recorded on chain already, and by whom.
func (c *Client) IdentityExists(ctx context.Context, didStr string) (bool, *EnrollmentInfo, error) {
	queryURL := fmt.Sprintf("%s/metadata/%d/%s", c.endpoint, c.metadataLabel, didStr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return false, nil, fmt.Errorf("fail to query identity: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, nil, fmt.Errorf("fail to query identity: %w", err)
	}
	defer c.bodyCloser(resp.Body)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return false, nil, nil
	case http.StatusOK:
	default:
		return false, nil, fmt.Errorf("fail to query identity: %s", resp.Status)
	}

	var info EnrollmentInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return false, nil, fmt.Errorf("fail to decode identity response: %w", err)
	}
	return true, &info, nil
}

// SubmitMetadata posts an enrollment envelope for inclusion in a
// transaction. Retries belong here, at the I/O boundary, never in the core.
func (c *Client) SubmitMetadata(ctx context.Context, metadata json.RawMessage) (string, error) {
	submitURL := fmt.Sprintf("%s/metadata/%d", c.endpoint, c.metadataLabel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, bytes.NewReader(metadata))
	if err != nil {
		return "", fmt.Errorf("fail to submit metadata: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fail to submit metadata: %w", err)
	}
	defer c.bodyCloser(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("fail to submit metadata: %s", resp.Status)
	}
	var result struct {
		TxHash string `json:"tx_hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("fail to decode submit response: %w", err)
	}
	return result.TxHash, nil
}

// SubmitMetadataWithRetry retries transient submission failures.
func (c *Client) SubmitMetadataWithRetry(ctx context.Context, metadata json.RawMessage, retry int) (string, error) {
	var lastErr error
	for i := 0; i < retry; i++ {
		txHash, err := c.SubmitMetadata(ctx, metadata)
		if err == nil {
			return txHash, nil
		}
		lastErr = err
		c.logger.WithFields(logrus.Fields{
			"attempt": i,
			"error":   err,
		}).Error("Failed to submit metadata")
		time.Sleep(100 * time.Millisecond)
	}
	return "", fmt.Errorf("fail to submit metadata after %d retries: %w", retry, lastErr)
}
