package wompi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the sandbox API. Production deployments set WOMPI_API_URL.
const DefaultBaseURL = "https://sandbox.wompi.co/v1"

// ErrGateway is the root of every failure to obtain a usable answer from the
// gateway: transport errors, non-200 responses and malformed bodies.
var ErrGateway = errors.New("payment gateway error")

// ErrInvalidResponse is returned when the gateway answers 200 without a transaction.
var ErrInvalidResponse = fmt.Errorf("%w: invalid response", ErrGateway)

// GatewayError is returned when the gateway answers with a non-200 status.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("wompi API error (status %d): %s", e.StatusCode, e.Body)
}

func (e *GatewayError) Unwrap() error { return ErrGateway }

// Transaction is the subset of a Wompi transaction used for reconciliation.
type Transaction struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Reference     string `json:"reference"`
	AmountInCents int64  `json:"amount_in_cents"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method_type,omitempty"`
}

type transactionEnvelope struct {
	Data *Transaction `json:"data"`
}

// Client reads transactions from the Wompi REST API using the merchant's private key.
type Client struct {
	baseURL    string
	privateKey string
	client     *http.Client
}

// NewClient creates a gateway client. An empty baseURL selects the sandbox.
func NewClient(baseURL, privateKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		privateKey: privateKey,
		client:     &http.Client{Timeout: timeout},
	}
}

// GetTransaction fetches a transaction by id. The returned status is upper-cased
// and defaults to PENDING when the gateway omits it.
func (c *Client) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	endpoint := c.baseURL + "/transactions/" + url.PathEscape(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.privateKey)
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var env transactionEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if env.Data == nil {
		return nil, ErrInvalidResponse
	}

	tx := env.Data
	tx.Status = strings.ToUpper(strings.TrimSpace(tx.Status))
	if tx.Status == "" {
		tx.Status = "PENDING"
	}
	if tx.ID == "" {
		tx.ID = id
	}
	return tx, nil
}
