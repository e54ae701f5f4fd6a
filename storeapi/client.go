// Package storeapi provides a client for the transaction history endpoint of
// Apple's App Store Server API.
//
// It is the server side counterpart of the local receipt parser: a receipt
// decoded on the device names its transactions, and this client asks Apple
// for their current signed state.
package storeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/takimoto3/appleapi-core"
	"github.com/takimoto3/appleapi-core/token"
	receipt "github.com/takimoto3/iap-receipt"
)

const (
	// ProductionHost is the endpoint for production App Store requests.
	ProductionHost = "https://api.storekit.itunes.apple.com"

	// SandboxHost is the endpoint for sandbox App Store requests.
	SandboxHost = "https://api.storekit-sandbox.itunes.apple.com"

	// HistoryPath is the path prefix of the Get Transaction History endpoint.
	HistoryPath = "/inApps/v1/history/"
)

// errorCodeInvalidTransactionID is the errorCode Apple returns with a 400
// for a malformed transaction identifier.
const errorCodeInvalidTransactionID = 4000006

var (
	// ErrInvalidTransactionID indicates the transaction identifier is not
	// valid (HTTP 400).
	ErrInvalidTransactionID = errors.New("the transaction identifier is invalid")

	// ErrUnauthorized indicates the JSON Web Token is invalid (HTTP 401).
	ErrUnauthorized = errors.New("the authentication token is invalid or expired")

	// ErrTransactionNotFound indicates that no transaction exists for the
	// identifier in this environment (HTTP 404).
	ErrTransactionNotFound = errors.New("no transaction found for the identifier")

	// ErrTooManyRequests indicates that the client exceeded the rate limit (HTTP 429).
	ErrTooManyRequests = errors.New("you sent too many requests to the server")

	// ErrServerError indicates a server-side error occurred (HTTP 500).
	ErrServerError = errors.New("an error occurred on the server")

	// ErrServiceUnavailable indicates that the service is temporarily unavailable (HTTP 503).
	ErrServiceUnavailable = errors.New("service is temporarily unavailable due to overload or maintenance")
)

// Sort orders for HistoryRequest.
const (
	SortAscending  = "ASCENDING"
	SortDescending = "DESCENDING"
)

// Client provides access to the App Store Server API transaction history.
// It wraps appleapi.Client and selects the production or sandbox host
// depending on the client configuration.
type Client struct {
	inner *appleapi.Client
}

// HistoryRequest holds the optional query parameters of a history request.
type HistoryRequest struct {
	// Revision continues a previous request whose response had HasMore set.
	Revision   string
	Sort       string
	ProductIDs []string
	Revoked    *bool
}

func (r *HistoryRequest) query() url.Values {
	q := url.Values{}
	if r == nil {
		return q
	}
	if r.Revision != "" {
		q.Set("revision", r.Revision)
	}
	if r.Sort != "" {
		q.Set("sort", r.Sort)
	}
	for _, id := range r.ProductIDs {
		q.Add("productId", id)
	}
	if r.Revoked != nil {
		q.Set("revoked", fmt.Sprint(*r.Revoked))
	}
	return q
}

// HistoryResponse is one page of a customer's transaction history.
// SignedTransactions are JWS strings signed by the App Store; they are
// returned as received.
type HistoryResponse struct {
	Revision           string   `json:"revision"`
	BundleID           string   `json:"bundleId"`
	AppAppleID         int64    `json:"appAppleId"`
	Environment        string   `json:"environment"`
	HasMore            bool     `json:"hasMore"`
	SignedTransactions []string `json:"signedTransactions"`
}

// APIError is the error body the App Store Server API sends with failures.
type APIError struct {
	Code    int64  `json:"errorCode"`
	Message string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("app store error %d: %s", e.Code, e.Message)
}

// NewClient returns a new Client instance for the App Store Server API.
// The host is set to the sandbox or production endpoint based on the
// configuration of the underlying appleapi.Client.
func NewClient(tp token.Provider, opts ...appleapi.Option) (*Client, error) {
	return NewClientFromInitializer(appleapi.DefaultHTTPClientInitializer(), tp, opts...)
}

func NewClientFromInitializer(initializer appleapi.HTTPClientInitializer, tp token.Provider, opts ...appleapi.Option) (*Client, error) {
	c, err := appleapi.NewClient(initializer, ProductionHost, tp, opts...)
	if err != nil {
		return nil, err
	}

	if c.Development {
		c.Host = SandboxHost
	}

	return &Client{inner: c}, nil
}

// GetHost returns the host requests are sent to.
func (c *Client) GetHost() string {
	return c.inner.Host
}

// SetHost overrides the host requests are sent to.
func (c *Client) SetHost(host string) {
	c.inner.Host = strings.TrimSuffix(host, "/")
}

// History fetches one page of the transaction history of the customer who
// made transactionID.
//
// Possible error values correspond to Apple's documented HTTP status codes:
//
//   - ErrInvalidTransactionID (400)
//   - ErrUnauthorized (401)
//   - ErrTransactionNotFound (404)
//   - ErrTooManyRequests (429)
//   - ErrServerError (500)
//   - ErrServiceUnavailable (503)
func (c *Client) History(ctx context.Context, transactionID string, r *HistoryRequest) (*HistoryResponse, error) {
	if transactionID == "" {
		return nil, ErrInvalidTransactionID
	}
	u := c.inner.Host + HistoryPath + url.PathEscape(transactionID)
	if q := r.query(); len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		c.inner.Logger.Error("failed to create transaction history request", "error", err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.inner.Do(req)
	if err != nil {
		c.inner.Logger.Error("failed to perform transaction history request", "error", err)
		return nil, fmt.Errorf("failed to perform transaction history request: %w", err)
	}
	defer resp.Body.Close()

	return c.handleResponse(resp)
}

// AllHistory follows the revision of each page until Apple reports no more
// transactions and returns every signed transaction.
func (c *Client) AllHistory(ctx context.Context, transactionID string, r *HistoryRequest) ([]string, error) {
	var page HistoryRequest
	if r != nil {
		page = *r
	}
	var all []string
	for {
		resp, err := c.History(ctx, transactionID, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.SignedTransactions...)
		if !resp.HasMore || resp.Revision == "" || resp.Revision == page.Revision {
			return all, nil
		}
		page.Revision = resp.Revision
	}
}

// HistoryForPurchase fetches the history of a purchase decoded from a local
// receipt, looked up by its original transaction identifier when the
// receipt records one.
func (c *Client) HistoryForPurchase(ctx context.Context, p *receipt.InAppPurchase, r *HistoryRequest) (*HistoryResponse, error) {
	id := p.TransactionID
	if p.OriginalTransactionID != nil && *p.OriginalTransactionID != "" {
		id = *p.OriginalTransactionID
	}
	return c.History(ctx, id, r)
}

// handleResponse interprets the HTTP response from the App Store Server API
// and maps status codes to predefined error values.
func (c *Client) handleResponse(resp *http.Response) (*HistoryResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.inner.Logger.Error("failed to read transaction history response body",
			"status", resp.StatusCode,
			"error", err,
		)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.inner.Logger.Debug("transaction history response received",
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	switch resp.StatusCode {
	case 200:
		var history HistoryResponse
		if err := json.Unmarshal(body, &history); err != nil {
			c.inner.Logger.Warn("invalid JSON in transaction history response", "error", err)
			return nil, fmt.Errorf("failed to decode transaction history: %w", err)
		}
		return &history, nil

	case 400:
		apiErr := parseAPIError(body)
		if apiErr != nil && apiErr.Code == errorCodeInvalidTransactionID {
			c.inner.Logger.Warn("invalid transaction id", "status", 400)
			return nil, ErrInvalidTransactionID
		}
		c.inner.Logger.Warn("bad request", "status", 400, "body", string(body))
		if apiErr != nil {
			return nil, fmt.Errorf("bad request: %w", apiErr)
		}
		return nil, fmt.Errorf("bad request: %s", strings.TrimSpace(string(body)))

	case 401:
		c.inner.Logger.Warn("unauthorized transaction history request", "status", 401)
		return nil, ErrUnauthorized

	case 404:
		c.inner.Logger.Info("transaction not found", "status", 404)
		return nil, ErrTransactionNotFound

	case 429:
		c.inner.Logger.Warn("too many transaction history requests", "status", 429)
		return nil, ErrTooManyRequests

	case 500:
		c.inner.Logger.Error("App Store server error", "status", 500)
		return nil, ErrServerError

	case 503:
		c.inner.Logger.Error("App Store service unavailable", "status", 503)
		return nil, ErrServiceUnavailable

	default:
		c.inner.Logger.Error("unexpected transaction history response",
			"status", resp.StatusCode,
			"body", string(body),
		)
		if apiErr := parseAPIError(body); apiErr != nil {
			return nil, fmt.Errorf("unexpected status code %d: %w", resp.StatusCode, apiErr)
		}
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func parseAPIError(body []byte) *APIError {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Code == 0 {
		return nil
	}
	return &apiErr
}
