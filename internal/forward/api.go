package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/carson-networks/fints-sync/internal/banking"
	"github.com/carson-networks/fints-sync/internal/config"
)

const (
	balancePath     = "/index.php/records/bankbalance"
	transactionPath = "/transaction.php"

	pingTimeout = 10 * time.Second
	postTimeout = 30 * time.Second
)

var _ Forwarder = (*ForecastClient)(nil)

// ForecastClient posts balances and transactions to the forecast API with
// HTTP Basic Auth. Response handling: 200/201 accepted, 409 accepted as
// duplicate, 401 fatal configuration error, anything else transient.
type ForecastClient struct {
	baseURL  string
	user     string
	password string
	client   *http.Client
}

func NewForecastClient(settings config.APISettings) *ForecastClient {
	return &ForecastClient{
		baseURL:  settings.URL,
		user:     settings.User,
		password: settings.Password,
		client:   &http.Client{Timeout: postTimeout},
	}
}

func (c *ForecastClient) Name() string { return "forecast-api" }

// Ping checks reachability and credentials before a run commits to a
// banking dialog. Any reachable response other than 401/403 is fine.
func (c *ForecastClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+balancePath, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("API unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("API ping: %w", banking.ErrAuthRejected)
	case http.StatusForbidden:
		return fmt.Errorf("API ping: access forbidden: %w", banking.ErrAuthRejected)
	}
	return nil
}

func (c *ForecastClient) ForwardBalance(ctx context.Context, balance banking.Balance) (Outcome, error) {
	payload := map[string]string{
		"date":  balance.AsOf.Format("2006-01-02"),
		"value": balance.Amount.StringFixed(2),
	}
	return c.post(ctx, c.baseURL+balancePath, payload)
}

func (c *ForecastClient) ForwardTransaction(ctx context.Context, tx banking.Transaction) (Outcome, error) {
	payload := map[string]string{
		"name":       tx.DisplayName(),
		"value":      tx.Amount.StringFixed(2),
		"dateactual": tx.Date.Format("2006-01-02"),
		"status":     "paid",
	}
	return c.post(ctx, c.baseURL+transactionPath, payload)
}

func (c *ForecastClient) post(ctx context.Context, url string, payload map[string]string) (Outcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Failed, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Failed, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return Failed, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return Accepted, nil
	case resp.StatusCode == http.StatusConflict:
		return Duplicate, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return Failed, fmt.Errorf("API: %w", banking.ErrAuthRejected)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return Failed, fmt.Errorf("API error %d: %s", resp.StatusCode, snippet)
	}
}
