package forward

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/carson-networks/fints-sync/internal/banking"
	"github.com/carson-networks/fints-sync/internal/config"
)

type capturedRequest struct {
	path string
	user string
	pass string
	body map[string]string
}

// newAPIServer returns a client against a stub API answering every POST
// with status, capturing what arrived.
func newAPIServer(t *testing.T, status int) (*ForecastClient, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.user, captured.pass, _ = r.BasicAuth()
		if r.Method == http.MethodPost {
			data, _ := io.ReadAll(r.Body)
			captured.body = map[string]string{}
			assert.NoError(t, json.Unmarshal(data, &captured.body))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	client := NewForecastClient(config.APISettings{
		URL:      srv.URL,
		User:     "sync",
		Password: "apisecret",
	})
	return client, captured
}

func TestForwardTransaction_Payload(t *testing.T) {
	client, captured := newAPIServer(t, http.StatusCreated)

	outcome, err := client.ForwardTransaction(context.Background(), banking.Transaction{
		Date:         time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Amount:       decimal.RequireFromString("-49.99"),
		Counterparty: "AMAZON EU SARL",
		Purpose:      "AMAZON EU SARL 302-1234567-1234567",
	})

	assert.NoError(t, err)
	assert.Equal(t, Accepted, outcome)
	assert.Equal(t, "/transaction.php", captured.path)
	assert.Equal(t, "sync", captured.user)
	assert.Equal(t, "apisecret", captured.pass)
	assert.Equal(t, map[string]string{
		"name":       "AMAZON EU SARL",
		"value":      "-49.99",
		"dateactual": "2024-01-15",
		"status":     "paid",
	}, captured.body)
}

func TestForwardTransaction_FallsBackToPurposeName(t *testing.T) {
	client, captured := newAPIServer(t, http.StatusOK)

	outcome, err := client.ForwardTransaction(context.Background(), banking.Transaction{
		Date:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Amount:  decimal.RequireFromString("-9.50"),
		Purpose: "KARTENZAHLUNG 1234",
	})

	assert.NoError(t, err)
	assert.Equal(t, Accepted, outcome)
	assert.Equal(t, "KARTENZAHLUNG 1234", captured.body["name"])
}

func TestForwardBalance_Payload(t *testing.T) {
	client, captured := newAPIServer(t, http.StatusOK)

	outcome, err := client.ForwardBalance(context.Background(), banking.Balance{
		Amount: decimal.RequireFromString("1234.5"),
		AsOf:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	})

	assert.NoError(t, err)
	assert.Equal(t, Accepted, outcome)
	assert.Equal(t, "/index.php/records/bankbalance", captured.path)
	assert.Equal(t, map[string]string{
		"date":  "2024-01-15",
		"value": "1234.50",
	}, captured.body, "amounts always carry two decimals")
}

func TestPost_ConflictIsDuplicate(t *testing.T) {
	client, _ := newAPIServer(t, http.StatusConflict)

	outcome, err := client.ForwardTransaction(context.Background(), banking.Transaction{
		Date:   time.Now(),
		Amount: decimal.RequireFromString("1.00"),
	})

	assert.NoError(t, err, "a sink-side duplicate is not an error")
	assert.Equal(t, Duplicate, outcome)
}

func TestPost_UnauthorizedIsFatal(t *testing.T) {
	client, _ := newAPIServer(t, http.StatusUnauthorized)

	outcome, err := client.ForwardTransaction(context.Background(), banking.Transaction{
		Date:   time.Now(),
		Amount: decimal.RequireFromString("1.00"),
	})

	assert.Equal(t, Failed, outcome)
	assert.ErrorIs(t, err, banking.ErrAuthRejected)
}

func TestPost_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	t.Cleanup(srv.Close)

	client := NewForecastClient(config.APISettings{URL: srv.URL, User: "u", Password: "p"})
	outcome, err := client.ForwardTransaction(context.Background(), banking.Transaction{
		Date:   time.Now(),
		Amount: decimal.RequireFromString("1.00"),
	})

	assert.Equal(t, Failed, outcome)
	assert.NotErrorIs(t, err, banking.ErrAuthRejected)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestPost_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := NewForecastClient(config.APISettings{URL: srv.URL, User: "u", Password: "p"})
	outcome, err := client.ForwardBalance(context.Background(), banking.Balance{
		Amount: decimal.RequireFromString("1.00"),
		AsOf:   time.Now(),
	})

	assert.Equal(t, Failed, outcome)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, banking.ErrAuthRejected)
}

func TestPing_Reachable(t *testing.T) {
	client, captured := newAPIServer(t, http.StatusOK)

	err := client.Ping(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, "/index.php/records/bankbalance", captured.path)
	assert.Equal(t, "sync", captured.user)
}

func TestPing_MethodNotAllowedStillCountsAsReachable(t *testing.T) {
	client, _ := newAPIServer(t, http.StatusMethodNotAllowed)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestPing_Unauthorized(t *testing.T) {
	client, _ := newAPIServer(t, http.StatusUnauthorized)
	assert.ErrorIs(t, client.Ping(context.Background()), banking.ErrAuthRejected)
}

func TestPing_Forbidden(t *testing.T) {
	client, _ := newAPIServer(t, http.StatusForbidden)
	assert.ErrorIs(t, client.Ping(context.Background()), banking.ErrAuthRejected)
}

func TestPing_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := NewForecastClient(config.APISettings{URL: srv.URL, User: "u", Password: "p"})
	err := client.Ping(context.Background())

	assert.Error(t, err)
	assert.NotErrorIs(t, err, banking.ErrAuthRejected)
}
