package forward

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/carson-networks/fints-sync/internal/banking"
)

type stubMessenger struct {
	sent    []string
	targets []string
	err     error
}

func (s *stubMessenger) Send(_ context.Context, target, text string) error {
	if s.err != nil {
		return s.err
	}
	s.targets = append(s.targets, target)
	s.sent = append(s.sent, text)
	return nil
}

func (s *stubMessenger) Prompt(context.Context, string, string) (string, error) {
	return "", errors.New("not a prompt test")
}

func TestBotNotifier_ForwardTransaction(t *testing.T) {
	messenger := &stubMessenger{}
	notifier := NewBotNotifier(messenger, "ops@example.test")

	outcome, err := notifier.ForwardTransaction(context.Background(), banking.Transaction{
		Date:         time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Amount:       decimal.RequireFromString("-49.99"),
		Counterparty: "AMAZON EU SARL",
	})

	assert.NoError(t, err)
	assert.Equal(t, Accepted, outcome)
	assert.Equal(t, []string{"  2024-01-15: -49.99€ - AMAZON EU SARL"}, messenger.sent)
	assert.Equal(t, []string{"ops@example.test"}, messenger.targets)
}

func TestBotNotifier_ForwardBalance(t *testing.T) {
	messenger := &stubMessenger{}
	notifier := NewBotNotifier(messenger, "ops@example.test")

	outcome, err := notifier.ForwardBalance(context.Background(), banking.Balance{
		Amount: decimal.RequireFromString("1234.5"),
		AsOf:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	})

	assert.NoError(t, err)
	assert.Equal(t, Accepted, outcome)
	assert.Equal(t, []string{"Balance: 1234.50€"}, messenger.sent)
}

func TestBotNotifier_DeliveryFailure(t *testing.T) {
	messenger := &stubMessenger{err: errors.New("transport down")}
	notifier := NewBotNotifier(messenger, "ops@example.test")

	outcome, err := notifier.ForwardTransaction(context.Background(), banking.Transaction{
		Date:   time.Now(),
		Amount: decimal.RequireFromString("1.00"),
	})

	assert.Equal(t, Failed, outcome)
	assert.Error(t, err)
}

func TestFormatTransactionLine(t *testing.T) {
	tests := []struct {
		name string
		tx   banking.Transaction
		want string
	}{
		{
			name: "debit with counterparty",
			tx: banking.Transaction{
				Date:         time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
				Amount:       decimal.RequireFromString("-49.99"),
				Counterparty: "AMAZON EU SARL",
			},
			want: "  2024-01-15: -49.99€ - AMAZON EU SARL",
		},
		{
			name: "credit gets an explicit plus",
			tx: banking.Transaction{
				Date:         time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
				Amount:       decimal.RequireFromString("2500.00"),
				Counterparty: "ACME GMBH",
			},
			want: "  2024-01-16: +2500.00€ - ACME GMBH",
		},
		{
			name: "zero counts as credit",
			tx: banking.Transaction{
				Date:         time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC),
				Amount:       decimal.Zero,
				Counterparty: "BANK",
			},
			want: "  2024-01-17: +0.00€ - BANK",
		},
		{
			name: "no counterparty falls back to purpose",
			tx: banking.Transaction{
				Date:    time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC),
				Amount:  decimal.RequireFromString("-9.50"),
				Purpose: "KARTENZAHLUNG 1234",
			},
			want: "  2024-01-18: -9.50€ - KARTENZAHLUNG 1234",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTransactionLine(tt.tx))
		})
	}
}
