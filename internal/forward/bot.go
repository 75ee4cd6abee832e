package forward

import (
	"context"
	"fmt"

	"github.com/carson-networks/fints-sync/internal/banking"
	"github.com/carson-networks/fints-sync/internal/bot"
)

var _ Forwarder = (*BotNotifier)(nil)

// BotNotifier forwards data as formatted messages over a bot transport.
// The transport has no notion of a duplicate; a delivery failure means the
// item is retried next run.
type BotNotifier struct {
	messenger bot.Messenger
	target    string
}

func NewBotNotifier(messenger bot.Messenger, target string) *BotNotifier {
	return &BotNotifier{messenger: messenger, target: target}
}

func (n *BotNotifier) Name() string { return "bot" }

func (n *BotNotifier) ForwardTransaction(ctx context.Context, tx banking.Transaction) (Outcome, error) {
	if err := n.messenger.Send(ctx, n.target, FormatTransactionLine(tx)); err != nil {
		return Failed, err
	}
	return Accepted, nil
}

func (n *BotNotifier) ForwardBalance(ctx context.Context, balance banking.Balance) (Outcome, error) {
	text := fmt.Sprintf("Balance: %s€", balance.Amount.StringFixed(2))
	if err := n.messenger.Send(ctx, n.target, text); err != nil {
		return Failed, err
	}
	return Accepted, nil
}

// FormatTransactionLine renders one transaction for humans, e.g.
// "  2024-01-15: -49.99€ - AMAZON EU SARL". Credits get an explicit plus.
func FormatTransactionLine(tx banking.Transaction) string {
	sign := ""
	if tx.Amount.Sign() >= 0 {
		sign = "+"
	}
	return fmt.Sprintf("  %s: %s%s€ - %s",
		tx.Date.Format("2006-01-02"), sign, tx.Amount.StringFixed(2), tx.DisplayName())
}
