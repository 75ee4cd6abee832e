// Package engine orchestrates one sync run: resume a banking dialog, fetch
// balance and transactions, diff against the ledger, forward what is new,
// and persist the outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/gofrs/uuid/v5"
	"github.com/sirupsen/logrus"

	"github.com/carson-networks/fints-sync/internal/banking"
	"github.com/carson-networks/fints-sync/internal/bot"
	"github.com/carson-networks/fints-sync/internal/config"
	"github.com/carson-networks/fints-sync/internal/forward"
	"github.com/carson-networks/fints-sync/internal/logging"
	"github.com/carson-networks/fints-sync/internal/session"
	"github.com/carson-networks/fints-sync/internal/storage"
)

// Engine runs the sync pipeline for one account. A run is strictly
// sequential: the banking dialog is stateful and each step depends on the
// previous one.
type Engine struct {
	Dialer   banking.Dialer
	Sessions *session.Store
	Ledger   storage.Ledger
	Handler  banking.ChallengeHandler

	// Forwarders receive each new transaction in order. Empty for
	// interactive runs, which only display data and record nothing.
	Forwarders []forward.Forwarder

	// Messenger carries the notify-step summary; nil disables it.
	Messenger    bot.Messenger
	NotifyTarget string

	Profile           Profile
	ForceTanSelection bool

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Run executes one sync for the given account. The returned Result is
// non-nil whenever the fetch succeeded, even if forwarding was cut short.
func (e *Engine) Run(ctx context.Context, account config.AccountProfile, settings config.Settings, logData *logging.LogData) (*Result, error) {
	if logData == nil {
		logData = logging.NewLogData(logrus.StandardLogger())
	}
	runID, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{
		"account": account.Name,
		"run_id":  runID.String(),
		"mode":    e.Profile.Mode.String(),
	})
	logData.AddData("account", account.Name)
	logData.AddData("run_id", runID.String())

	result := &Result{RunID: runID, Account: account.Name}
	now := e.now()

	// Resume
	endResume := logData.AddTiming("resume")
	sess, err := e.dial(ctx, account, settings, log)
	endResume()
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	pref, prefChanged, err := banking.EnsureMechanism(ctx, sess, settings.Tan, e.Handler, e.ForceTanSelection)
	if err != nil {
		return nil, fmt.Errorf("TAN mechanism: %w", err)
	}
	if prefChanged {
		if err := config.SaveTanPreferences(account.EnvPath, pref); err != nil {
			log.WithError(err).Warn("could not persist TAN preference")
		} else {
			log.WithField("mechanism", pref.MechanismID).Info("TAN preference saved")
		}
	}

	// Fetch
	endFetch := logData.AddTiming("fetch")
	balance, fetched, err := e.fetch(ctx, sess, account, now, log)
	endFetch()
	if err != nil {
		return nil, err
	}
	result.Balance = balance.Amount
	result.BalanceAsOf = balance.AsOf
	result.Fetched = fetched

	// Diff
	newTxs, err := e.diff(ctx, account.Name, fetched, result)
	if err != nil {
		return nil, fmt.Errorf("ledger lookup: %w", err)
	}
	last, err := e.Ledger.BalanceTable().Get(ctx, account.Name)
	if err != nil {
		return nil, fmt.Errorf("ledger balance: %w", err)
	}
	result.BalanceChanged = last == nil || !last.Amount.Equal(balance.Amount)
	if result.BalanceChanged && last != nil {
		log.WithFields(logrus.Fields{
			"previous": last.Amount.String(),
			"current":  balance.Amount.String(),
		}).Info("balance changed")
	}

	// Forward
	endForward := logData.AddTiming("forward")
	var toRecord []banking.Transaction
	var fatalForward error
	if len(e.Forwarders) > 0 {
		fatalForward = e.forwardBalance(ctx, balance, result, log)
		if fatalForward == nil {
			toRecord, fatalForward = e.forwardTransactions(ctx, newTxs, result, log)
		}
	}
	endForward()

	// Commit. What already succeeded stays committed even when
	// forwarding was aborted, so the next run only retries failures.
	endCommit := logData.AddTiming("commit")
	err = e.commit(ctx, account.Name, balance, toRecord)
	endCommit()
	if err != nil {
		return nil, fmt.Errorf("ledger commit: %w", err)
	}

	e.saveSession(sess, account, log)

	// Notify
	if fatalForward == nil {
		e.notify(ctx, result, log)
	}

	logData.AddData("fetched", len(fetched))
	logData.AddData("skipped", result.Skipped)
	logData.AddData("forwarded", result.Forwarded)
	logData.AddData("duplicates", result.Duplicates)
	logData.AddData("failed", result.Failed)
	log.Debug(spew.Sdump(result))

	if fatalForward != nil {
		return result, fatalForward
	}
	return result, nil
}

// dial opens the banking dialog, resuming from saved state when possible.
// A failed resume degrades to a full handshake: resumability is an
// optimization, not a correctness requirement.
func (e *Engine) dial(ctx context.Context, account config.AccountProfile, settings config.Settings, log *logrus.Entry) (banking.Session, error) {
	cfg := account.DialConfig(settings)

	token := e.Sessions.Load(account)
	if token != nil {
		sess, err := e.Dialer.Dial(ctx, cfg, token, e.Handler)
		if err == nil {
			return sess, nil
		}
		if errors.Is(err, banking.ErrAuthRejected) || errors.Is(err, banking.ErrAuthTimeout) {
			return nil, err
		}
		log.WithError(err).Warn("resuming saved session failed, retrying with full handshake")
		if err := e.Sessions.Clear(account); err != nil {
			log.WithError(err).Warn("could not clear stale session state")
		}
	}

	sess, err := e.Dialer.Dial(ctx, cfg, nil, e.Handler)
	if err != nil {
		return nil, fmt.Errorf("opening banking dialog: %w", err)
	}
	return sess, nil
}

func (e *Engine) fetch(ctx context.Context, sess banking.Session, account config.AccountProfile, now time.Time, log *logrus.Entry) (banking.Balance, []banking.Transaction, error) {
	accounts, err := sess.Accounts(ctx)
	if err != nil {
		return banking.Balance{}, nil, fmt.Errorf("fetching accounts: %w", err)
	}
	if len(accounts) == 0 {
		return banking.Balance{}, nil, errors.New("no accounts found in banking dialog")
	}

	sepaAcc, ok := banking.FindAccountByIBAN(accounts, account.IBAN)
	if !ok {
		log.WithField("iban", account.IBAN).Warn("configured IBAN not found, using first account")
		sepaAcc = accounts[0]
	}

	balance, err := sess.Balance(ctx, sepaAcc)
	if err != nil {
		return banking.Balance{}, nil, fmt.Errorf("fetching balance: %w", err)
	}
	if balance.AsOf.IsZero() {
		balance.AsOf = now
	}

	since := e.Profile.Since(now)
	txs, err := sess.Transactions(ctx, sepaAcc, since, now)
	if err != nil {
		return banking.Balance{}, nil, fmt.Errorf("fetching transactions: %w", err)
	}
	log.WithFields(logrus.Fields{
		"iban":  sepaAcc.IBAN,
		"since": since.Format("2006-01-02"),
		"count": len(txs),
	}).Info("fetched transactions")
	return balance, txs, nil
}

// diff partitions fetched transactions into new ones and ledger-known
// ones. Pure key lookups, no fuzzy matching.
func (e *Engine) diff(ctx context.Context, account string, fetched []banking.Transaction, result *Result) ([]banking.Transaction, error) {
	sent := e.Ledger.SentTable()

	var newTxs []banking.Transaction
	for _, tx := range fetched {
		known, err := sent.IsKnown(ctx, account, tx.Date, tx.Amount, tx.Purpose)
		if err != nil {
			return nil, err
		}
		if known {
			result.Skipped++
			continue
		}
		newTxs = append(newTxs, tx)
	}
	return newTxs, nil
}

func (e *Engine) forwardBalance(ctx context.Context, balance banking.Balance, result *Result, log *logrus.Entry) error {
	if !e.Profile.ForwardBalanceAlways && !result.BalanceChanged {
		return nil
	}
	for _, f := range e.Forwarders {
		outcome, err := f.ForwardBalance(ctx, balance)
		if outcome == forward.Failed {
			if errors.Is(err, banking.ErrAuthRejected) {
				return err
			}
			log.WithError(err).WithField("forwarder", f.Name()).Error("balance forward failed")
			continue
		}
		result.BalanceForwarded = true
	}
	return nil
}

// forwardTransactions pushes each new transaction through the configured
// forwarders. One item failing does not block the others; an auth
// rejection aborts the rest of the run's forwards.
func (e *Engine) forwardTransactions(ctx context.Context, newTxs []banking.Transaction, result *Result, log *logrus.Entry) ([]banking.Transaction, error) {
	var toRecord []banking.Transaction
	for _, tx := range newTxs {
		outcome, err := e.forwardOne(ctx, tx, log)
		if err != nil {
			result.Failed++
			return toRecord, err
		}
		switch outcome {
		case forward.Accepted:
			result.Forwarded++
			result.NewTransactions = append(result.NewTransactions, tx)
			toRecord = append(toRecord, tx)
		case forward.Duplicate:
			// The sink already had it: record exactly as if accepted.
			result.Duplicates++
			toRecord = append(toRecord, tx)
		case forward.Failed:
			result.Failed++
		}
	}
	return toRecord, nil
}

func (e *Engine) forwardOne(ctx context.Context, tx banking.Transaction, log *logrus.Entry) (forward.Outcome, error) {
	sawAccepted := false
	sawFailed := false
	for _, f := range e.Forwarders {
		outcome, err := f.ForwardTransaction(ctx, tx)
		switch outcome {
		case forward.Accepted:
			sawAccepted = true
		case forward.Duplicate:
		case forward.Failed:
			if errors.Is(err, banking.ErrAuthRejected) {
				return forward.Failed, err
			}
			sawFailed = true
			log.WithError(err).WithFields(logrus.Fields{
				"forwarder": f.Name(),
				"date":      tx.Date.Format("2006-01-02"),
			}).Error("transaction forward failed, will retry next run")
		}
	}
	if sawFailed {
		return forward.Failed, nil
	}
	if sawAccepted {
		return forward.Accepted, nil
	}
	return forward.Duplicate, nil
}

func (e *Engine) commit(ctx context.Context, account string, balance banking.Balance, toRecord []banking.Transaction) error {
	writer, err := e.Ledger.Write(ctx)
	if err != nil {
		return err
	}

	for _, tx := range toRecord {
		if err := writer.SentTable().Record(ctx, account, tx.Date, tx.Amount, tx.Counterparty, tx.Purpose); err != nil {
			_ = writer.Rollback()
			return err
		}
	}
	// The snapshot updates on every successful fetch regardless of the
	// transactions' forwarding outcome.
	if err := writer.BalanceTable().Set(ctx, account, balance.Amount, balance.AsOf); err != nil {
		_ = writer.Rollback()
		return err
	}
	return writer.Commit()
}

// saveSession persists the dialog state for a shortened next handshake.
// Failures only cost the optimization, never the run.
func (e *Engine) saveSession(sess banking.Session, account config.AccountProfile, log *logrus.Entry) {
	token, err := sess.Serialize()
	if err != nil {
		log.WithError(err).Warn("could not serialize session state")
		return
	}
	if err := e.Sessions.Save(account, token); err != nil {
		log.WithError(err).Warn("could not save session state")
	}
}

// notify sends the human summary over the bot transport. Silent when
// nothing changed, to avoid alert fatigue.
func (e *Engine) notify(ctx context.Context, result *Result, log *logrus.Entry) {
	if e.Messenger == nil || !result.Changed() {
		return
	}

	summary := fmt.Sprintf("Balance: %s€ | New transactions: %d",
		result.Balance.StringFixed(2), len(result.NewTransactions))
	if err := e.Messenger.Send(ctx, e.NotifyTarget, summary); err != nil {
		log.WithError(err).Error("summary notification failed")
		return
	}

	if !e.Profile.NotifyDetails {
		return
	}
	for _, tx := range result.NewTransactions {
		if err := e.Messenger.Send(ctx, e.NotifyTarget, forward.FormatTransactionLine(tx)); err != nil {
			log.WithError(err).Error("notification failed")
			return
		}
	}
}
