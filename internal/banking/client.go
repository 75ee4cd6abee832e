package banking

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAuthRejected marks credential or TAN rejection by the bank or a
	// downstream sink. Fatal for the run.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrAuthTimeout marks an expired wait for a TAN confirmation.
	// Fatal for the run but safe to retry later.
	ErrAuthTimeout = errors.New("authentication timed out")
)

// DialConfig carries everything the protocol client needs to open a dialog
// for one account. Assembled from the account profile and its settings.
type DialConfig struct {
	BLZ       string
	ServerURL string
	Username  string
	PIN       string
	ProductID string
}

// Dialer opens banking dialogs. Implementations wrap the actual wire
// protocol, which is outside this module.
type Dialer interface {
	// Dial opens a dialog, resuming from token when one is given. A nil
	// token forces a full handshake.
	Dial(ctx context.Context, cfg DialConfig, token ResumeToken, handler ChallengeHandler) (Session, error)
}

// Session is one open protocol dialog. Sessions are stateful and must not
// be used concurrently.
type Session interface {
	Accounts(ctx context.Context) ([]SEPAAccount, error)
	Balance(ctx context.Context, account SEPAAccount) (Balance, error)
	Transactions(ctx context.Context, account SEPAAccount, from, to time.Time) ([]Transaction, error)

	TanMechanisms(ctx context.Context) ([]TanMechanism, error)
	TanMedia(ctx context.Context, mechanism TanMechanism) ([]string, error)
	SetTanMechanism(id string) error
	SetTanMedium(name string) error

	// Serialize snapshots the dialog state for a shortened handshake on
	// the next connection.
	Serialize() (ResumeToken, error)
	Close() error
}

// ChallengeHandler answers TAN prompts and selection questions during a
// dialog. Variants: interactive console, bot round-trip, none-available.
type ChallengeHandler interface {
	SelectMechanism(ctx context.Context, mechanisms []TanMechanism) (TanMechanism, error)
	SelectMedium(ctx context.Context, mechanism TanMechanism, media []string) (string, error)
	EnterTAN(ctx context.Context, challenge Challenge) (string, error)
}

// FindAccountByIBAN returns the account matching iban, or false.
func FindAccountByIBAN(accounts []SEPAAccount, iban string) (SEPAAccount, bool) {
	for _, acc := range accounts {
		if acc.IBAN == iban {
			return acc, true
		}
	}
	return SEPAAccount{}, false
}
