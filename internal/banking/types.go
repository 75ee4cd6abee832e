package banking

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResumeToken is the serialized state of a previous protocol dialog. It is
// opaque: the engine stores it and hands it back verbatim, never parses it.
type ResumeToken []byte

// SEPAAccount identifies one account inside a banking dialog.
type SEPAAccount struct {
	IBAN string
	BIC  string
}

// Transaction is one booked turnover as reported by the bank.
type Transaction struct {
	Date         time.Time
	Amount       decimal.Decimal
	Counterparty string
	Purpose      string
}

// DisplayName returns the label used when forwarding or notifying: the
// counterparty when present, otherwise the leading part of the purpose text.
func (t Transaction) DisplayName() string {
	if t.Counterparty != "" {
		return t.Counterparty
	}
	if t.Purpose != "" {
		if len(t.Purpose) > 50 {
			return t.Purpose[:50]
		}
		return t.Purpose
	}
	return "Unknown"
}

// Balance is the booked balance of an account at a point in time.
type Balance struct {
	Amount decimal.Decimal
	AsOf   time.Time
}

// TanMechanism is one two-factor method the bank currently offers.
type TanMechanism struct {
	ID          string
	Name        string
	NeedsMedium bool
}

// TanPreference is the saved choice of TAN mechanism and medium for an
// account. A saved preference is only applied when the bank still offers
// the exact mechanism ID (and medium, where one is required).
type TanPreference struct {
	MechanismID   string
	MechanismName string
	MediumName    string
}

// IsSet reports whether a mechanism has been chosen at all.
func (p TanPreference) IsSet() bool {
	return p.MechanismID != "" && p.MechanismName != ""
}

// Challenge is a TAN prompt issued by the bank during a dialog. Decoupled
// challenges (BestSign-style) are confirmed in a separate app and answered
// with an empty code.
type Challenge struct {
	Text      string
	Decoupled bool
}
