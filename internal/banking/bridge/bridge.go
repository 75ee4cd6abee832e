// Package bridge adapts an external banking-protocol helper process to the
// banking ports. The helper owns the wire protocol (dialog negotiation,
// TAN round-trips, statement parsing); this side only shuttles opaque
// requests and responses as newline-delimited JSON over stdin/stdout.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/carson-networks/fints-sync/internal/banking"
)

const dateLayout = "2006-01-02"

var _ banking.Dialer = (*Dialer)(nil)

// Dialer launches one helper process per dialog.
type Dialer struct {
	command string
	args    []string
}

// NewDialer builds a Dialer from an invocation string, e.g.
// "python3 -m fints_helper".
func NewDialer(invocation string) (*Dialer, error) {
	fields := strings.Fields(invocation)
	if len(fields) == 0 {
		return nil, errors.New("empty banking helper command")
	}
	return &Dialer{command: fields[0], args: fields[1:]}, nil
}

func (d *Dialer) Dial(ctx context.Context, cfg banking.DialConfig, token banking.ResumeToken, handler banking.ChallengeHandler) (banking.Session, error) {
	cmd := exec.CommandContext(ctx, d.command, d.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting banking helper: %w", err)
	}

	sess := &Session{
		cmd:     cmd,
		in:      stdin,
		out:     bufio.NewScanner(stdout),
		handler: handler,
	}
	sess.out.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	_, err = sess.roundTrip(ctx, request{
		Op: "dial",
		Config: &dialPayload{
			BLZ:       cfg.BLZ,
			ServerURL: cfg.ServerURL,
			Username:  cfg.Username,
			PIN:       cfg.PIN,
			ProductID: cfg.ProductID,
		},
		Resume: token,
	})
	if err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

// Session is one helper process holding an open dialog.
type Session struct {
	cmd     *exec.Cmd
	in      io.WriteCloser
	out     *bufio.Scanner
	handler banking.ChallengeHandler
	closed  bool
}

type dialPayload struct {
	BLZ       string `json:"blz"`
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
	PIN       string `json:"pin"`
	ProductID string `json:"product_id"`
}

type request struct {
	Op        string       `json:"op"`
	Config    *dialPayload `json:"config,omitempty"`
	Resume    []byte       `json:"resume,omitempty"`
	IBAN      string       `json:"iban,omitempty"`
	From      string       `json:"from,omitempty"`
	To        string       `json:"to,omitempty"`
	Mechanism string       `json:"mechanism,omitempty"`
	Medium    string       `json:"medium,omitempty"`
	TAN       *string      `json:"tan,omitempty"`
}

type response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`

	// Challenge events interleave with responses: the helper asks, we
	// answer through the challenge handler, the helper continues.
	Event     string `json:"event,omitempty"`
	Challenge string `json:"challenge,omitempty"`
	Decoupled bool   `json:"decoupled,omitempty"`

	Accounts []struct {
		IBAN string `json:"iban"`
		BIC  string `json:"bic"`
	} `json:"accounts,omitempty"`
	Balance *struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
	} `json:"balance,omitempty"`
	Transactions []struct {
		Date         string `json:"date"`
		Amount       string `json:"amount"`
		Counterparty string `json:"counterparty"`
		Purpose      string `json:"purpose"`
	} `json:"transactions,omitempty"`
	Mechanisms []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		NeedsMedium bool   `json:"needs_medium"`
	} `json:"mechanisms,omitempty"`
	Media []string `json:"media,omitempty"`
	State []byte   `json:"state,omitempty"`
}

func (s *Session) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.in.Write(append(data, '\n'))
	return err
}

// roundTrip sends one request and reads until its response arrives,
// answering any TAN challenge events the helper raises along the way.
func (s *Session) roundTrip(ctx context.Context, req request) (*response, error) {
	if err := s.send(req); err != nil {
		return nil, fmt.Errorf("banking helper write: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.out.Scan() {
			if err := s.out.Err(); err != nil {
				return nil, fmt.Errorf("banking helper read: %w", err)
			}
			return nil, errors.New("banking helper closed the stream")
		}

		var resp response
		if err := json.Unmarshal(s.out.Bytes(), &resp); err != nil {
			return nil, fmt.Errorf("banking helper sent malformed JSON: %w", err)
		}

		if resp.Event == "tan_challenge" {
			tan, err := s.handler.EnterTAN(ctx, banking.Challenge{
				Text:      resp.Challenge,
				Decoupled: resp.Decoupled,
			})
			if err != nil {
				return nil, err
			}
			if err := s.send(request{Op: "tan", TAN: &tan}); err != nil {
				return nil, fmt.Errorf("banking helper write: %w", err)
			}
			continue
		}

		if !resp.OK {
			return nil, helperError(&resp)
		}
		return &resp, nil
	}
}

func helperError(resp *response) error {
	switch resp.Code {
	case "auth_rejected":
		return fmt.Errorf("%s: %w", resp.Error, banking.ErrAuthRejected)
	case "auth_timeout":
		return fmt.Errorf("%s: %w", resp.Error, banking.ErrAuthTimeout)
	}
	return fmt.Errorf("banking helper: %s", resp.Error)
}

func (s *Session) Accounts(ctx context.Context) ([]banking.SEPAAccount, error) {
	resp, err := s.roundTrip(ctx, request{Op: "accounts"})
	if err != nil {
		return nil, err
	}
	accounts := make([]banking.SEPAAccount, len(resp.Accounts))
	for i, a := range resp.Accounts {
		accounts[i] = banking.SEPAAccount{IBAN: a.IBAN, BIC: a.BIC}
	}
	return accounts, nil
}

func (s *Session) Balance(ctx context.Context, account banking.SEPAAccount) (banking.Balance, error) {
	resp, err := s.roundTrip(ctx, request{Op: "balance", IBAN: account.IBAN})
	if err != nil {
		return banking.Balance{}, err
	}
	if resp.Balance == nil {
		return banking.Balance{}, errors.New("banking helper returned no balance")
	}
	amount, err := decimal.NewFromString(resp.Balance.Amount)
	if err != nil {
		return banking.Balance{}, fmt.Errorf("bad balance amount %q: %w", resp.Balance.Amount, err)
	}
	balance := banking.Balance{Amount: amount}
	if resp.Balance.Date != "" {
		if asOf, err := time.Parse(dateLayout, resp.Balance.Date); err == nil {
			balance.AsOf = asOf
		}
	}
	return balance, nil
}

func (s *Session) Transactions(ctx context.Context, account banking.SEPAAccount, from, to time.Time) ([]banking.Transaction, error) {
	resp, err := s.roundTrip(ctx, request{
		Op:   "transactions",
		IBAN: account.IBAN,
		From: from.Format(dateLayout),
		To:   to.Format(dateLayout),
	})
	if err != nil {
		return nil, err
	}

	txs := make([]banking.Transaction, 0, len(resp.Transactions))
	for _, raw := range resp.Transactions {
		date, err := time.Parse(dateLayout, raw.Date)
		if err != nil {
			logrus.WithField("date", raw.Date).Warn("skipping transaction with unparseable date")
			continue
		}
		amount, err := decimal.NewFromString(raw.Amount)
		if err != nil {
			logrus.WithField("amount", raw.Amount).Warn("skipping transaction with unparseable amount")
			continue
		}
		txs = append(txs, banking.Transaction{
			Date:         date,
			Amount:       amount,
			Counterparty: raw.Counterparty,
			Purpose:      raw.Purpose,
		})
	}
	return txs, nil
}

func (s *Session) TanMechanisms(ctx context.Context) ([]banking.TanMechanism, error) {
	resp, err := s.roundTrip(ctx, request{Op: "tan_mechanisms"})
	if err != nil {
		return nil, err
	}
	mechanisms := make([]banking.TanMechanism, len(resp.Mechanisms))
	for i, m := range resp.Mechanisms {
		mechanisms[i] = banking.TanMechanism{ID: m.ID, Name: m.Name, NeedsMedium: m.NeedsMedium}
	}
	return mechanisms, nil
}

func (s *Session) TanMedia(ctx context.Context, mechanism banking.TanMechanism) ([]string, error) {
	resp, err := s.roundTrip(ctx, request{Op: "tan_media", Mechanism: mechanism.ID})
	if err != nil {
		return nil, err
	}
	return resp.Media, nil
}

func (s *Session) SetTanMechanism(id string) error {
	_, err := s.roundTrip(context.Background(), request{Op: "set_tan_mechanism", Mechanism: id})
	return err
}

func (s *Session) SetTanMedium(name string) error {
	_, err := s.roundTrip(context.Background(), request{Op: "set_tan_medium", Medium: name})
	return err
}

func (s *Session) Serialize() (banking.ResumeToken, error) {
	resp, err := s.roundTrip(context.Background(), request{Op: "serialize"})
	if err != nil {
		return nil, err
	}
	return banking.ResumeToken(resp.State), nil
}

func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	_ = s.send(request{Op: "close"})
	_ = s.in.Close()
	return s.cmd.Wait()
}
