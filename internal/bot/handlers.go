package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/carson-networks/fints-sync/internal/banking"
)

// MessengerHandler answers TAN challenges over a bot round-trip. Every
// wait is bounded: an expired timeout fails the run as retryable
// authentication timeout instead of hanging forever.
type MessengerHandler struct {
	messenger Messenger
	target    string
	timeout   time.Duration
}

func NewMessengerHandler(messenger Messenger, target string, timeout time.Duration) *MessengerHandler {
	return &MessengerHandler{messenger: messenger, target: target, timeout: timeout}
}

func (h *MessengerHandler) prompt(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	answer, err := h.messenger.Prompt(ctx, h.target, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", banking.ErrAuthTimeout
		}
		return "", err
	}
	return answer, nil
}

func (h *MessengerHandler) SelectMechanism(ctx context.Context, mechanisms []banking.TanMechanism) (banking.TanMechanism, error) {
	var sb strings.Builder
	sb.WriteString("Multiple TAN mechanisms available. Which one do you prefer?\n")
	for i, m := range mechanisms {
		fmt.Fprintf(&sb, "%d Function %s: %s\n", i, m.ID, m.Name)
	}
	sb.WriteString("Choice: ")

	answer, err := h.prompt(ctx, sb.String())
	if err != nil {
		return banking.TanMechanism{}, err
	}
	idx, err := parseChoice(answer, len(mechanisms)-1)
	if err != nil {
		return banking.TanMechanism{}, err
	}
	return mechanisms[idx], nil
}

func (h *MessengerHandler) SelectMedium(ctx context.Context, mechanism banking.TanMechanism, media []string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Multiple TAN media available for %s. Which one do you prefer?\n", mechanism.Name)
	for i, name := range media {
		fmt.Fprintf(&sb, "%d %s\n", i, name)
	}
	sb.WriteString("Choice: ")

	answer, err := h.prompt(ctx, sb.String())
	if err != nil {
		return "", err
	}
	idx, err := parseChoice(answer, len(media)-1)
	if err != nil {
		return "", err
	}
	return media[idx], nil
}

func (h *MessengerHandler) EnterTAN(ctx context.Context, challenge banking.Challenge) (string, error) {
	if challenge.Decoupled {
		// BestSign-style confirmation happens in the banking app; any
		// reply acknowledges it.
		text := "TAN Challenge:\n" + challenge.Text +
			"\nPlease confirm this transaction in your BestSign app, then reply with any message."
		if _, err := h.prompt(ctx, text); err != nil {
			return "", err
		}
		return "", nil
	}

	answer, err := h.prompt(ctx, "TAN Challenge:\n"+challenge.Text+"\nEnter TAN: ")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// ConsoleHandler answers TAN challenges on the local terminal. Waits are
// unbounded: a human at the keyboard is in charge of the pace.
type ConsoleHandler struct {
	console *ConsoleMessenger
}

func NewConsoleHandler(console *ConsoleMessenger) *ConsoleHandler {
	return &ConsoleHandler{console: console}
}

func (h *ConsoleHandler) SelectMechanism(ctx context.Context, mechanisms []banking.TanMechanism) (banking.TanMechanism, error) {
	h.console.Send(ctx, "", "Multiple TAN mechanisms available. Which one do you prefer?")
	for i, m := range mechanisms {
		h.console.Send(ctx, "", fmt.Sprintf("%d Function %s: %s", i, m.ID, m.Name))
	}
	idx, err := h.validChoice(ctx, "Choice: ", len(mechanisms)-1)
	if err != nil {
		return banking.TanMechanism{}, err
	}
	return mechanisms[idx], nil
}

func (h *ConsoleHandler) SelectMedium(ctx context.Context, mechanism banking.TanMechanism, media []string) (string, error) {
	h.console.Send(ctx, "", "Multiple TAN media available. Which one do you prefer?")
	for i, name := range media {
		h.console.Send(ctx, "", fmt.Sprintf("%d %s", i, name))
	}
	idx, err := h.validChoice(ctx, "Choice: ", len(media)-1)
	if err != nil {
		return "", err
	}
	return media[idx], nil
}

func (h *ConsoleHandler) EnterTAN(ctx context.Context, challenge banking.Challenge) (string, error) {
	h.console.Send(ctx, "", "\nTAN Challenge:")
	if challenge.Text != "" {
		h.console.Send(ctx, "", "Challenge: "+challenge.Text)
	}

	if challenge.Decoupled {
		h.console.Send(ctx, "", "\nPlease confirm this transaction in your BestSign app.")
		if _, err := h.console.Prompt(ctx, "", "Press Enter after confirming..."); err != nil {
			return "", err
		}
		return "", nil
	}

	return h.console.Prompt(ctx, "", "\nEnter TAN: ")
}

func (h *ConsoleHandler) validChoice(ctx context.Context, prompt string, maxIndex int) (int, error) {
	for {
		answer, err := h.console.Prompt(ctx, "", prompt)
		if err != nil {
			return 0, err
		}
		idx, err := parseChoice(answer, maxIndex)
		if err == nil {
			return idx, nil
		}
		h.console.Send(ctx, "", fmt.Sprintf("Please enter a number between 0 and %d", maxIndex))
	}
}

// NoneHandler is for unattended runs with no channel to the operator.
// Any challenge that needs a human fails the run.
type NoneHandler struct{}

var errNoChannel = errors.New("TAN interaction required but no channel to the operator is configured")

func (NoneHandler) SelectMechanism(context.Context, []banking.TanMechanism) (banking.TanMechanism, error) {
	return banking.TanMechanism{}, errNoChannel
}

func (NoneHandler) SelectMedium(context.Context, banking.TanMechanism, []string) (string, error) {
	return "", errNoChannel
}

func (NoneHandler) EnterTAN(context.Context, banking.Challenge) (string, error) {
	return "", errNoChannel
}

func parseChoice(answer string, maxIndex int) (int, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil || idx < 0 || idx > maxIndex {
		return 0, fmt.Errorf("invalid selection %q", answer)
	}
	return idx, nil
}
