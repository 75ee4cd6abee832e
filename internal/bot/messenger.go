// Package bot abstracts the messaging transport (Telegram/XMPP-style) the
// engine talks to the operator through. Concrete network transports live
// outside this module; the console implementation here serves interactive
// runs and tests.
package bot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Messenger delivers text to a target and can wait for a reply. Prompt
// blocks until the target answers or ctx expires.
type Messenger interface {
	Send(ctx context.Context, target, text string) error
	Prompt(ctx context.Context, target, text string) (string, error)
}

// ConsoleMessenger reads and writes the local terminal. The target is
// ignored.
type ConsoleMessenger struct {
	out io.Writer
	in  *bufio.Reader
}

func NewConsoleMessenger() *ConsoleMessenger {
	return &ConsoleMessenger{out: os.Stdout, in: bufio.NewReader(os.Stdin)}
}

// NewConsoleMessengerWith wires explicit streams, for tests.
func NewConsoleMessengerWith(out io.Writer, in io.Reader) *ConsoleMessenger {
	return &ConsoleMessenger{out: out, in: bufio.NewReader(in)}
}

func (c *ConsoleMessenger) Send(_ context.Context, _, text string) error {
	_, err := fmt.Fprintln(c.out, text)
	return err
}

func (c *ConsoleMessenger) Prompt(_ context.Context, _ string, text string) (string, error) {
	if _, err := fmt.Fprint(c.out, text); err != nil {
		return "", err
	}
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
