package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
)

// ConsolePrompter asks for user confirmations on the terminal. It
// implements the bridge connector's Prompter port.
type ConsolePrompter struct {
	in *bufio.Reader
}

// NewConsolePrompter creates a prompter reading from stdin.
func NewConsolePrompter() *ConsolePrompter {
	return &ConsolePrompter{in: bufio.NewReader(os.Stdin)}
}

// ConfirmLink pauses until the user confirms the bridge's link button has
// been pressed. Typing q abandons the flow.
func (p *ConsolePrompter) ConfirmLink(ctx context.Context) (bool, error) {
	fmt.Print("Press the link button on the Hue bridge, then hit Enter (q to abort): ")
	line, err := p.readLine(ctx)
	if err != nil {
		return false, err
	}
	return line != "q", nil
}

// RetryDiscovery asks whether the portal lookup should run once more.
func (p *ConsolePrompter) RetryDiscovery(ctx context.Context) (bool, error) {
	fmt.Print("No bridge found. Search again? [y/N]: ")
	line, err := p.readLine(ctx)
	if err != nil {
		return false, err
	}
	return line == "y" || line == "yes", nil
}

// ManualAddress asks for a bridge IP address typed in by hand. An empty
// line declines.
func (p *ConsolePrompter) ManualAddress(ctx context.Context) (string, bool, error) {
	fmt.Print("Enter the bridge IP address (empty to give up): ")
	line, err := p.readLine(ctx)
	if err != nil {
		return "", false, err
	}
	if line == "" {
		return "", false, nil
	}
	if net.ParseIP(line) == nil {
		fmt.Printf("%q does not look like an IP address, trying it anyway\n", line)
	}
	return line, true, nil
}

func (p *ConsolePrompter) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}
