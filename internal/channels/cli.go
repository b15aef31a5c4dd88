package channels

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/crystaldolphin/crystaldolphin/internal/bus"
	"github.com/crystaldolphin/crystaldolphin/internal/shared/cmdutils"
)

var cliExitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

// CLIChannel wires the terminal (stdin/stdout) into the hub so that
// interactive console input reaches the agent loop and agent replies are
// printed to stdout.
type CLIChannel struct {
	Base
	replies <-chan bus.OutboundMessage
}

// NewCLIChannel creates a CLIChannel and registers its outbound queue.
func NewCLIChannel(hub *bus.Hub) *CLIChannel {
	return &CLIChannel{
		Base:    NewBase(bus.ChannelCLI, hub, nil),
		replies: hub.RegisterChannel(bus.ChannelCLI),
	}
}

func (c *CLIChannel) Name() string { return string(bus.ChannelCLI) }

// Start runs the stdin REPL: reads lines, dispatches them to the agent via
// the hub's inbound queue, and prints each reply received on its own
// outbound queue. Blocks until ctx is cancelled or stdin is closed.
func (c *CLIChannel) Start(ctx context.Context) error {
	fmt.Printf("CLI channel ready. Type 'exit' or press Ctrl+C to quit.\n\n")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("You: ")

		scanDone := make(chan bool, 1)
		go func() {
			scanDone <- scanner.Scan()
		}()

		select {
		case ok := <-scanDone:
			if !ok {
				fmt.Println("\nGoodbye!")
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if cliExitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}

		c.HandleMessage("cli-user", "direct", line, nil, nil)
		c.waitForReply(ctx)
	}
}

// waitForReply blocks until the agent publishes a non-progress reply,
// printing progress updates inline as they arrive.
func (c *CLIChannel) waitForReply(ctx context.Context) {
	for {
		select {
		case msg := <-c.replies:
			if prog, _ := msg.Metadata()["_progress"].(bool); prog {
				fmt.Printf("  -> %s\n", msg.Content())
				continue
			}
			cmdutils.PrintResponse(msg.Content())
			return
		case <-ctx.Done():
			return
		}
	}
}

// Send prints an outbound agent reply directly, for callers that deliver a
// single reply without going through Start's REPL loop.
func (c *CLIChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	cmdutils.PrintResponse(msg.Content())
	return nil
}
