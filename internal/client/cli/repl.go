package cli

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

const defaultHistory = 10

const helpText = "Available commands: charge <email>, stats <email>, global, reconcile, download, history [n], exit"

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	Charge(ctx context.Context, email string) error
	Stats(ctx context.Context, email string) error
	Global(ctx context.Context) error
	Reconcile(ctx context.Context) error
	Download(ctx context.Context) error
	History(ctx context.Context, n int) error
}

// runREPL reads commands from scanner until EOF, "exit" or "quit". Errors
// returned by handlers are reported by the handlers themselves.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("ppctl %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		switch cmd {
		case "help":
			printlnFn(helpText)

		case "charge":
			if len(args) != 1 {
				printlnFn("Usage: charge <email>")
				continue
			}
			_ = a.Charge(ctx, args[0])

		case "stats":
			if len(args) != 1 {
				printlnFn("Usage: stats <email>")
				continue
			}
			_ = a.Stats(ctx, args[0])

		case "global":
			_ = a.Global(ctx)

		case "reconcile":
			_ = a.Reconcile(ctx)

		case "download":
			_ = a.Download(ctx)

		case "history":
			n := defaultHistory
			if len(args) > 0 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v <= 0 {
					printlnFn("Usage: history [n]")
					continue
				}
				n = v
			}
			_ = a.History(ctx, n)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
