package app

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests provide a stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Order(ctx context.Context) error
	Status(ctx context.Context) error
	Sync(ctx context.Context) error
	Catalog(ctx context.Context, collection string) error
	Refresh(ctx context.Context, collection string) error
	Tabs(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL reads a line, parses the first token as the command and dispatches
// to methods on a. Errors returned by handlers are ignored here; handlers
// print their own. The loop exits on scanner EOF, "exit"/"quit", or context
// cancellation.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("pos %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: (o)rder, status, sync, catalog <name>, refresh <name>, tabs, logout, exit")
			} else {
				printlnFn("Available commands: login, status, exit")
			}

		case "login":
			_ = a.Login(ctx)

		case "o", "order":
			_ = a.Order(ctx)

		case "status":
			_ = a.Status(ctx)

		case "sync":
			_ = a.Sync(ctx)

		case "catalog":
			if len(args) == 0 {
				printlnFn("Usage: catalog <collection>")
				continue
			}
			_ = a.Catalog(ctx, args[0])

		case "refresh":
			if len(args) == 0 {
				printlnFn("Usage: refresh <collection>")
				continue
			}
			_ = a.Refresh(ctx, args[0])

		case "tabs":
			_ = a.Tabs(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

func (a *App) getStatus() string {
	s := ""
	if a.current != nil {
		s = a.current.OwnerID + " "
	}
	if a.monitor.Reachable() {
		s += "online"
	} else {
		s += "offline"
	}
	return fmt.Sprintf("(%s)", s)
}

func (a *App) repl(ctx context.Context) {
	printlnFn("POS terminal ready (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(os.Stdin))
}
