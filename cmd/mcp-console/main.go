// ABOUTME: Console CLI for signing in to an MCP management service
// ABOUTME: Keeps the session in local storage and guards commands that need it

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/2389/mcp-console/internal/api"
	"github.com/2389/mcp-console/internal/config"
	"github.com/2389/mcp-console/internal/kv"
	"github.com/2389/mcp-console/internal/session"
)

const banner = `
                                                     _
 _ __ ___   ___ _ __         ___ ___  _ __  ___  ___ | | ___
| '_ ' _ \ / __| '_ \ _____ / __/ _ \| '_ \/ __|/ _ \| |/ _ \
| | | | | | (__| |_) |_____| (_| (_) | | | \__ \ (_) | |  __/
|_| |_| |_|\___| .__/       \___\___/|_| |_|___/\___/|_|\___|
               |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, cmd, args)
	stop()

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(w, banner)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: mcp-console <command> [args]")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  status                    Show server, session and token expiry")
	fmt.Fprintln(w, "  login [-u user] [-remember]  Sign in (remember keeps the session across reboots)")
	fmt.Fprintln(w, "  logout                    Sign out and clear stored credentials")
	fmt.Fprintln(w, "  me                        Refresh and show your profile")
	fmt.Fprintln(w, "  passwd                    Change your password")
	fmt.Fprintln(w, "  users                     List users (admin only)")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  MCP_CONSOLE_CONFIG        Config file path")
	fmt.Fprintln(w, "  MCP_CONSOLE_URL           Service base URL (default: http://localhost:5000)")
	fmt.Fprintln(w, "  MCP_CONSOLE_LOG_LEVEL     debug, info, warn, error")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  mcp-console login -u admin -remember")
	fmt.Fprintln(w, "  mcp-console users")
	fmt.Fprintln(w)
}

func run(ctx context.Context, cmd string, args []string) error {
	cfg, cfgPath, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stderr)
	if cfgPath != "" {
		logger.Debug("loaded config", "path", cfgPath)
	}

	scopes, err := openScopes(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := scopes.Close(); err != nil {
			logger.Warn("closing session storage", "error", err)
		}
	}()

	client := api.NewClient(cfg.Server.BaseURL, &http.Client{Timeout: cfg.Server.Timeout}, logger)
	client.Use(api.RequestIDHook)

	sess := session.New(scopes, client, client, logger)
	defer sess.Close()

	if err := restore(ctx, sess, cmd, logger); err != nil {
		return err
	}

	stdinFd := int(os.Stdin.Fd())
	a := newApp(sess, client, logger)
	a.out = os.Stdout
	a.in = bufio.NewReader(os.Stdin)
	a.interactive = term.IsTerminal(stdinFd)
	a.readPassword = func(prompt string) (string, error) {
		fmt.Fprint(os.Stderr, prompt)
		pw, err := term.ReadPassword(stdinFd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(pw), nil
	}

	return a.dispatch(ctx, cmd, args)
}

// restore initializes the session. logout still runs when stored state
// cannot be read, so it can clear whatever is left.
func restore(ctx context.Context, sess *session.Store, cmd string, logger *slog.Logger) error {
	err := sess.Initialize(ctx)
	if err == nil {
		return nil
	}
	if cmd != "logout" {
		return fmt.Errorf("restoring session: %w", err)
	}
	logger.Warn("could not restore session, clearing it anyway", "error", err)
	return nil
}

// openScopes opens both storage backends. A transient backend that cannot
// be opened degrades to memory, which still ends with the process.
func openScopes(cfg config.StorageConfig, logger *slog.Logger) (kv.Scopes, error) {
	persistent, err := kv.Open(storeOptions(cfg.Persistent, logger))
	if err != nil {
		return kv.Scopes{}, fmt.Errorf("opening persistent storage: %w", err)
	}

	transient, err := kv.Open(storeOptions(cfg.Transient, logger))
	if err != nil {
		logger.Warn("transient storage unavailable, using memory", "driver", cfg.Transient.Driver, "error", err)
		transient = kv.NewMemory()
	}

	return kv.Scopes{Persistent: persistent, Transient: transient}, nil
}

func storeOptions(c config.ScopeConfig, logger *slog.Logger) kv.Options {
	return kv.Options{
		Driver:    c.Driver,
		Path:      c.Path,
		RedisAddr: c.RedisAddr,
		KeyPrefix: c.KeyPrefix,
		Logger:    logger,
	}
}
