// ABOUTME: Command routing and handlers for the console CLI
// ABOUTME: Every command is a route checked by the navigation guard before it runs

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/mcp-console/internal/api"
	"github.com/2389/mcp-console/internal/format"
	"github.com/2389/mcp-console/internal/guard"
	"github.com/2389/mcp-console/internal/kv"
	"github.com/2389/mcp-console/internal/session"
)

var errNotSignedIn = errors.New("not signed in (run: mcp-console login)")

// maxRedirects bounds guard redirects for a single invocation
const maxRedirects = 3

func routes() *guard.Table {
	return guard.NewTable(
		guard.Route{Name: guard.HomeRoute, Path: "/", Title: "Status"},
		guard.Route{Name: guard.LoginRoute, Path: "/login", Title: "Login"},
		guard.Route{Name: "Logout", Path: "/logout", Title: "Logout"},
		guard.Route{Name: "Me", Path: "/me", Title: "Profile", RequiresAuth: true},
		guard.Route{Name: "Passwd", Path: "/passwd", Title: "Change Password", RequiresAuth: true},
		guard.Route{Name: "Users", Path: "/users", Title: "Users", RequiresAuth: true},
		guard.Route{Name: guard.NotFoundRoute, Path: "*", Title: "404 - Page Not Found"},
	)
}

type handler func(ctx context.Context, args []string) error

// app holds everything a command needs
type app struct {
	session *session.Store
	client  *api.Client
	guard   *guard.Guard
	logger  *slog.Logger

	out          io.Writer
	in           *bufio.Reader
	interactive  bool
	readPassword func(prompt string) (string, error)

	handlers map[string]handler
}

func newApp(sess *session.Store, client *api.Client, logger *slog.Logger) *app {
	a := &app{
		session: sess,
		client:  client,
		guard:   guard.New(routes(), sess),
		logger:  logger,
		out:     os.Stdout,
		in:      bufio.NewReader(os.Stdin),
	}
	a.handlers = map[string]handler{
		guard.HomeRoute:     a.cmdStatus,
		guard.LoginRoute:    a.cmdLogin,
		"Logout":            a.cmdLogout,
		"Me":                a.cmdMe,
		"Passwd":            a.cmdPasswd,
		"Users":             a.cmdUsers,
		guard.NotFoundRoute: a.cmdNotFound,
	}
	return a
}

// commandPath maps a command name to its route path
func commandPath(cmd string) string {
	if cmd == "status" {
		return "/"
	}
	return "/" + cmd
}

// dispatch runs cmd after the guard allows it. A redirect to login signs
// in interactively and then resumes the requested command with its args.
func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	path := commandPath(cmd)

	for i := 0; i < maxRedirects; i++ {
		d := a.guard.Check(path)
		if d.Action == guard.Proceed {
			a.logger.Debug("running command", "route", d.Target.Name, "title", a.guard.Title(d.Target))
			return a.handlers[d.Target.Name](ctx, args)
		}

		switch d.To.Name {
		case guard.LoginRoute:
			if !a.interactive {
				return errNotSignedIn
			}
			color.New(color.FgYellow).Fprintf(a.out, "%s requires sign in\n", a.guard.Title(d.Target))
			if err := a.login(ctx, "", false); err != nil {
				return err
			}
			path = a.guard.ContinueTo(d.Query)
		default:
			if d.To.Name == guard.HomeRoute {
				fmt.Fprintf(a.out, "Already signed in as %s\n", a.session.Username())
			}
			path, args = d.Location(), nil
		}
	}
	return fmt.Errorf("too many redirects for %q", cmd)
}

// cmdStatus shows the server and session state
func (a *app) cmdStatus(_ context.Context, _ []string) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(a.out, banner)
	fmt.Fprintln(a.out)

	green.Fprint(a.out, "  Server:   ")
	fmt.Fprintln(a.out, a.client.BaseURL())

	if !a.session.IsAuthenticated() {
		yellow.Fprint(a.out, "  Session:  ")
		fmt.Fprintln(a.out, "(not signed in - run mcp-console login)")
		fmt.Fprintln(a.out)
		return nil
	}

	green.Fprint(a.out, "  Session:  ")
	fmt.Fprintf(a.out, "%s (%s)\n", a.session.Username(), a.session.Role())
	green.Fprint(a.out, "  Storage:  ")
	fmt.Fprintln(a.out, scopeLabel(a.session.Scope()))

	claims, err := api.ParseClaims(a.session.Token())
	switch {
	case err != nil:
		yellow.Fprint(a.out, "  Expires:  ")
		fmt.Fprintln(a.out, "unknown (opaque token)")
	case claims.Expiry().IsZero():
		green.Fprint(a.out, "  Expires:  ")
		fmt.Fprintln(a.out, "never")
	case claims.Expired(time.Now()):
		yellow.Fprint(a.out, "  Expires:  ")
		color.New(color.FgRed).Fprintf(a.out, "expired %s\n", format.FromNow(claims.Expiry()))
	default:
		green.Fprint(a.out, "  Expires:  ")
		left := int64(time.Until(claims.Expiry()).Seconds())
		fmt.Fprintf(a.out, "%s (%s left)\n", format.Date(claims.Expiry(), ""), format.Duration(left))
	}

	fmt.Fprintln(a.out)
	return nil
}

func scopeLabel(s kv.Scope) string {
	if s == kv.Persistent {
		return "remembered on this machine"
	}
	return "this OS session only"
}

// cmdLogin signs in with -u and -remember
func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.out)
	username := fs.String("u", "", "Username")
	remember := fs.Bool("remember", false, "Keep the session across reboots")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.login(ctx, *username, *remember); err != nil {
		return err
	}
	return a.dispatch(ctx, "status", nil)
}

func (a *app) login(ctx context.Context, username string, remember bool) error {
	if username == "" {
		var err error
		username, err = a.prompt("Username: ")
		if err != nil {
			return err
		}
	}
	if username == "" {
		return fmt.Errorf("username is required")
	}

	password, err := a.readPassword("Password: ")
	if err != nil {
		return err
	}

	resp, err := a.session.Login(ctx, session.Credentials{
		Username: username,
		Password: password,
		Remember: remember,
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	msg := resp.Message
	if msg == "" {
		msg = "Signed in"
	}
	color.New(color.FgGreen).Fprintf(a.out, "%s as %s\n", msg, resp.User.Username)
	return nil
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// cmdLogout clears the stored session
func (a *app) cmdLogout(ctx context.Context, _ []string) error {
	wasSignedIn := a.session.IsAuthenticated()
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	if wasSignedIn {
		color.New(color.FgGreen).Fprintln(a.out, "Signed out")
	} else {
		fmt.Fprintln(a.out, "Not signed in; stored credentials cleared")
	}
	return nil
}

// cmdMe refreshes and prints the profile
func (a *app) cmdMe(ctx context.Context, _ []string) error {
	user, err := a.session.FetchUserInfo(ctx)
	if err != nil {
		return fmt.Errorf("fetching profile: %w", err)
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	fmt.Fprintln(a.out)
	cyan.Fprintln(a.out, "  Profile")
	cyan.Fprintln(a.out, "  -------")
	fmt.Fprintf(a.out, "  ID:           %d\n", user.ID)
	fmt.Fprintf(a.out, "  Username:     %s\n", user.Username)
	if user.Email != "" {
		fmt.Fprintf(a.out, "  Email:        %s\n", user.Email)
	}
	green.Fprintf(a.out, "  Role:         %s\n", a.session.Role())
	fmt.Fprintf(a.out, "  Active:       %t\n", user.IsActive)
	fmt.Fprintf(a.out, "  Last login:   %s\n", relative(user.LastLoginAt))
	fmt.Fprintf(a.out, "  Created:      %s\n", format.DateString(user.CreatedAt, ""))
	fmt.Fprintln(a.out)
	return nil
}

func relative(ts string) string {
	t, err := format.ParseTimestamp(ts)
	if err != nil {
		return ts
	}
	return format.FromNow(t)
}

// cmdPasswd changes the signed-in user's password
func (a *app) cmdPasswd(ctx context.Context, _ []string) error {
	oldPw, err := a.readPassword("Current password: ")
	if err != nil {
		return err
	}
	newPw, err := a.readPassword("New password: ")
	if err != nil {
		return err
	}
	confirm, err := a.readPassword("Confirm new password: ")
	if err != nil {
		return err
	}
	if newPw != confirm {
		return fmt.Errorf("new passwords do not match")
	}

	resp, err := a.session.ChangePassword(ctx, oldPw, newPw)
	if err != nil {
		return fmt.Errorf("changing password: %w", err)
	}

	msg := resp.Message
	if msg == "" {
		msg = "Password changed"
	}
	color.New(color.FgGreen).Fprintln(a.out, msg)
	return nil
}

// cmdUsers lists accounts; the role check here only saves a round trip,
// the service enforces it too.
func (a *app) cmdUsers(ctx context.Context, _ []string) error {
	if !a.session.IsAdmin() {
		return fmt.Errorf("users requires the %s role (you are %s)", api.RoleAdmin, a.session.Role())
	}

	users, err := a.client.ListUsers(ctx)
	if api.IsForbidden(err) {
		return fmt.Errorf("the service no longer grants you the %s role (run: mcp-console me): %w", api.RoleAdmin, err)
	}
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(a.out)
	cyan.Fprintln(a.out, "  Users")
	cyan.Fprintln(a.out, "  -----")

	if len(users) == 0 {
		fmt.Fprintln(a.out, "  (no users)")
		fmt.Fprintln(a.out)
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tUSERNAME\tROLE\tACTIVE\tLAST LOGIN")
	fmt.Fprintln(w, "  --\t--------\t----\t------\t----------")
	for _, u := range users {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%t\t%s\n", u.ID, truncate(u.Username, 24), u.Role, u.IsActive, format.DateString(u.LastLoginAt, "Jan 02 15:04"))
	}
	w.Flush()
	fmt.Fprintf(a.out, "\n  %s users\n\n", format.Count(int64(len(users))))
	return nil
}

func (a *app) cmdNotFound(_ context.Context, _ []string) error {
	printUsage(a.out)
	return fmt.Errorf("unknown command (see usage above)")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
