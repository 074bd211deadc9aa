// ABOUTME: Tests for console command routing against the fake auth service
// ABOUTME: Covers guard redirects, login resume, admin-only commands and logout

package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-console/internal/api"
	"github.com/2389/mcp-console/internal/authtest"
	"github.com/2389/mcp-console/internal/config"
	"github.com/2389/mcp-console/internal/kv"
	"github.com/2389/mcp-console/internal/session"
)

type testApp struct {
	*app
	srv        *authtest.Server
	out        *bytes.Buffer
	persistent *kv.Memory
	transient  *kv.Memory
	passwords  []string
}

func newTestApp(t *testing.T, stdin string) *testApp {
	t.Helper()
	srv := authtest.NewServer(t)
	client := api.NewClient(srv.URL, nil, nil)
	ta := &testApp{
		srv:        srv,
		out:        &bytes.Buffer{},
		persistent: kv.NewMemory(),
		transient:  kv.NewMemory(),
	}
	sess := session.New(kv.Scopes{Persistent: ta.persistent, Transient: ta.transient}, client, client, nil)
	t.Cleanup(sess.Close)
	require.NoError(t, sess.Initialize(context.Background()))

	ta.app = newApp(sess, client, slog.Default())
	ta.app.out = ta.out
	ta.app.in = bufio.NewReader(strings.NewReader(stdin))
	ta.app.interactive = true
	ta.app.readPassword = func(string) (string, error) {
		require.NotEmpty(t, ta.passwords, "unexpected password prompt")
		pw := ta.passwords[0]
		ta.passwords = ta.passwords[1:]
		return pw, nil
	}
	return ta
}

func (ta *testApp) signIn(t *testing.T, username, password string) {
	t.Helper()
	ta.passwords = append(ta.passwords, password)
	require.NoError(t, ta.login(context.Background(), username, false))
	ta.out.Reset()
}

func TestDispatch_StatusSignedOut(t *testing.T) {
	ta := newTestApp(t, "")

	require.NoError(t, ta.dispatch(context.Background(), "status", nil))
	assert.Contains(t, ta.out.String(), "not signed in")
	assert.Contains(t, ta.out.String(), ta.srv.URL)
}

func TestDispatch_GuardedCommandNonInteractive(t *testing.T) {
	ta := newTestApp(t, "")
	ta.interactive = false

	err := ta.dispatch(context.Background(), "me", nil)
	assert.ErrorIs(t, err, errNotSignedIn)
	assert.Empty(t, ta.srv.Requests())
}

func TestDispatch_LoginThenResume(t *testing.T) {
	ta := newTestApp(t, "alice\n")
	ta.srv.AddUser("alice", "wonderland", api.RoleOperator)
	ta.passwords = []string{"wonderland"}

	require.NoError(t, ta.dispatch(context.Background(), "me", nil))

	out := ta.out.String()
	assert.Contains(t, out, "Profile - MCP Console requires sign in")
	assert.Contains(t, out, "Username:     alice")
	assert.Contains(t, out, "operator")
	assert.True(t, ta.session.IsAuthenticated())
	assert.Equal(t, kv.Transient, ta.session.Scope())

	_, ok := ta.srv.LastRequest("/api/auth/me")
	assert.True(t, ok)
}

func TestDispatch_LoginCommand(t *testing.T) {
	ta := newTestApp(t, "")
	ta.srv.AddUser("root", "hunter22", api.RoleAdmin)
	ta.passwords = []string{"hunter22"}

	require.NoError(t, ta.dispatch(context.Background(), "login", []string{"-u", "root", "-remember"}))

	assert.Equal(t, kv.Persistent, ta.session.Scope())
	_, ok, err := ta.persistent.Get(context.Background(), session.KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, ta.out.String(), "root (admin)")
	assert.Contains(t, ta.out.String(), "remembered on this machine")
}

func TestDispatch_LoginWhileSignedInGoesHome(t *testing.T) {
	ta := newTestApp(t, "")
	ta.srv.AddUser("alice", "wonderland", api.RoleViewer)
	ta.signIn(t, "alice", "wonderland")

	require.NoError(t, ta.dispatch(context.Background(), "login", nil))

	assert.Contains(t, ta.out.String(), "Already signed in as alice")
	assert.Contains(t, ta.out.String(), "Session:")
}

func TestDispatch_LoginFailure(t *testing.T) {
	ta := newTestApp(t, "")
	ta.srv.AddUser("alice", "wonderland", api.RoleViewer)
	ta.passwords = []string{"wrong"}

	err := ta.dispatch(context.Background(), "login", []string{"-u", "alice"})
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))
	assert.False(t, ta.session.IsAuthenticated())
}

func TestDispatch_UsersRequiresAdmin(t *testing.T) {
	ta := newTestApp(t, "")
	ta.srv.AddUser("alice", "wonderland", api.RoleViewer)
	ta.signIn(t, "alice", "wonderland")

	err := ta.dispatch(context.Background(), "users", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin")
	_, ok := ta.srv.LastRequest("/api/auth/users")
	assert.False(t, ok)
}

func TestDispatch_UsersAsAdmin(t *testing.T) {
	ta := newTestApp(t, "")
	ta.srv.AddUser("root", "hunter22", api.RoleAdmin)
	ta.srv.AddUser("bob", "builder1", api.RoleViewer)
	ta.signIn(t, "root", "hunter22")

	require.NoError(t, ta.dispatch(context.Background(), "users", nil))

	out := ta.out.String()
	assert.Contains(t, out, "root")
	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "2 users")
}

func TestDispatch_UsersStaleAdminRole(t *testing.T) {
	ta := newTestApp(t, "")
	ta.srv.AddUser("root", "hunter22", api.RoleAdmin)
	ta.signIn(t, "root", "hunter22")
	ta.srv.SetRole("root", api.RoleViewer)

	err := ta.dispatch(context.Background(), "users", nil)
	require.Error(t, err)
	assert.True(t, api.IsForbidden(err))
	assert.Contains(t, err.Error(), "no longer grants")
}

func TestDispatch_Passwd(t *testing.T) {
	ta := newTestApp(t, "")
	ta.srv.AddUser("alice", "wonderland", api.RoleViewer)
	ta.signIn(t, "alice", "wonderland")

	ta.passwords = []string{"wonderland", "looking-glass", "looking-glass"}
	require.NoError(t, ta.dispatch(context.Background(), "passwd", nil))
	assert.True(t, ta.srv.CheckPassword("alice", "looking-glass"))

	ta.passwords = []string{"looking-glass", "one", "two"}
	err := ta.dispatch(context.Background(), "passwd", nil)
	assert.ErrorContains(t, err, "do not match")
}

func TestDispatch_Logout(t *testing.T) {
	ta := newTestApp(t, "")
	ta.srv.AddUser("alice", "wonderland", api.RoleViewer)
	ta.signIn(t, "alice", "wonderland")

	require.NoError(t, ta.dispatch(context.Background(), "logout", nil))

	assert.Contains(t, ta.out.String(), "Signed out")
	assert.False(t, ta.session.IsAuthenticated())
	assert.Zero(t, ta.transient.Len())
	assert.Zero(t, ta.persistent.Len())
}

func TestDispatch_UnknownCommand(t *testing.T) {
	ta := newTestApp(t, "")

	err := ta.dispatch(context.Background(), "frobnicate", nil)
	require.Error(t, err)
	assert.Contains(t, ta.out.String(), "Usage: mcp-console")
}

func TestDispatch_StatusShowsExpiry(t *testing.T) {
	ta := newTestApp(t, "")
	ta.srv.AddUser("alice", "wonderland", api.RoleViewer)
	token := ta.srv.IssueToken("alice", 2*time.Hour)
	require.NoError(t, ta.session.SetAuthData(context.Background(), token, "alice", api.User{Username: "alice"}, false))

	require.NoError(t, ta.dispatch(context.Background(), "status", nil))
	assert.Contains(t, ta.out.String(), "1h 59m")
	assert.Contains(t, ta.out.String(), "left)")
	assert.Contains(t, ta.out.String(), "this OS session only")
}

func TestCommandPath(t *testing.T) {
	assert.Equal(t, "/", commandPath("status"))
	assert.Equal(t, "/users", commandPath("users"))
}

func TestSetupLogger_ColorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug"}, &buf)

	logger.With("component", "session").WithGroup("req").Debug("hello", "id", 7)

	line := buf.String()
	assert.Contains(t, line, "hello")
	assert.Contains(t, line, "component=")
	assert.Contains(t, line, "session")
	assert.Contains(t, line, "req.id=")
}

func TestSetupLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("quiet")
	logger.Warn("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), `"msg":"loud"`)
}

func TestOpenScopes_TransientFallsBackToMemory(t *testing.T) {
	scopes, err := openScopes(config.StorageConfig{
		Persistent: config.ScopeConfig{Driver: config.DriverMemory},
		Transient:  config.ScopeConfig{Driver: config.DriverRedis, RedisAddr: "127.0.0.1:1"},
	}, slog.Default())
	require.NoError(t, err)
	defer scopes.Close()

	_, ok := scopes.Transient.(*kv.Memory)
	assert.True(t, ok)
}

// unreadableStore fails every read but still accepts removals
type unreadableStore struct {
	*kv.Memory
}

func (unreadableStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("database disk image is malformed")
}

func TestRestore_LogoutClearsUnreadableStorage(t *testing.T) {
	srv := authtest.NewServer(t)
	client := api.NewClient(srv.URL, nil, nil)
	ctx := context.Background()

	persistent := unreadableStore{Memory: kv.NewMemory()}
	require.NoError(t, persistent.Set(ctx, session.KeyToken, "stale"))
	require.NoError(t, persistent.Set(ctx, session.KeyUsername, "alice"))
	transient := kv.NewMemory()

	sess := session.New(kv.Scopes{Persistent: persistent, Transient: transient}, client, client, nil)
	t.Cleanup(sess.Close)

	err := restore(ctx, sess, "status", slog.Default())
	assert.ErrorContains(t, err, "restoring session")

	require.NoError(t, restore(ctx, sess, "logout", slog.Default()))

	a := newApp(sess, client, slog.Default())
	var out bytes.Buffer
	a.out = &out
	require.NoError(t, a.dispatch(ctx, "logout", nil))

	assert.Zero(t, persistent.Len())
	assert.Contains(t, out.String(), "stored credentials cleared")
}
