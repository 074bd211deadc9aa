// ABOUTME: Tests for the shared API client and the auth endpoints
// ABOUTME: Covers default headers, hook ordering and disposal, and error decoding

package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-console/internal/api"
	"github.com/2389/mcp-console/internal/authtest"
)

func TestClient_DefaultHeaders(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("alice", "secret123", api.RoleAdmin)
	token := srv.IssueToken("alice", time.Hour)

	c := api.NewClient(srv.URL, nil, nil)
	c.SetDefaultHeader("Authorization", "Bearer "+token)
	assert.Equal(t, "Bearer "+token, c.DefaultHeader("Authorization"))

	user, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	c.DeleteDefaultHeader("Authorization")
	assert.Empty(t, c.DefaultHeader("Authorization"))

	_, err = c.Me(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))

	last, ok := srv.LastRequest("/api/auth/me")
	require.True(t, ok)
	assert.Empty(t, last.Header.Get("Authorization"))
}

func TestClient_HooksRunInOrderAfterDefaults(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("X-Trace"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := api.NewClient(srv.URL, nil, nil)
	c.SetDefaultHeader("X-Trace", "default")
	c.Use(func(req *http.Request) error {
		req.Header.Set("X-Trace", req.Header.Get("X-Trace")+",first")
		return nil
	})
	c.Use(func(req *http.Request) error {
		req.Header.Set("X-Trace", req.Header.Get("X-Trace")+",second")
		return nil
	})

	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/ping", nil, nil))
	assert.Equal(t, []string{"default,first,second"}, seen)
}

func TestClient_UseReturnsDisposer(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("X-Trace"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := api.NewClient(srv.URL, nil, nil)
	mark := func(name string) api.RequestHook {
		return func(req *http.Request) error {
			req.Header.Set("X-Trace", req.Header.Get("X-Trace")+name)
			return nil
		}
	}
	removeA := c.Use(mark("a"))
	removeB := c.Use(mark("b"))
	ping := func() {
		require.NoError(t, c.Do(context.Background(), http.MethodGet, "/ping", nil, nil))
	}

	ping()
	removeA()
	ping()

	// Calling a disposer twice must not remove another hook
	removeA()
	ping()

	removeB()
	ping()

	assert.Equal(t, []string{"ab", "b", "b", ""}, seen)
}

func TestClient_HookErrorAbortsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	boom := errors.New("boom")
	c := api.NewClient(srv.URL, nil, nil)
	c.Use(func(*http.Request) error { return boom })

	err := c.Do(context.Background(), http.MethodGet, "/", nil, nil)
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}

func TestRequestIDHook(t *testing.T) {
	srv := authtest.NewServer(t)
	c := api.NewClient(srv.URL, nil, nil)
	c.Use(api.RequestIDHook)

	_, _ = c.Login(context.Background(), api.LoginRequest{Username: "nobody", Password: "x"})

	last, ok := srv.LastRequest("/api/auth/login")
	require.True(t, ok)
	_, err := uuid.Parse(last.Header.Get(api.RequestIDHeader))
	assert.NoError(t, err)
}

func TestLogin(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("bob", "hunter22", api.RoleViewer)
	c := api.NewClient(srv.URL+"/", nil, nil)

	resp, err := c.Login(context.Background(), api.LoginRequest{Username: "bob", Password: "hunter22"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "bob", resp.User.Username)
	assert.Equal(t, api.RoleViewer, resp.User.Role)
	assert.NotEmpty(t, resp.User.LastLoginAt)

	claims, err := api.ParseClaims(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Username)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.False(t, claims.Expired(time.Now()))
}

func TestLogin_Errors(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("carol", "correct-horse", api.RoleOperator)
	c := api.NewClient(srv.URL, nil, nil)
	ctx := context.Background()

	_, err := c.Login(ctx, api.LoginRequest{Username: "carol", Password: "wrong"})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid username or password", apiErr.Message)

	_, err = c.Login(ctx, api.LoginRequest{})
	assert.Equal(t, http.StatusBadRequest, api.StatusCode(err))

	srv.Disable("carol")
	_, err = c.Login(ctx, api.LoginRequest{Username: "carol", Password: "correct-horse"})
	assert.True(t, api.IsForbidden(err))
}

func TestChangePassword(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("dave", "old-pass", api.RoleViewer)
	c := api.NewClient(srv.URL, nil, nil)
	c.SetDefaultHeader("Authorization", "Bearer "+srv.IssueToken("dave", time.Hour))
	ctx := context.Background()

	_, err := c.ChangePassword(ctx, api.ChangePasswordRequest{OldPassword: "nope", NewPassword: "new-pass"})
	assert.True(t, api.IsUnauthorized(err))

	resp, err := c.ChangePassword(ctx, api.ChangePasswordRequest{OldPassword: "old-pass", NewPassword: "new-pass"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Message)
	assert.True(t, srv.CheckPassword("dave", "new-pass"))
}

func TestListUsers_RequiresAdmin(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("root", "rootpass", api.RoleAdmin)
	srv.AddUser("eve", "evepass", api.RoleViewer)
	c := api.NewClient(srv.URL, nil, nil)
	ctx := context.Background()

	c.SetDefaultHeader("Authorization", "Bearer "+srv.IssueToken("eve", time.Hour))
	_, err := c.ListUsers(ctx)
	assert.True(t, api.IsForbidden(err))

	c.SetDefaultHeader("Authorization", "Bearer "+srv.IssueToken("root", time.Hour))
	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "root", users[0].Username)
	assert.Equal(t, "eve", users[1].Username)
}

func TestError_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := api.NewClient(srv.URL, nil, nil)
	err := c.Do(context.Background(), http.MethodGet, "/", nil, nil)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream exploded", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "502")
}

func TestParseClaims_Opaque(t *testing.T) {
	_, err := api.ParseClaims("not-a-jwt")
	assert.Error(t, err)
}

func TestClaims_Expired(t *testing.T) {
	srv := authtest.NewServer(t)
	srv.AddUser("frank", "frankpass", api.RoleViewer)

	claims, err := api.ParseClaims(srv.IssueToken("frank", -time.Minute))
	require.NoError(t, err)
	assert.True(t, claims.Expired(time.Now()))
}
