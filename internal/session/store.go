// ABOUTME: Session store holding the console's authentication state
// ABOUTME: Mediates between durable storage scopes, the shared API client and the auth service

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/2389/mcp-console/internal/api"
	"github.com/2389/mcp-console/internal/kv"
)

// Storage keys, identical in both scopes
const (
	KeyToken    = "token"
	KeyUsername = "username"
	KeyUserInfo = "userInfo"
)

var storageKeys = []string{KeyToken, KeyUsername, KeyUserInfo}

// DefaultRole is reported when the profile carries no role
const DefaultRole = api.RoleViewer

// AuthService is the subset of the platform API the store calls
type AuthService interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.LoginResponse, error)
	Me(ctx context.Context) (*api.User, error)
	ChangePassword(ctx context.Context, req api.ChangePasswordRequest) (*api.MessageResponse, error)
}

// HeaderSetter is the default-header side channel of the shared HTTP client
type HeaderSetter interface {
	SetDefaultHeader(key, value string)
	DeleteDefaultHeader(key string)
	Use(hook api.RequestHook) (remove func())
}

// Credentials are what a user types at the login prompt.
// Remember is a local choice and is never sent to the server.
type Credentials struct {
	Username string
	Password string
	Remember bool
}

// Store is the single holder of authentication state. Construct one per
// process and pass it to whatever needs to read or change the session.
//
// Service calls are neither serialized nor de-duplicated: overlapping calls
// race on the last write. mu only protects the in-memory fields and is never
// held across I/O.
type Store struct {
	scopes kv.Scopes
	client HeaderSetter
	auth   AuthService
	logger *slog.Logger

	mu       sync.RWMutex
	token    string
	username string
	userInfo api.User
	scope    kv.Scope

	removeHook func()
}

// New creates an empty, unauthenticated store.
func New(scopes kv.Scopes, client HeaderSetter, auth AuthService, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		scopes: scopes,
		client: client,
		auth:   auth,
		logger: logger.With("component", "session"),
	}
}

// Initialize hydrates the session from storage, installs the request hook
// and, when a token was found, re-validates it by fetching the profile. A
// failed re-validation clears the session; it is logged, not returned.
// Only storage read failures are returned.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.hydrate(ctx); err != nil {
		return err
	}

	s.installHook()

	if !s.IsAuthenticated() {
		return nil
	}

	if _, err := s.FetchUserInfo(ctx); err != nil {
		s.logger.Warn("stored session failed re-validation, signing out", "error", err)
		s.ClearAuthData(ctx)
	}
	return nil
}

// hydrate reads the session from whichever scope holds a token, probing the
// persistent scope first. See cachedProfile for where the profile comes from.
func (s *Store) hydrate(ctx context.Context) error {
	var (
		found    bool
		scope    kv.Scope
		token    string
		username string
	)
	for _, sc := range []kv.Scope{kv.Persistent, kv.Transient} {
		st := s.scopes.For(sc)
		v, ok, err := st.Get(ctx, KeyToken)
		if err != nil {
			return fmt.Errorf("reading %s session: %w", sc, err)
		}
		if !ok || v == "" {
			continue
		}
		name, _, err := st.Get(ctx, KeyUsername)
		if err != nil {
			return fmt.Errorf("reading %s session: %w", sc, err)
		}
		found, scope, token, username = true, sc, v, name
		break
	}

	var info api.User
	if found {
		var err error
		info, err = s.cachedProfile(ctx, scope, username)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.token = token
	s.username = username
	s.userInfo = info
	s.scope = scope
	s.mu.Unlock()

	if found {
		s.logger.Debug("session restored", "scope", scope, "username", username)
	}
	return nil
}

// cachedProfile picks the profile for a hydrated session: the persistent
// cache first, then the token's own scope when that is transient. A profile
// that is unreadable or names a different user is skipped.
func (s *Store) cachedProfile(ctx context.Context, scope kv.Scope, username string) (api.User, error) {
	sources := []kv.Scope{kv.Persistent}
	if scope == kv.Transient {
		sources = append(sources, kv.Transient)
	}

	for _, sc := range sources {
		raw, ok, err := s.scopes.For(sc).Get(ctx, KeyUserInfo)
		if err != nil {
			return api.User{}, fmt.Errorf("reading cached profile: %w", err)
		}
		if !ok {
			continue
		}
		var info api.User
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			s.logger.Warn("ignoring unreadable cached profile", "scope", sc, "error", err)
			continue
		}
		if username != "" && info.Username != "" && info.Username != username {
			s.logger.Debug("ignoring cached profile of another user", "scope", sc, "cached", info.Username, "username", username)
			continue
		}
		return info, nil
	}
	return api.User{}, nil
}

// installHook registers the bearer hook on the client once per store.
func (s *Store) installHook() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeHook != nil {
		return
	}
	s.removeHook = s.client.Use(s.authorize)
}

// authorize sets the Authorization header on outgoing requests while a
// token is held and leaves the request untouched otherwise.
func (s *Store) authorize(req *http.Request) error {
	if token := s.Token(); token != "" {
		req.Header.Set("Authorization", bearer(token))
	}
	return nil
}

// Close unregisters the request hook. The stored session is left intact.
func (s *Store) Close() {
	s.mu.Lock()
	remove := s.removeHook
	s.removeHook = nil
	s.mu.Unlock()
	if remove != nil {
		remove()
	}
}

// Login authenticates with the service and commits the returned session to
// the scope chosen by creds.Remember. Service failures are returned
// unchanged and leave the session untouched.
func (s *Store) Login(ctx context.Context, creds Credentials) (*api.LoginResponse, error) {
	resp, err := s.auth.Login(ctx, api.LoginRequest{
		Username: creds.Username,
		Password: creds.Password,
	})
	if err != nil {
		return nil, err
	}

	if err := s.SetAuthData(ctx, resp.Token, resp.User.Username, resp.User, creds.Remember); err != nil {
		return nil, err
	}

	s.logger.Info("logged in", "username", resp.User.Username, "role", resp.User.Role, "scope", kv.ScopeFor(creds.Remember))
	return resp, nil
}

// FetchUserInfo refreshes the profile from the service. On success the
// profile replaces the in-memory one and is cached in the persistent scope,
// whichever scope holds the session. Without a token the request still goes
// out and the service's rejection is returned unchanged.
func (s *Store) FetchUserInfo(ctx context.Context) (*api.User, error) {
	user, err := s.auth.Me(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.userInfo = *user
	s.mu.Unlock()

	if err := putJSON(ctx, s.scopes.Persistent, KeyUserInfo, user); err != nil {
		s.logger.Warn("could not cache profile", "error", err)
	}
	return user, nil
}

// SetAuthData stores a session in exactly one scope (persistent when
// remember is set, transient otherwise), then updates the in-memory state
// and the client's default Authorization header. Nothing in memory changes
// if the storage write fails.
func (s *Store) SetAuthData(ctx context.Context, token, username string, info api.User, remember bool) error {
	scope := kv.ScopeFor(remember)
	st := s.scopes.For(scope)

	if err := st.Set(ctx, KeyToken, token); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	if err := st.Set(ctx, KeyUsername, username); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	if err := putJSON(ctx, st, KeyUserInfo, info); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.username = username
	s.userInfo = info
	s.scope = scope
	s.mu.Unlock()

	s.client.SetDefaultHeader("Authorization", bearer(token))
	return nil
}

// Logout ends the session locally. No server call is needed.
func (s *Store) Logout(ctx context.Context) error {
	s.ClearAuthData(ctx)
	s.logger.Info("logged out")
	return nil
}

// ClearAuthData resets the in-memory session, removes the session keys from
// both scopes and drops the default Authorization header. Removal failures
// are logged; the in-memory state is always cleared. Removals run even when
// ctx is already cancelled, so an interrupted sign-in cannot leave the token
// on disk.
func (s *Store) ClearAuthData(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	s.token = ""
	s.username = ""
	s.userInfo = api.User{}
	s.scope = kv.Persistent
	s.mu.Unlock()

	for _, sc := range []kv.Scope{kv.Persistent, kv.Transient} {
		st := s.scopes.For(sc)
		for _, key := range storageKeys {
			if err := st.Remove(ctx, key); err != nil {
				s.logger.Warn("could not remove session key", "scope", sc, "key", key, "error", err)
			}
		}
	}

	s.client.DeleteDefaultHeader("Authorization")
}

// ChangePassword asks the service to change the signed-in user's password.
// The session itself is not modified.
func (s *Store) ChangePassword(ctx context.Context, oldPassword, newPassword string) (*api.MessageResponse, error) {
	return s.auth.ChangePassword(ctx, api.ChangePasswordRequest{
		OldPassword: oldPassword,
		NewPassword: newPassword,
	})
}

func putJSON(ctx context.Context, st kv.Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return st.Set(ctx, key, string(data))
}

func bearer(token string) string {
	return "Bearer " + token
}
