// ABOUTME: Read-only views of the session: identity, header and role checks
// ABOUTME: Every accessor is derived from current state and has no side effects

package session

import (
	"github.com/2389/mcp-console/internal/api"
	"github.com/2389/mcp-console/internal/kv"
)

// IsAuthenticated reports whether a token is held
func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}

// Token returns the bearer token, or "" when signed out
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Username returns the signed-in user's display name
func (s *Store) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// UserInfo returns a copy of the cached profile
func (s *Store) UserInfo() api.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userInfo
}

// Scope reports where the current session is stored. Meaningless when
// unauthenticated.
func (s *Store) Scope() kv.Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope
}

// AuthHeader returns the headers to authenticate a request: empty when
// signed out, otherwise a single Authorization entry.
func (s *Store) AuthHeader() map[string]string {
	token := s.Token()
	if token == "" {
		return map[string]string{}
	}
	return map[string]string{"Authorization": bearer(token)}
}

// Role returns the profile's role, defaulting to the viewer role
func (s *Store) Role() string {
	if role := s.UserInfo().Role; role != "" {
		return role
	}
	return DefaultRole
}

// HasRole reports whether the profile's role is exactly role.
func (s *Store) HasRole(role string) bool {
	return s.UserInfo().Role == role
}

// IsAdmin reports whether the profile carries the admin role.
func (s *Store) IsAdmin() bool {
	return s.HasRole(api.RoleAdmin)
}
