// ABOUTME: Authentication service endpoints: login, profile, password and user listing
// ABOUTME: Request and response types mirror the backend's /api/auth JSON payloads

package api

import (
	"context"
	"net/http"
)

const authPrefix = "/api/auth"

// User roles recognized by the platform
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// User is a profile record as returned by the authentication service.
// Timestamps are kept in the server's string form.
type User struct {
	ID          int64  `json:"id,omitempty"`
	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	IsActive    bool   `json:"is_active,omitempty"`
	LastLoginAt string `json:"last_login_at,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// LoginRequest carries credentials to the login endpoint
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the login endpoint's success payload
type LoginResponse struct {
	Message string `json:"message,omitempty"`
	Token   string `json:"token"`
	User    User   `json:"user"`
}

// ChangePasswordRequest carries the current and new password
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// MessageResponse is an opaque success payload
type MessageResponse struct {
	Message string `json:"message"`
}

// Login exchanges credentials for a token and profile.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.Do(ctx, http.MethodPost, authPrefix+"/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me fetches the profile of the token holder.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.Do(ctx, http.MethodGet, authPrefix+"/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword changes the token holder's password.
func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.Do(ctx, http.MethodPost, authPrefix+"/change-password", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListUsers returns every account (admin only).
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.Do(ctx, http.MethodGet, authPrefix+"/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}
