// ABOUTME: In-process fake of the platform authentication service for tests
// ABOUTME: Serves /api/auth login, me, change-password and users over httptest

package authtest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/mcp-console/internal/api"
)

// DefaultTokenTTL matches the backend's one-day token lifetime
const DefaultTokenTTL = 24 * time.Hour

type account struct {
	user api.User
	hash []byte
}

// RecordedRequest is a request observed by the fake service
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Server is a fake authentication service. All state is guarded by mu so
// tests may mutate it while requests are in flight.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]*account
	nextID   int64
	revoked  map[string]bool
	requests []RecordedRequest
	meStatus int
	tokenTTL time.Duration
	issuer   *issuer
}

// NewServer starts a fake service that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		accounts: make(map[string]*account),
		revoked:  make(map[string]bool),
		tokenTTL: DefaultTokenTTL,
		issuer: &issuer{
			secret: []byte("authtest-secret-at-least-32-bytes"),
			now:    time.Now,
		},
	}

	r := mux.NewRouter()
	r.Use(s.record)
	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	auth.Handle("/me", s.requireToken(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)
	auth.Handle("/change-password", s.requireToken(http.HandlerFunc(s.handleChangePassword))).Methods(http.MethodPost)
	auth.Handle("/users", s.requireToken(s.requireAdmin(http.HandlerFunc(s.handleUsers)))).Methods(http.MethodGet)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// AddUser creates an active account and returns its profile.
func (s *Server) AddUser(username, password, role string) api.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := httpTime(time.Now())
	u := api.User{
		ID:        s.nextID,
		Username:  username,
		Email:     username + "@example.com",
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.accounts[username] = &account{user: u, hash: hash}
	return u
}

// SetRole changes an account's role; later /me calls report it.
func (s *Server) SetRole(username, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[username]; ok {
		a.user.Role = role
	}
}

// Disable deactivates an account. Login then fails with 403 and existing
// tokens are rejected.
func (s *Server) Disable(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[username]; ok {
		a.user.IsActive = false
	}
}

// IssueToken signs a token for username directly. A negative ttl yields an
// already expired token.
func (s *Server) IssueToken(username string, ttl time.Duration) string {
	s.mu.Lock()
	a, ok := s.accounts[username]
	var user api.User
	if ok {
		user = a.user
	}
	s.mu.Unlock()
	if !ok {
		panic("authtest: unknown user " + username)
	}
	token, err := s.issuer.generate(user, ttl)
	if err != nil {
		panic(err)
	}
	return token
}

// Revoke makes the service reject token from now on.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = true
}

// FailMe forces /me to answer with status (0 restores normal behavior).
func (s *Server) FailMe(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meStatus = status
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent request to path, if any.
func (s *Server) LastRequest(path string) (RecordedRequest, bool) {
	reqs := s.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Path == path {
			return reqs[i], true
		}
	}
	return RecordedRequest{}, false
}

// CheckPassword reports whether password is the account's current password.
func (s *Server) CheckPassword(username, password string) bool {
	s.mu.Lock()
	var hash []byte
	if a, ok := s.accounts[username]; ok {
		hash = a.hash
	}
	s.mu.Unlock()
	if hash == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// requireToken extracts and verifies the bearer token, then resolves the account.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
		if errMsg != "" {
			writeError(w, http.StatusUnauthorized, errMsg)
			return
		}

		s.mu.Lock()
		revoked := s.revoked[token]
		s.mu.Unlock()
		if revoked {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		claims, err := s.issuer.verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		s.mu.Lock()
		a, ok := s.accounts[claims.Username]
		active := ok && a.user.IsActive
		s.mu.Unlock()
		if !active {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := r.Context()
		next.ServeHTTP(w, r.WithContext(contextWithAccount(ctx, a)))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		role := accountFrom(r).user.Role
		s.mu.Unlock()
		if role != api.RoleAdmin {
			writeError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	s.mu.Lock()
	a, ok := s.accounts[req.Username]
	var hash []byte
	if ok {
		hash = a.hash
	}
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	s.mu.Lock()
	if !a.user.IsActive {
		s.mu.Unlock()
		writeError(w, http.StatusForbidden, "this account has been disabled")
		return
	}
	a.user.LastLoginAt = httpTime(time.Now())
	user := a.user
	ttl := s.tokenTTL
	s.mu.Unlock()

	token, err := s.issuer.generate(user, ttl)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, api.LoginResponse{
		Message: "login successful",
		Token:   token,
		User:    user,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.meStatus
	user := accountFrom(r).user
	s.mu.Unlock()

	if status != 0 {
		writeError(w, status, http.StatusText(status))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req api.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OldPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "current and new password are required")
		return
	}

	a := accountFrom(r)
	s.mu.Lock()
	hash := a.hash
	s.mu.Unlock()

	if bcrypt.CompareHashAndPassword(hash, []byte(req.OldPassword)) != nil {
		writeError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}
	if n := len(req.NewPassword); n < 6 || n > 30 {
		writeError(w, http.StatusBadRequest, "new password must be 6-30 characters")
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not hash password")
		return
	}

	s.mu.Lock()
	a.hash = newHash
	a.user.UpdatedAt = httpTime(time.Now())
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, api.MessageResponse{Message: "password updated"})
}

func (s *Server) handleUsers(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	users := make([]api.User, 0, len(s.accounts))
	for _, a := range s.accounts {
		users = append(users, a.user)
	}
	s.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	writeJSON(w, http.StatusOK, users)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "authentication token required"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// httpTime renders t the way the backend's JSON encoder does.
func httpTime(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
