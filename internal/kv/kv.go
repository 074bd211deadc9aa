// ABOUTME: Key-value storage scopes backing the console session
// ABOUTME: Defines the Store interface, the Scope enum and backend selection

package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrUnknownDriver is returned when a backend driver name is not recognized
var ErrUnknownDriver = errors.New("unknown storage driver")

// Store is a flat string key-value space. Missing keys are not errors:
// Get reports them with ok == false and Remove ignores them.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Scope selects which of the two durable stores holds a session
type Scope int

const (
	// Persistent survives restarts of the console and the machine
	Persistent Scope = iota
	// Transient is discarded when the user's login session ends
	Transient
)

func (s Scope) String() string {
	switch s {
	case Persistent:
		return "persistent"
	case Transient:
		return "transient"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// ScopeFor maps a caller's "remember me" choice to a scope.
func ScopeFor(remember bool) Scope {
	if remember {
		return Persistent
	}
	return Transient
}

// Scopes holds one Store per Scope
type Scopes struct {
	Persistent Store
	Transient  Store
}

// For returns the store backing the given scope.
func (s Scopes) For(scope Scope) Store {
	if scope == Persistent {
		return s.Persistent
	}
	return s.Transient
}

// Close closes both stores and returns the first error encountered.
func (s Scopes) Close() error {
	var first error
	for _, st := range []Store{s.Persistent, s.Transient} {
		if st == nil {
			continue
		}
		if err := st.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Options describes how to open a backend
type Options struct {
	Driver    string // "sqlite", "redis" or "memory"
	Path      string // sqlite database file
	RedisAddr string
	KeyPrefix string // redis key namespace
	Logger    *slog.Logger
}

// Open constructs the backend named by opts.Driver.
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case "sqlite":
		return NewSQLite(opts.Path, opts.Logger)
	case "redis":
		return NewRedis(RedisOptions{Addr: opts.RedisAddr, KeyPrefix: opts.KeyPrefix}, opts.Logger)
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}
