// Package querycache caches backend reads keyed by resource and filter so
// that views can invalidate every variant of a resource at once.
package querycache

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Resource names used by the views.
const (
	Emails   = "emails"
	Email    = "email"
	Accounts = "accounts"
	Rules    = "rules"
	Agent    = "agent"
)

// Key identifies one cached read: the resource plus its filter tuple.
type Key string

// NewKey builds a key. Parts are formatted with %v, so nil pointers and
// zero values produce distinct, stable text.
func NewKey(resource string, parts ...any) Key {
	var b strings.Builder
	b.WriteString(resource)
	b.WriteByte(':')
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('|')
		}
		switch v := p.(type) {
		case *bool:
			if v == nil {
				b.WriteString("-")
			} else {
				fmt.Fprintf(&b, "%t", *v)
			}
		default:
			fmt.Fprintf(&b, "%v", v)
		}
	}
	return Key(b.String())
}

// Resource returns the resource part of k.
func (k Key) Resource() string {
	r, _, _ := strings.Cut(string(k), ":")
	return r
}

// Backend stores encoded values.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

type Cache struct {
	backend Backend
	ttl     time.Duration
	log     *zap.Logger
	scope   func() string
}

type Option func(*Cache)

// WithScope partitions the backend per caller. scope is read on every call;
// its value prefixes each key, and Invalidate and Clear stay inside it. An
// empty scope is the anonymous partition.
func WithScope(scope func() string) Option {
	return func(c *Cache) { c.scope = scope }
}

func New(backend Backend, ttl time.Duration, log *zap.Logger, opts ...Option) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cache{backend: backend, ttl: ttl, log: log}
	for _, o := range opts {
		o(c)
	}
	return c
}

// prefix is the partition every key of the current scope lives under.
func (c *Cache) prefix() string {
	if c.scope == nil {
		return ""
	}
	s := c.scope()
	if s == "" {
		s = "anon"
	}
	return s + "/"
}

// Fetch returns the cached value for key or calls load and caches its
// result. Backend failures are logged and fall through to load.
func Fetch[T any](ctx context.Context, c *Cache, key Key, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}
	full := c.prefix() + string(key)
	if b, ok, err := c.backend.Get(ctx, full); err != nil {
		c.log.Warn("cache get failed", zap.String("key", string(key)), zap.Error(err))
	} else if ok {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
		c.log.Warn("cache entry undecodable", zap.String("key", string(key)))
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache encode failed", zap.String("key", string(key)), zap.Error(err))
		return v, nil
	}
	if err := c.backend.Set(ctx, full, b, c.ttl); err != nil {
		c.log.Warn("cache set failed", zap.String("key", string(key)), zap.Error(err))
	}
	return v, nil
}

// Invalidate drops every cached variant of the given resources.
func (c *Cache) Invalidate(ctx context.Context, resources ...string) error {
	if c == nil {
		return nil
	}
	p := c.prefix()
	for _, r := range resources {
		if err := c.backend.DeletePrefix(ctx, p+r+":"); err != nil {
			return fmt.Errorf("invalidate %s: %w", r, err)
		}
		c.log.Debug("invalidated", zap.String("resource", r))
	}
	return nil
}

// Clear drops everything in the current scope, e.g. on logout. Without a
// scope that is the whole backend.
func (c *Cache) Clear(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.backend.DeletePrefix(ctx, c.prefix())
}
